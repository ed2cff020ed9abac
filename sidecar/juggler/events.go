package juggler

import "github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"

// Command is sent to the juggler's single owning task over its command
// channel; replies, where present, come back over reply.
type Command struct {
	kind         commandKind
	subnets      []types.SubnetID
	reply        chan error
}

type commandKind int

const (
	cmdForceReshuffle commandKind = iota
	cmdAdd
	cmdRemove
	cmdStatus
)

// Event is emitted on the juggler's event channel as state changes.
type Event struct {
	Kind    EventKind
	Subnets []types.SubnetID
	Epoch   uint64
	Err     error
}

// EventKind discriminates Event.
type EventKind int

const (
	// EventSubnetsJoined reports newly-subscribed subnets.
	EventSubnetsJoined EventKind = iota
	// EventSubnetsLeft reports newly-unsubscribed subnets.
	EventSubnetsLeft
	// EventEpochReshuffle reports a completed epoch boundary reshuffle.
	EventEpochReshuffle
	// EventError reports a non-fatal error encountered during reshuffle or a command.
	EventError
)
