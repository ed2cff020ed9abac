package relay

import "github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"

// Command is sent to the relay's single owning task over its command channel.
type Command struct {
	kind    commandKind
	payload []byte
	subnet  types.SubnetID
	friend  types.FriendRecord
	peerID  string
	reply   chan error
}

type commandKind int

const (
	cmdRelay commandKind = iota
	cmdAddFriend
	cmdRemoveFriend
)

// Event is emitted on the relay's event channel as state changes.
type Event struct {
	Kind         EventKind
	MessageID    string
	FriendsCount int
	Latency      int64 // milliseconds
	FromFriend   string
	PeerID       string
	Epoch        uint64
	Attempts     uint32
	Limit        uint32
	Err          error
}

// EventKind discriminates Event.
type EventKind int

const (
	// EventMessageRelayed reports a successful fanout.
	EventMessageRelayed EventKind = iota
	// EventMessageReceived reports an inbound message accepted from a friend.
	EventMessageReceived
	// EventFriendConnected reports a friend added to the mesh.
	EventFriendConnected
	// EventFriendDisconnected reports a friend removed from the mesh.
	EventFriendDisconnected
	// EventRateLimitExceeded reports a local submission or an inbound friend
	// message rejected by the RLN rate limiter.
	EventRateLimitExceeded
	// EventError reports a non-fatal error.
	EventError
)
