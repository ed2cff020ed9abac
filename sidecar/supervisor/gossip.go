package supervisor

import "github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"

// GossipKind classifies an inbound gossip message for supervisor routing.
type GossipKind int

const (
	// GossipAttestation messages are forwarded into the friend relay.
	GossipAttestation GossipKind = iota
	// GossipBlock messages are only sized for metrics; never relayed.
	GossipBlock
	// GossipOther covers any topic the sidecar doesn't specially handle.
	GossipOther
)

// GossipMessage is one message intercepted from the host gossip engine, in
// whatever shape the host's bridge layer hands to the supervisor.
type GossipMessage struct {
	Kind     GossipKind
	Topic    string
	Payload  []byte
	SubnetID types.SubnetID
}

// DirectPublisher hands a payload straight to the host gossip engine's
// normal publish path, bypassing the friend mesh. The supervisor calls this
// only when the privacy path has failed, so a validator's own attestations
// are never silently dropped.
type DirectPublisher interface {
	Publish(topic string, payload []byte) error
}
