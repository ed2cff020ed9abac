package types

import "time"

// RelayMessage is the payload the friend relay fans out on behalf of the
// local validator. OriginHint is always empty when a message is built for
// egress: populating it would hand the adversary exactly the signal the
// relay exists to destroy.
type RelayMessage struct {
	MessageID  string    `json:"message_id"`
	Payload    []byte    `json:"payload"`
	SubnetID   SubnetID  `json:"subnet_id"`
	CreatedAt  time.Time `json:"created_at"`
	OriginHint string    `json:"origin_hint,omitempty"`
}

// RlnProof binds a message to a per-(sender, epoch) nullifier using the
// Rate-Limiting Nullifier construction. The proof blob itself is opaque to
// the sidecar; only the RlnProvider can generate or verify it.
type RlnProof struct {
	Nullifier  [32]byte `json:"nullifier"`
	ProofBlob  []byte   `json:"proof"`
	Epoch      uint64   `json:"epoch"`
	SignalHash [32]byte `json:"signal_hash"`
}

// senderTag is the fixed, identity-free literal every ProvenMessage carries.
// It exists purely so receivers can distinguish sidecar traffic from other
// protocols sharing the transport; it is never derived from any peer identity.
const senderTag = "privacy_sidecar"

// ProvenMessage is the wire envelope exchanged between friends: a
// RelayMessage plus the RLN proof that lets a receiver rate-limit and
// deduplicate it without learning who sent it.
type ProvenMessage struct {
	Message   RelayMessage `json:"message"`
	RlnProof  RlnProof     `json:"rln_proof"`
	SenderTag string       `json:"sender_tag"`
}

// NewProvenMessage wraps message and proof with the fixed sender tag.
func NewProvenMessage(message RelayMessage, proof RlnProof) ProvenMessage {
	return ProvenMessage{Message: message, RlnProof: proof, SenderTag: senderTag}
}
