package types

import ma "github.com/multiformats/go-multiaddr"

// FriendRecord describes one member of the privacy mesh: a peer that will
// forward our attestations on our behalf, and whose own attestations we
// forward in turn.
type FriendRecord struct {
	StableID        string
	TransportAddress ma.Multiaddr
	AuthPublicKey   string
}

// NewFriendRecord parses addr and returns a FriendRecord, or a Config-kind
// error if addr is not a valid multiaddr.
func NewFriendRecord(stableID, addr, authPublicKey string) (FriendRecord, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return FriendRecord{}, Wrap(KindConfig, err, "invalid friend transport address")
	}
	return FriendRecord{
		StableID:         stableID,
		TransportAddress: maddr,
		AuthPublicKey:    authPublicKey,
	}, nil
}
