package types

import "fmt"

// MaxSubnetID is the highest valid attestation subnet index (mainnet carries 64 subnets, 0-63).
const MaxSubnetID = 63

// SubnetID identifies one of the 64 attestation gossip subnets.
type SubnetID uint8

// NewSubnetID validates id and returns it as a SubnetID.
func NewSubnetID(id uint8) (SubnetID, error) {
	if id > MaxSubnetID {
		return 0, Wrap(KindConfig, ErrSubnetOutOfRange, fmt.Sprintf("id %d", id))
	}
	return SubnetID(id), nil
}

// AllSubnets returns every valid subnet id, 0 through MaxSubnetID inclusive.
func AllSubnets() []SubnetID {
	out := make([]SubnetID, MaxSubnetID+1)
	for i := range out {
		out[i] = SubnetID(i)
	}
	return out
}

// TopicName returns the attestation gossip topic for this subnet under the given fork digest.
func (s SubnetID) TopicName(forkDigest string) string {
	return fmt.Sprintf("/eth2/%s/beacon_attestation_%d/ssz_snappy", forkDigest, s)
}

// RelayTopicName returns the friend-relay topic used to fan out messages for this subnet.
func (s SubnetID) RelayTopicName() string {
	return fmt.Sprintf("/privacy-relay/%d", s)
}
