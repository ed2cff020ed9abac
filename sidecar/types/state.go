package types

import (
	"time"

	"github.com/prysmaticlabs/go-bitfield"
)

// SubnetState is the juggler's authoritative view of what this node is
// subscribed to. Mandatory and extra are always disjoint, and subscribed is
// always their union; SubnetState never stores a subnet in only "subscribed".
type SubnetState struct {
	CurrentEpoch   uint64
	Mandatory      bitfield.Bitvector64
	Extra          bitfield.Bitvector64
	LastReshuffle  time.Time
	NextReshuffle  time.Time
}

// NewSubnetState returns an empty state with zeroed bitvectors.
func NewSubnetState() *SubnetState {
	return &SubnetState{
		Mandatory: bitfield.NewBitvector64(),
		Extra:     bitfield.NewBitvector64(),
	}
}

// Subscribed returns the union of mandatory and extra subnets.
func (s *SubnetState) Subscribed() bitfield.Bitvector64 {
	out := bitfield.NewBitvector64()
	for i := uint64(0); i <= MaxSubnetID; i++ {
		if s.Mandatory.BitAt(i) || s.Extra.BitAt(i) {
			out.SetBitAt(i, true)
		}
	}
	return out
}

// ExtraList returns the extra subnets currently held, in ascending order.
func (s *SubnetState) ExtraList() []SubnetID {
	return bitsSet(s.Extra)
}

// MandatoryList returns the mandatory subnets currently held, in ascending order.
func (s *SubnetState) MandatoryList() []SubnetID {
	return bitsSet(s.Mandatory)
}

// ExtraCount returns how many extra subnets are currently held.
func (s *SubnetState) ExtraCount() int {
	return len(s.ExtraList())
}

func bitsSet(bv bitfield.Bitvector64) []SubnetID {
	var out []SubnetID
	for i := uint64(0); i <= MaxSubnetID; i++ {
		if bv.BitAt(i) {
			out = append(out, SubnetID(i))
		}
	}
	return out
}

// BitvectorFrom builds a Bitvector64 out of a slice of subnet ids.
func BitvectorFrom(ids []SubnetID) bitfield.Bitvector64 {
	bv := bitfield.NewBitvector64()
	for _, id := range ids {
		bv.SetBitAt(uint64(id), true)
	}
	return bv
}
