// Package provider declares the narrow external collaborators the sidecar
// consumes but does not implement: the host's gossip engine, an RLN-capable
// pub/sub provider, and a clock. Production wiring of the networking and RLN
// providers is left to the binary embedding the sidecar; the only concrete
// implementation in this package is WallClock.
package provider

import (
	"context"
	"time"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

// NetworkingProvider is the subnet juggler's view of the host gossip engine:
// subscribe/unsubscribe to attestation subnets, and learn the current epoch
// and the validator's mandatory subnet assignment.
type NetworkingProvider interface {
	Subscribe(ctx context.Context, subnet types.SubnetID) error
	Unsubscribe(ctx context.Context, subnet types.SubnetID) error
	CurrentEpochInfo(ctx context.Context) (types.EpochInfo, error)
	ValidatorMandatorySubnets(ctx context.Context, pubkey string) ([]types.SubnetID, error)
}

// RlnProvider is the friend relay's view of the RLN-capable pub/sub
// transport: proof generation and verification, one-shot publish, and
// subscription to inbound friend traffic.
type RlnProvider interface {
	GenerateProof(ctx context.Context, payload []byte, epoch uint64) (types.RlnProof, error)
	VerifyProof(ctx context.Context, proof types.RlnProof, payload []byte) (bool, error)
	LightPush(ctx context.Context, topic string, payload []byte) (string, error)
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	CurrentEpoch(ctx context.Context) (uint64, error)
}

// Clock supplies wall-clock and monotonic time so reshuffle timers and
// latency measurements are testable without sleeping real time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Until(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
}
