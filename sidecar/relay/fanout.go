package relay

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/provider"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

// fanoutResult is the outcome of publishing one envelope to the full friend
// set: how many pushes succeeded out of how many were attempted. Which
// friend a failed push belonged to is not recorded.
type fanoutResult struct {
	successCount int
	total        int
}

// fanout issues friendCount concurrent light-push calls of payload to topic
// via rln, one per friend. The friend records themselves are not passed in:
// every call goes to the same topic, and no friend identity or address is
// part of the call. Unlike an errgroup.WithContext
// fan-out, one friend's failure never cancels the others — partial delivery
// is the whole point of relaying through many friends rather than one.
func fanout(ctx context.Context, rln provider.RlnProvider, topic string, payload []byte, friendCount int) (fanoutResult, error) {
	if friendCount == 0 {
		return fanoutResult{}, types.Wrap(types.KindRLNProof, types.ErrNoFriendsConfigured, "")
	}

	var success int64
	var g errgroup.Group
	for i := 0; i < friendCount; i++ {
		g.Go(func() error {
			if _, err := rln.LightPush(ctx, topic, payload); err != nil {
				return nil // recorded via the success counter, not propagated
			}
			atomic.AddInt64(&success, 1)
			return nil
		})
	}
	_ = g.Wait() // errors are swallowed per-friend; only the success count matters

	return fanoutResult{successCount: int(success), total: friendCount}, nil
}
