// Package ratelimit implements the friend relay's epoch-windowed,
// nullifier-aware rate limiter, a direct port of the original sidecar's
// RateLimiter: a rolling window of the last three epochs of nullifiers, an
// epoch counter that resets on rollover, and a reuse check ahead of the
// count check.
package ratelimit

import (
	"sync"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

// epochWindow is how many trailing epochs of nullifiers are retained for
// reuse detection. Nullifiers from epochs older than currentEpoch-epochWindow
// are dropped on rollover.
const epochWindow = 3

// Limiter tracks, per epoch, how many messages have been admitted and which
// nullifiers have already been spent. It is safe for concurrent use, though
// in practice it is only ever touched by the relay's single owning task.
type Limiter struct {
	mu             sync.Mutex
	ratePerEpoch   uint32
	currentEpoch   uint64
	countInEpoch   uint32
	nullifiersSeen map[uint64]map[[32]byte]struct{}
}

// New returns a Limiter admitting up to ratePerEpoch messages per epoch.
func New(ratePerEpoch uint32) *Limiter {
	return &Limiter{
		ratePerEpoch:   ratePerEpoch,
		nullifiersSeen: make(map[uint64]map[[32]byte]struct{}),
	}
}

// CheckAndUpdate admits (epoch, nullifier) or rejects it. A rejection
// returns ErrNullifierReused if the nullifier was already spent this epoch,
// or ErrRateLimitExceeded if the epoch's quota is spent; the counter and
// nullifier set are left unchanged on rejection.
func (l *Limiter) CheckAndUpdate(epoch uint64, nullifier [32]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if epoch > l.currentEpoch {
		l.currentEpoch = epoch
		l.countInEpoch = 0
		l.evictOlderThanLocked(epoch)
	}

	if bucket, ok := l.nullifiersSeen[epoch]; ok {
		if _, seen := bucket[nullifier]; seen {
			return types.Wrap(types.KindRLNProof, types.ErrNullifierReused, "")
		}
	}

	if l.countInEpoch >= l.ratePerEpoch {
		return types.Wrap(types.KindRLNProof, types.ErrRateLimitExceeded, "")
	}

	bucket, ok := l.nullifiersSeen[epoch]
	if !ok {
		bucket = make(map[[32]byte]struct{})
		l.nullifiersSeen[epoch] = bucket
	}
	bucket[nullifier] = struct{}{}
	l.countInEpoch++
	return nil
}

func (l *Limiter) evictOlderThanLocked(epoch uint64) {
	if epoch < epochWindow {
		return
	}
	floor := epoch - epochWindow
	for e := range l.nullifiersSeen {
		if e < floor {
			delete(l.nullifiersSeen, e)
		}
	}
}

// CountInEpoch returns how many messages have been admitted in the current epoch, for stats/testing.
func (l *Limiter) CountInEpoch() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countInEpoch
}
