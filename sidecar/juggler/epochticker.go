package juggler

import "time"

// EpochTicker emits the current epoch number on every epoch boundary.
// Reconstructed from shared/slotutil/epochticker_test.go, the only
// surviving trace of the teacher's original EpochTicker (its implementation
// file was stripped from the retrieval pack): since/until/after are
// injected so tests can drive boundaries deterministically without
// sleeping real time.
type EpochTicker struct {
	c    chan uint64
	done chan struct{}
}

// NewEpochTicker constructs and starts a ticker against the real wall clock.
func NewEpochTicker(genesisTime time.Time, secondsPerEpoch uint64) *EpochTicker {
	t := &EpochTicker{c: make(chan uint64), done: make(chan struct{})}
	t.start(genesisTime, secondsPerEpoch, time.Since, time.Until, time.After)
	return t
}

// C returns the channel epoch numbers are delivered on.
func (t *EpochTicker) C() <-chan uint64 {
	return t.c
}

// Done stops the ticker's background goroutine.
func (t *EpochTicker) Done() {
	close(t.done)
}

func (t *EpochTicker) start(
	genesisTime time.Time,
	secondsPerEpoch uint64,
	since, until func(time.Time) time.Duration,
	after func(time.Duration) <-chan time.Time,
) {
	d := time.Duration(secondsPerEpoch) * time.Second

	go func() {
		var epoch uint64
		var nextTickTime time.Time
		sinceGenesis := since(genesisTime)
		if sinceGenesis < 0 {
			epoch = 0
			nextTickTime = genesisTime
		} else {
			nextTick := sinceGenesis.Truncate(d) + d
			epoch = uint64(nextTick / d)
			nextTickTime = genesisTime.Add(nextTick)
		}

		select {
		case <-t.done:
			return
		case <-after(until(nextTickTime)):
		}
		select {
		case <-t.done:
			return
		case t.c <- epoch:
		}

		for {
			nextTickTime = nextTickTime.Add(d)
			select {
			case <-t.done:
				return
			case <-after(until(nextTickTime)):
			}
			epoch++
			select {
			case <-t.done:
				return
			case t.c <- epoch:
			}
		}
	}()
}
