package juggler

import (
	"context"
	"sync"
	"time"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

// fakeNetworkingProvider is an in-memory NetworkingProvider for tests: it
// records subscribe/unsubscribe calls and serves a scriptable mandatory set.
type fakeNetworkingProvider struct {
	mu         sync.Mutex
	subscribed map[types.SubnetID]bool
	mandatory  []types.SubnetID
	epoch      uint64
	subErr     error
}

func newFakeNetworkingProvider(mandatory []types.SubnetID) *fakeNetworkingProvider {
	return &fakeNetworkingProvider{
		subscribed: make(map[types.SubnetID]bool),
		mandatory:  mandatory,
	}
}

func (f *fakeNetworkingProvider) Subscribe(_ context.Context, subnet types.SubnetID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subscribed[subnet] = true
	return nil
}

func (f *fakeNetworkingProvider) Unsubscribe(_ context.Context, subnet types.SubnetID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribed, subnet)
	return nil
}

func (f *fakeNetworkingProvider) CurrentEpochInfo(_ context.Context) (types.EpochInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.EpochInfo{Epoch: f.epoch, SlotsPerEpoch: 32, SecondsPerSlot: 12}, nil
}

func (f *fakeNetworkingProvider) ValidatorMandatorySubnets(_ context.Context, _ string) ([]types.SubnetID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.SubnetID, len(f.mandatory))
	copy(out, f.mandatory)
	return out, nil
}

func (f *fakeNetworkingProvider) subscribedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

func (f *fakeNetworkingProvider) isSubscribed(id types.SubnetID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[id]
}

func (f *fakeNetworkingProvider) setMandatory(ids []types.SubnetID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mandatory = ids
}

// fakeClock is a Clock whose Now never advances on its own; After fires
// immediately, since tests drive the juggler via direct method calls rather
// than the epoch ticker.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time                 { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }
func (c *fakeClock) Until(t time.Time) time.Duration { return t.Sub(c.now) }
func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}
