package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

type fakeGossipSubscriber struct {
	mu          sync.Mutex
	subscribed  map[types.SubnetID]bool
}

func newFakeGossipSubscriber() *fakeGossipSubscriber {
	return &fakeGossipSubscriber{subscribed: make(map[types.SubnetID]bool)}
}

func (f *fakeGossipSubscriber) Subscribe(_ context.Context, subnet types.SubnetID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[subnet] = true
	return nil
}

func (f *fakeGossipSubscriber) Unsubscribe(_ context.Context, subnet types.SubnetID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribed, subnet)
	return nil
}

type fakeDirectPublisher struct {
	mu        sync.Mutex
	published [][]byte
	failNext  bool
}

func (f *fakeDirectPublisher) Publish(_ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errPublishFailed
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeDirectPublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

var errPublishFailed = &supervisorFakeErr{"publish failed"}

type supervisorFakeErr struct{ msg string }

func (e *supervisorFakeErr) Error() string { return e.msg }

type supervisorFakeClock struct {
	now time.Time
}

func (c *supervisorFakeClock) Now() time.Time                  { return c.now }
func (c *supervisorFakeClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }
func (c *supervisorFakeClock) Until(t time.Time) time.Duration { return t.Sub(c.now) }
func (c *supervisorFakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// fakeNetworkingProvider satisfies provider.NetworkingProvider for wiring a
// juggler into the supervisor's test harness.
type fakeNetworkingProvider struct {
	mu        sync.Mutex
	mandatory []types.SubnetID
}

func (f *fakeNetworkingProvider) Subscribe(_ context.Context, _ types.SubnetID) error   { return nil }
func (f *fakeNetworkingProvider) Unsubscribe(_ context.Context, _ types.SubnetID) error { return nil }
func (f *fakeNetworkingProvider) CurrentEpochInfo(_ context.Context) (types.EpochInfo, error) {
	return types.EpochInfo{SlotsPerEpoch: 32, SecondsPerSlot: 12}, nil
}
func (f *fakeNetworkingProvider) ValidatorMandatorySubnets(_ context.Context, _ string) ([]types.SubnetID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mandatory, nil
}

// fakeRlnProvider satisfies provider.RlnProvider for wiring a relay into
// the supervisor's test harness.
type fakeRlnProvider struct{}

func (f *fakeRlnProvider) GenerateProof(_ context.Context, _ []byte, epoch uint64) (types.RlnProof, error) {
	return types.RlnProof{Epoch: epoch}, nil
}
func (f *fakeRlnProvider) VerifyProof(_ context.Context, _ types.RlnProof, _ []byte) (bool, error) {
	return true, nil
}
func (f *fakeRlnProvider) LightPush(_ context.Context, _ string, _ []byte) (string, error) {
	return "id", nil
}
func (f *fakeRlnProvider) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return make(chan []byte), nil
}
func (f *fakeRlnProvider) CurrentEpoch(_ context.Context) (uint64, error) { return 0, nil }
