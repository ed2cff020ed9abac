package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

// fakeRlnProvider is an in-memory RlnProvider for tests. GenerateProof
// returns a deterministic nullifier derived from a counter so tests can
// control reuse/exhaustion scenarios precisely.
type fakeRlnProvider struct {
	mu           sync.Mutex
	epoch        uint64
	pushCount    int64
	failPushFor  map[string]bool // topic -> always fail
	failPushes   int             // fail this many pushes, on any topic, then succeed
	nextNullifier byte
	verifyResult bool
	verifyErr    error
	subCh        chan []byte
}

func newFakeRlnProvider() *fakeRlnProvider {
	return &fakeRlnProvider{
		failPushFor:  make(map[string]bool),
		verifyResult: true,
		subCh:        make(chan []byte, 8),
	}
}

// deliver pushes raw bytes to whatever is watching via Subscribe, as if a
// friend had sent them over the relay topic.
func (f *fakeRlnProvider) deliver(raw []byte) {
	f.subCh <- raw
}

func (f *fakeRlnProvider) GenerateProof(_ context.Context, _ []byte, epoch uint64) (types.RlnProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextNullifier++
	var nullifier [32]byte
	nullifier[0] = f.nextNullifier
	return types.RlnProof{Nullifier: nullifier, ProofBlob: []byte{1, 2, 3}, Epoch: epoch}, nil
}

func (f *fakeRlnProvider) VerifyProof(_ context.Context, _ types.RlnProof, _ []byte) (bool, error) {
	return f.verifyResult, f.verifyErr
}

func (f *fakeRlnProvider) LightPush(_ context.Context, topic string, _ []byte) (string, error) {
	atomic.AddInt64(&f.pushCount, 1)
	f.mu.Lock()
	fail := f.failPushFor[topic]
	if !fail && f.failPushes > 0 {
		f.failPushes--
		fail = true
	}
	f.mu.Unlock()
	if fail {
		return "", errPushFailed
	}
	return "msg-id", nil
}

func (f *fakeRlnProvider) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return f.subCh, nil
}

func (f *fakeRlnProvider) CurrentEpoch(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch, nil
}

func (f *fakeRlnProvider) setEpoch(e uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch = e
}

func (f *fakeRlnProvider) pushes() int64 {
	return atomic.LoadInt64(&f.pushCount)
}

var errPushFailed = &fakeErr{"push failed"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

type relayFakeClock struct {
	now time.Time
}

func (c *relayFakeClock) Now() time.Time                  { return c.now }
func (c *relayFakeClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }
func (c *relayFakeClock) Until(t time.Time) time.Duration { return t.Sub(c.now) }
func (c *relayFakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}
