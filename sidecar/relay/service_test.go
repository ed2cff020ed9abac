package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/encoder"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

func wireMessage(t *testing.T, e encoder.Envelope, messageID string) []byte {
	t.Helper()
	msg := types.NewProvenMessage(types.RelayMessage{
		MessageID: messageID,
		Payload:   []byte("attestation"),
		SubnetID:  types.SubnetID(1),
	}, types.RlnProof{Epoch: 1})
	b, err := e.EncodeBytes(msg)
	require.NoError(t, err)
	return b
}

func testFriends(n int) []types.FriendRecord {
	var out []types.FriendRecord
	for i := 0; i < n; i++ {
		f, err := types.NewFriendRecord(
			"friend"+string(rune('a'+i)),
			"/ip4/127.0.0.1/tcp/"+string(rune('0'+i))+"000",
			"pub"+string(rune('a'+i)),
		)
		if err != nil {
			panic(err)
		}
		out = append(out, f)
	}
	return out
}

func TestRelayAttestationFansOutToAllFriends(t *testing.T) {
	rln := newFakeRlnProvider()
	svc := New(Config{RatePerEpoch: 100, SeenCacheSize: 10, Seed: 1}, rln, &relayFakeClock{now: time.Now()}, testFriends(3))
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.RelayAttestation(ctx, []byte("attestation"), types.SubnetID(4)))
	require.EqualValues(t, 3, rln.pushes())

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.MessagesSent)
}

func TestRelayAttestationFailsWithNoFriends(t *testing.T) {
	rln := newFakeRlnProvider()
	svc := New(Config{RatePerEpoch: 100, SeenCacheSize: 10, Seed: 1}, rln, &relayFakeClock{now: time.Now()}, nil)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := svc.RelayAttestation(ctx, []byte("attestation"), types.SubnetID(1))
	require.Error(t, err)
	require.Equal(t, types.KindRLNProof, types.KindOf(err))
}

func TestRelayAttestationSurvivesPartialFriendFailure(t *testing.T) {
	rln := newFakeRlnProvider()
	friends := testFriends(2)
	svc := New(Config{RatePerEpoch: 100, SeenCacheSize: 10, Seed: 1}, rln, &relayFakeClock{now: time.Now()}, friends)
	svc.Start()
	defer svc.Stop()

	rln.failPushes = 1 // one of the two friends' pushes fails

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.RelayAttestation(ctx, []byte("x"), types.SubnetID(1)))
}

func TestRateLimitExceededSurfacesAsEvent(t *testing.T) {
	rln := newFakeRlnProvider()
	svc := New(Config{RatePerEpoch: 1, SeenCacheSize: 10, Seed: 1, LocalSubmitRate: 1000, LocalSubmitBurst: 1000}, rln, &relayFakeClock{now: time.Now()}, testFriends(2))
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.RelayAttestation(ctx, []byte("first"), types.SubnetID(1)))
	err := svc.RelayAttestation(ctx, []byte("second"), types.SubnetID(1))
	require.Error(t, err)
	require.Equal(t, types.KindRLNProof, types.KindOf(err))

	var limitEvent *Event
	for limitEvent == nil {
		select {
		case ev := <-svc.Events():
			if ev.Kind == EventRateLimitExceeded {
				limitEvent = &ev
			}
		default:
			t.Fatal("expected an EventRateLimitExceeded event")
		}
	}
	require.EqualValues(t, 1, limitEvent.Limit)
}

func TestAddAndRemoveFriendIsIdempotent(t *testing.T) {
	rln := newFakeRlnProvider()
	svc := New(Config{RatePerEpoch: 100, SeenCacheSize: 10, Seed: 1}, rln, &relayFakeClock{now: time.Now()}, nil)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	friend, err := types.NewFriendRecord("friendx", "/ip4/127.0.0.1/tcp/9000", "pubx")
	require.NoError(t, err)

	require.NoError(t, svc.AddFriend(ctx, friend))
	require.NoError(t, svc.AddFriend(ctx, friend))
	require.NoError(t, svc.RemoveFriend(ctx, "friendx"))
	require.NoError(t, svc.RemoveFriend(ctx, "friendx")) // already absent, still fine
}

func TestWatchDeliversReceivedMessageThroughSameEnvelopeUsedForEgress(t *testing.T) {
	rln := newFakeRlnProvider()
	svc := New(Config{RatePerEpoch: 100, SeenCacheSize: 10, SeenCacheTTL: time.Minute, Seed: 1}, rln, &relayFakeClock{now: time.Now()}, nil)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Watch(ctx, types.SubnetID(1)))

	rln.deliver(wireMessage(t, svc.envelope, "msg-1"))

	require.Eventually(t, func() bool {
		stats, err := svc.Stats(ctx)
		return err == nil && stats.MessagesReceived == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWatchDedupsRepeatedMessageID(t *testing.T) {
	rln := newFakeRlnProvider()
	svc := New(Config{RatePerEpoch: 100, SeenCacheSize: 10, SeenCacheTTL: time.Minute, Seed: 1}, rln, &relayFakeClock{now: time.Now()}, nil)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Watch(ctx, types.SubnetID(1)))

	wire := wireMessage(t, svc.envelope, "msg-dup")
	rln.deliver(wire)
	require.Eventually(t, func() bool {
		stats, err := svc.Stats(ctx)
		return err == nil && stats.MessagesReceived == 1
	}, time.Second, 10*time.Millisecond)

	rln.deliver(wire)
	time.Sleep(50 * time.Millisecond)
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.MessagesReceived) // second delivery deduped, not counted again
}

func TestWatchDropsUndecodableMessageSilently(t *testing.T) {
	rln := newFakeRlnProvider()
	svc := New(Config{RatePerEpoch: 100, SeenCacheSize: 10, SeenCacheTTL: time.Minute, Seed: 1}, rln, &relayFakeClock{now: time.Now()}, nil)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Watch(ctx, types.SubnetID(1)))

	rln.deliver([]byte("not a valid envelope"))

	// Give the receive loop a chance to process the garbage, then confirm
	// nothing was counted and no error event was emitted for it.
	time.Sleep(50 * time.Millisecond)
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.MessagesReceived)

	select {
	case ev := <-svc.Events():
		t.Fatalf("expected no event for a malformed envelope, got %+v", ev)
	default:
	}
}

func TestWatchIsIdempotent(t *testing.T) {
	rln := newFakeRlnProvider()
	svc := New(Config{RatePerEpoch: 100, SeenCacheSize: 10, Seed: 1}, rln, &relayFakeClock{now: time.Now()}, nil)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Watch(ctx, types.SubnetID(1)))
	require.NoError(t, svc.Watch(ctx, types.SubnetID(1)))

	svc.Unwatch(types.SubnetID(1))
	svc.Unwatch(types.SubnetID(1)) // already absent, still fine
}
