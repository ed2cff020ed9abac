package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/juggler"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/metrics"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/relay"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

func testFriends(n int) []types.FriendRecord {
	var out []types.FriendRecord
	addrs := []string{"/ip4/127.0.0.1/tcp/9001", "/ip4/127.0.0.1/tcp/9002", "/ip4/127.0.0.1/tcp/9003"}
	for i := 0; i < n; i++ {
		f, err := types.NewFriendRecord(addrs[i], addrs[i], "pub")
		if err != nil {
			panic(err)
		}
		out = append(out, f)
	}
	return out
}

func newHarness(t *testing.T) (*Service, *fakeDirectPublisher, *metrics.Collector) {
	t.Helper()
	now := time.Now()

	j, err := juggler.New(juggler.Config{
		ExtraPerEpoch:   4,
		ValidatorPubkey: "0xabc",
		SecondsPerEpoch: 384,
		GenesisTime:     now.Add(-time.Hour),
		Seed:            1,
	}, &fakeNetworkingProvider{}, &supervisorFakeClock{now: now})
	require.NoError(t, err)

	r := relay.New(relay.Config{RatePerEpoch: 100, SeenCacheSize: 10, Seed: 1}, &fakeRlnProvider{}, &supervisorFakeClock{now: now}, testFriends(3))

	gossip := newFakeGossipSubscriber()
	publisher := &fakeDirectPublisher{}
	collector := metrics.NewCollector(prometheus.NewRegistry())

	svc := New(Config{HealthCheckInterval: time.Hour}, j, r, gossip, publisher, collector, &supervisorFakeClock{now: now}, 3)
	return svc, publisher, collector
}

func TestSupervisorRelaysAttestationWhenHealthy(t *testing.T) {
	svc, publisher, _ := newHarness(t)
	svc.Start()
	defer svc.Stop()
	require.NoError(t, svc.Status())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.IngestGossip(ctx, GossipMessage{Kind: GossipAttestation, Topic: "/eth2/x/beacon_attestation_1/ssz_snappy", Payload: []byte("att"), SubnetID: 1}))

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, publisher.count()) // relay healthy, no fallback needed
}

func TestSupervisorFallsBackToDirectPublishWhenDisabled(t *testing.T) {
	svc, publisher, _ := newHarness(t)
	svc.Start()
	defer svc.Stop()

	svc.Disable()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.IngestGossip(ctx, GossipMessage{Kind: GossipAttestation, Topic: "t", Payload: []byte("att"), SubnetID: 1}))

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, publisher.count())
}

func TestSupervisorSnapshotReportsFriendCount(t *testing.T) {
	svc, _, _ := newHarness(t)
	svc.Start()
	defer svc.Stop()

	snap := svc.Snapshot()
	require.True(t, snap.Enabled)
	require.Equal(t, 3, snap.FriendsConnected)
}

func TestSupervisorWatchesAndUnwatchesRelayTopicOnJugglerEvents(t *testing.T) {
	svc, _, _ := newHarness(t)
	svc.Start()
	defer svc.Stop()

	subnet := types.SubnetID(7)
	svc.handleJugglerEvent(juggler.Event{Kind: juggler.EventSubnetsJoined, Subnets: []types.SubnetID{subnet}})
	require.NoError(t, svc.relay.Watch(context.Background(), subnet)) // idempotent: already watched

	svc.handleJugglerEvent(juggler.Event{Kind: juggler.EventSubnetsLeft, Subnets: []types.SubnetID{subnet}})
}
