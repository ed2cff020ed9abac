package juggler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

func testConfig(extra uint32, seed uint64) Config {
	return Config{
		ExtraPerEpoch:   extra,
		ValidatorPubkey: "0xabc",
		SecondsPerEpoch: 384,
		GenesisTime:     time.Now().Add(-time.Hour),
		Seed:            seed,
	}
}

func TestInitializeSubscribesMandatorySubnets(t *testing.T) {
	mandatory := []types.SubnetID{1, 2, 3}
	net := newFakeNetworkingProvider(mandatory)
	svc, err := New(testConfig(4, 1), net, &fakeClock{now: time.Now()})
	require.NoError(t, err)

	svc.Start()
	defer svc.Stop()
	require.NoError(t, svc.Status())

	for _, id := range mandatory {
		require.True(t, net.isSubscribed(id))
	}
	require.Equal(t, len(mandatory)+4, net.subscribedCount())
	require.Equal(t, 4, svc.State().ExtraCount())
}

func TestForceReshuffleKeepsExtraCountStable(t *testing.T) {
	mandatory := []types.SubnetID{0}
	net := newFakeNetworkingProvider(mandatory)
	svc, err := New(testConfig(10, 42), net, &fakeClock{now: time.Now()})
	require.NoError(t, err)

	svc.Start()
	defer svc.Stop()

	before := svc.State().ExtraList()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.ForceReshuffle(ctx))

	after := svc.State().ExtraList()
	require.Len(t, after, 10)
	require.NotContains(t, after, types.SubnetID(0)) // mandatory never drawn as extra
	_ = before
}

func TestZeroExtraSubnetsPerEpoch(t *testing.T) {
	mandatory := []types.SubnetID{5, 6}
	net := newFakeNetworkingProvider(mandatory)
	svc, err := New(testConfig(0, 7), net, &fakeClock{now: time.Now()})
	require.NoError(t, err)

	svc.Start()
	defer svc.Stop()

	require.Equal(t, 0, svc.State().ExtraCount())
	require.Equal(t, len(mandatory), net.subscribedCount())
}

func TestExtraCountClampedWhenMandatorySetIsLarge(t *testing.T) {
	mandatory := types.AllSubnets()[:60] // leaves only 4 non-mandatory candidates
	net := newFakeNetworkingProvider(mandatory)
	svc, err := New(testConfig(32, 9), net, &fakeClock{now: time.Now()})
	require.NoError(t, err)

	svc.Start()
	defer svc.Stop()

	require.Equal(t, 4, svc.State().ExtraCount())
}

func TestAddIsIdempotent(t *testing.T) {
	net := newFakeNetworkingProvider(nil)
	svc, err := New(testConfig(0, 1), net, &fakeClock{now: time.Now()})
	require.NoError(t, err)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, svc.Add(ctx, []types.SubnetID{9}))
	require.NoError(t, svc.Add(ctx, []types.SubnetID{9}))
	require.Equal(t, 1, svc.State().ExtraCount())
}

func TestRemoveNeverTouchesMandatory(t *testing.T) {
	mandatory := []types.SubnetID{2}
	net := newFakeNetworkingProvider(mandatory)
	svc, err := New(testConfig(0, 1), net, &fakeClock{now: time.Now()})
	require.NoError(t, err)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, svc.Remove(ctx, []types.SubnetID{2}))
	require.True(t, net.isSubscribed(2))
	require.Contains(t, svc.State().MandatoryList(), types.SubnetID(2))
}

func TestReshuffleIsDeterministicForAGivenSeed(t *testing.T) {
	net1 := newFakeNetworkingProvider([]types.SubnetID{1})
	svc1, err := New(testConfig(5, 123), net1, &fakeClock{now: time.Now()})
	require.NoError(t, err)
	svc1.Start()
	defer svc1.Stop()

	net2 := newFakeNetworkingProvider([]types.SubnetID{1})
	svc2, err := New(testConfig(5, 123), net2, &fakeClock{now: time.Now()})
	require.NoError(t, err)
	svc2.Start()
	defer svc2.Stop()

	require.Equal(t, svc1.State().ExtraList(), svc2.State().ExtraList())
}
