// Package node wires the sidecar's components into a single runnable
// process: the subnet juggler, the friend relay, the supervisor, and the
// metrics exposition. The supervisor and the metrics exposition are
// registered onto a service.Registry; the supervisor starts and stops the
// juggler and relay itself.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/roughtime"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/service"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/httpprovider"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/juggler"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/metrics"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/params"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/relay"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/supervisor"
)

var log = logrus.WithField("prefix", "node")

// roughtimeClock implements sidecar/provider.Clock over shared/roughtime,
// the teacher's sanctioned wrapper for "now", plus a plain time.After. The
// juggler's epoch ticker does not go through this Clock; it arms its own
// timers with time.After.
type roughtimeClock struct{}

func (roughtimeClock) Now() time.Time                       { return roughtime.Now() }
func (roughtimeClock) Since(t time.Time) time.Duration       { return roughtime.Since(t) }
func (roughtimeClock) Until(t time.Time) time.Duration       { return roughtime.Until(t) }
func (roughtimeClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SidecarNode owns the service registry and the process lifecycle.
type SidecarNode struct {
	cfg        *params.Config
	services   *service.Registry
	lock       sync.RWMutex
	stop       chan struct{}
	supervisor *supervisor.Service
}

// New constructs a SidecarNode: it builds the juggler, relay, supervisor,
// and metrics services from cfg and registers them with the node's
// service registry. The supervisor owns starting/stopping the juggler and
// relay itself, so only the supervisor and the metrics exposition are
// registered directly.
func New(cfg *params.Config) (*SidecarNode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := service.New()
	n := &SidecarNode{
		cfg:      cfg,
		services: registry,
		stop:     make(chan struct{}),
	}

	clock := roughtimeClock{}

	netClient := httpprovider.NewNetworkingClient(cfg.ProviderHTTPAPI)
	rlnClient := httpprovider.NewRlnClient(cfg.Rln.RpcURL)

	secondsPerEpoch := uint64(384)
	genesisTime := roughtime.Now()
	if info, err := netClient.CurrentEpochInfo(context.Background()); err == nil {
		secondsPerEpoch = info.SlotsPerEpoch * info.SecondsPerSlot
		elapsed := time.Duration(info.Slot*info.SecondsPerSlot) * time.Second
		genesisTime = roughtime.Now().Add(-elapsed)
	} else {
		log.WithError(err).Warn("Could not query initial epoch info from beacon node; epoch ticker will phase in on the next provider-reported boundary")
	}

	j, err := juggler.New(juggler.Config{
		ExtraPerEpoch:   cfg.ExtraSubnetsPerEpoch,
		ValidatorPubkey: cfg.ValidatorPubkey,
		SecondsPerEpoch: secondsPerEpoch,
		GenesisTime:     genesisTime,
	}, netClient, clock)
	if err != nil {
		return nil, fmt.Errorf("could not construct subnet juggler: %w", err)
	}

	friends, err := cfg.Friends()
	if err != nil {
		return nil, fmt.Errorf("could not parse configured friends: %w", err)
	}

	r := relay.New(relay.Config{
		RatePerEpoch:         cfg.Rln.RateLimitPerEpoch,
		SeenCacheSize:        cfg.SeenCacheSize,
		SeenCacheTTL:         cfg.SeenCacheTTL,
		UseSnappyCompression: cfg.UseSnappyCompression,
		LocalSubmitRate:      2,
		LocalSubmitBurst:     10,
	}, rlnClient, clock, friends)

	collector, exposition := metrics.NewService(metricsAddr(cfg), registry)

	sup := supervisor.New(supervisor.Config{
		HealthCheckInterval:      cfg.HealthCheckInterval,
		MinFriendsForHealthyMesh: params.MinFriendNodes,
	}, j, r, netClient, netClient, collector, clock, len(friends))
	n.supervisor = sup

	if err := registry.Register(sup); err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		if err := registry.Register(exposition); err != nil {
			return nil, err
		}
	}

	return n, nil
}

func metricsAddr(cfg *params.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Metrics.ListenAddress, cfg.Metrics.ListenPort)
}

// Supervisor exposes the running supervisor so a host's gossip bridge can
// call IngestGossip on it directly.
func (n *SidecarNode) Supervisor() *supervisor.Service {
	return n.supervisor
}

// Start kicks off every registered service and blocks until a shutdown
// signal arrives or Close is called.
func (n *SidecarNode) Start() {
	n.lock.Lock()
	log.Info("Starting privacy sidecar")
	n.services.StartAll()
	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.Infof("Already shutting down, interrupt %d more times to panic", i-1)
			}
		}
		panic("panic closing the privacy sidecar")
	}()

	<-stop
}

// Close stops every registered service and unblocks Start.
func (n *SidecarNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.services.StopAll()
	log.Info("Privacy sidecar stopped")
	close(n.stop)
}
