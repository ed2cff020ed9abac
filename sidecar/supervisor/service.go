// Package supervisor wires the subnet juggler, the friend relay, and the
// host gossip bridge together: it subscribes/unsubscribes the gossip engine
// as the juggler reshuffles subnets, classifies and routes inbound gossip
// into the relay, and falls back to direct publish whenever the privacy
// path can't be trusted to deliver a validator's own attestation.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/juggler"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/metrics"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/provider"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/relay"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

var log = logrus.WithField("prefix", "supervisor")

// Config configures the supervisor's health-check cadence and the minimum
// friend count it considers a healthy mesh.
type Config struct {
	HealthCheckInterval      time.Duration
	MinFriendsForHealthyMesh int
}

// GossipSubscriber is the supervisor's view of the host gossip engine: the
// half of NetworkingProvider it needs beyond what the juggler already owns.
type GossipSubscriber interface {
	Subscribe(ctx context.Context, subnet types.SubnetID) error
	Unsubscribe(ctx context.Context, subnet types.SubnetID) error
}

// Status is a point-in-time snapshot of supervisor-level health, folding in
// the original's dashboard/health-check fields.
type Status struct {
	Enabled          bool
	UptimeSeconds    int64
	FriendsConnected int
	RelayHealthy     bool
}

// Service is the supervisor, run as a shared.Service.
type Service struct {
	cfg        Config
	juggler    *juggler.Service
	relay      *relay.Service
	gossip     GossipSubscriber
	publisher  DirectPublisher
	collector  *metrics.Collector
	clock      provider.Clock

	enabled      bool
	relayHealthy bool
	friendCount  int
	startedAt    time.Time

	gossipCh chan GossipMessage
	eventCh  chan Event
	shutdown chan struct{}

	wg       sync.WaitGroup
	started  bool
	startErr error
}

// New constructs a Service. juggler and relay must already be constructed
// (not yet started); Start will start them as part of bringing the
// supervisor up.
func New(cfg Config, j *juggler.Service, r *relay.Service, gossip GossipSubscriber, publisher DirectPublisher, collector *metrics.Collector, clock provider.Clock, friendCount int) *Service {
	return &Service{
		cfg:         cfg,
		juggler:     j,
		relay:       r,
		gossip:      gossip,
		publisher:   publisher,
		collector:   collector,
		clock:       clock,
		enabled:     true,
		relayHealthy: true,
		friendCount: friendCount,
		gossipCh:    make(chan GossipMessage, 256),
		eventCh:     make(chan Event, 32),
		shutdown:    make(chan struct{}),
	}
}

// Events returns the supervisor's own event channel.
func (s *Service) Events() <-chan Event {
	return s.eventCh
}

// Start implements shared/service.Service: it starts the juggler and relay,
// then the supervisor's own select loop.
func (s *Service) Start() {
	s.startedAt = s.clock.Now()
	s.juggler.Start()
	s.relay.Start()
	if err := s.juggler.Status(); err != nil {
		s.startErr = err
		return
	}
	if err := s.relay.Status(); err != nil {
		s.startErr = err
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.run()
}

// Stop implements shared/service.Service.
func (s *Service) Stop() error {
	if !s.started {
		return nil
	}
	close(s.shutdown)
	s.wg.Wait()
	if err := s.relay.Stop(); err != nil {
		return err
	}
	return s.juggler.Stop()
}

// Status implements shared/service.Service.
func (s *Service) Status() error {
	return s.startErr
}

// Enable turns the privacy relay path back on.
func (s *Service) Enable() {
	s.enabled = true
	s.relayHealthy = true
}

// Disable routes every subsequent attestation straight to direct publish,
// for operator-triggered maintenance.
func (s *Service) Disable() { s.enabled = false }

// Snapshot returns the supervisor's current health status.
func (s *Service) Snapshot() Status {
	return Status{
		Enabled:          s.enabled,
		UptimeSeconds:    int64(s.clock.Since(s.startedAt).Seconds()),
		FriendsConnected: s.friendCount,
		RelayHealthy:     s.relayHealthy,
	}
}

// IngestGossip hands a message intercepted from the host gossip engine to
// the supervisor for classification and routing.
func (s *Service) IngestGossip(ctx context.Context, msg GossipMessage) error {
	select {
	case s.gossipCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return types.Newf(types.KindInternal, "supervisor is shutting down")
	}
}

func (s *Service) run() {
	defer s.wg.Done()
	interval := s.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	healthTicker := time.NewTicker(interval)
	defer healthTicker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-healthTicker.C:
			s.performHealthCheck()
		case msg := <-s.gossipCh:
			s.handleGossipMessage(msg)
		case ev, ok := <-s.juggler.Events():
			if !ok {
				continue
			}
			s.handleJugglerEvent(ev)
		case ev, ok := <-s.relay.Events():
			if !ok {
				continue
			}
			s.handleRelayEvent(ev)
		}
	}
}

func (s *Service) handleGossipMessage(msg GossipMessage) {
	correlationID := uuid.NewString()
	switch msg.Kind {
	case GossipAttestation:
		s.collector.MessageSizeBytes.WithLabelValues("attestation").Observe(float64(len(msg.Payload)))
		s.collector.BandwidthBytesTotal.WithLabelValues("inbound").Add(float64(len(msg.Payload)))
		s.relayOrFallback(correlationID, msg)
	case GossipBlock:
		s.collector.MessageSizeBytes.WithLabelValues("block").Observe(float64(len(msg.Payload)))
		s.collector.BandwidthBytesTotal.WithLabelValues("inbound").Add(float64(len(msg.Payload)))
	default:
		s.collector.MessageSizeBytes.WithLabelValues("other").Observe(float64(len(msg.Payload)))
		s.collector.BandwidthBytesTotal.WithLabelValues("inbound").Add(float64(len(msg.Payload)))
	}
}

func (s *Service) relayOrFallback(correlationID string, msg GossipMessage) {
	if !s.enabled || !s.relayHealthy {
		s.fallBackToDirectPublish(correlationID, msg)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.relay.RelayAttestation(ctx, msg.Payload, msg.SubnetID); err != nil {
		log.WithFields(logrus.Fields{"correlation_id": correlationID, "err": err}).Warn("Relay enqueue failed, falling back to direct publish")
		s.relayHealthy = false
		s.fallBackToDirectPublish(correlationID, msg)
	}
}

func (s *Service) fallBackToDirectPublish(correlationID string, msg GossipMessage) {
	if s.publisher == nil {
		s.emit(Event{Kind: EventError, Msg: "no direct publisher configured, attestation dropped", Err: types.Newf(types.KindInternal, "missing DirectPublisher")})
		return
	}
	if err := s.publisher.Publish(msg.Topic, msg.Payload); err != nil {
		s.emit(Event{Kind: EventError, Msg: "direct publish also failed", Err: err})
		return
	}
	s.emit(Event{Kind: EventFellBackToDirectPublish, Msg: correlationID})
}

func (s *Service) handleJugglerEvent(ev juggler.Event) {
	switch ev.Kind {
	case juggler.EventSubnetsJoined:
		for _, id := range ev.Subnets {
			s.collector.SubnetsJoinedTotal.WithLabelValues("extra").Inc()
			if err := s.gossip.Subscribe(context.Background(), id); err != nil {
				log.WithError(err).Warn("Failed to subscribe gossip engine to subnet")
			}
			if err := s.relay.Watch(context.Background(), id); err != nil {
				log.WithError(err).Warn("Failed to watch friend relay topic for subnet")
			}
		}
	case juggler.EventSubnetsLeft:
		for _, id := range ev.Subnets {
			s.collector.SubnetsLeftTotal.WithLabelValues("extra").Inc()
			if err := s.gossip.Unsubscribe(context.Background(), id); err != nil {
				log.WithError(err).Warn("Failed to unsubscribe gossip engine from subnet")
			}
			s.relay.Unwatch(id)
		}
	case juggler.EventEpochReshuffle:
		s.collector.EpochReshuffleDuration.Observe(0)
		s.collector.CurrentSubscribedSubnets.Set(float64(len(ev.Subnets)))
	case juggler.EventError:
		s.emit(Event{Kind: EventError, Msg: "subnet juggler error", Err: ev.Err})
	}
}

func (s *Service) handleRelayEvent(ev relay.Event) {
	switch ev.Kind {
	case relay.EventMessageRelayed:
		s.collector.AttestationsRelayedTotal.Inc()
		s.collector.FriendRelayLatency.Observe(float64(ev.Latency) / 1000.0)
		s.collector.PeerConnections.WithLabelValues("friend").Set(float64(ev.FriendsCount))
		s.collector.PrivacyEventsTotal.WithLabelValues("anonymity_preserved").Inc()
		s.relayHealthy = true
	case relay.EventMessageReceived:
		s.collector.AttestationsReceivedTotal.Inc()
		s.collector.FriendMessagesRecvTotal.WithLabelValues(ev.FromFriend).Inc()
	case relay.EventFriendConnected:
		s.friendCount++
	case relay.EventFriendDisconnected:
		if s.friendCount > 0 {
			s.friendCount--
		}
	case relay.EventRateLimitExceeded:
		s.collector.RateLimitViolationsTotal.Inc()
	case relay.EventError:
		s.relayHealthy = false
		s.emit(Event{Kind: EventError, Msg: "friend relay error", Err: ev.Err})
	}
}

func (s *Service) performHealthCheck() {
	if s.friendCount < s.minFriendsForHealthyMesh() {
		log.Warn("Fewer than the minimum configured friends connected; k-anonymity may be compromised")
	}
	s.emit(Event{Kind: EventHealthCheck, Msg: "health check complete"})
}

// minFriendsDefault mirrors params.MinFriendNodes; it applies when
// Config.MinFriendsForHealthyMesh is left unset.
const minFriendsDefault = 3

func (s *Service) minFriendsForHealthyMesh() int {
	if s.cfg.MinFriendsForHealthyMesh <= 0 {
		return minFriendsDefault
	}
	return s.cfg.MinFriendsForHealthyMesh
}

func (s *Service) emit(e Event) {
	select {
	case s.eventCh <- e:
	default:
		log.Warn("Supervisor event channel full; dropping event")
	}
}
