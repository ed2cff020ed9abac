// Package relay implements the friend relay: the component that fans a
// local attestation out to a fixed set of friend peers, each re-publishing
// it under their own identity so an observer of the wire cannot attribute
// the attestation back to its true origin. It also ingests attestations
// friends forward to us in turn, deduplicating and metering them the same
// way a friend would meter ours.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kevinms/leakybucket-go"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
	"golang.org/x/exp/rand"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/encoder"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/provider"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/ratelimit"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/seencache"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

var log = logrus.WithField("prefix", "relay")

// Config configures a Service's rate limiting, dedup, and wire behavior.
type Config struct {
	RatePerEpoch         uint32
	SeenCacheSize        int
	SeenCacheTTL         time.Duration
	UseSnappyCompression bool
	// LocalSubmitRate and LocalSubmitBurst bound how fast this node may push
	// its own attestations into the mesh, independent of the RLN epoch quota
	// a friend will separately enforce on the receiving end.
	LocalSubmitRate  float64
	LocalSubmitBurst int64
	// Seed, if non-zero, makes friend fanout order deterministic (tests only).
	Seed uint64
}

type recvMsg struct {
	fromFriend string
	raw        []byte
}

// Service is the friend relay, run as a shared.Service. All mutable state is
// owned by the goroutine started in Start; callers interact only through
// Command channels and the exported request methods below.
type Service struct {
	cfg      Config
	rln      provider.RlnProvider
	clock    provider.Clock
	envelope encoder.Envelope
	limiter  *ratelimit.Limiter
	seen     *seencache.Cache
	throttle *leakybucket.Collector
	rng      *rand.Rand

	friends     map[string]types.FriendRecord
	watchCancel map[types.SubnetID]context.CancelFunc

	cmdCh      chan Command
	statsReqCh chan chan Stats
	recvCh     chan recvMsg
	eventCh    chan Event
	shutdown   chan struct{}

	stats Stats

	wg       sync.WaitGroup
	started  bool
	startErr error
}

// New constructs a Service seeded with the given friends.
func New(cfg Config, rln provider.RlnProvider, clock provider.Clock, friends []types.FriendRecord) *Service {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	friendMap := make(map[string]types.FriendRecord, len(friends))
	for _, f := range friends {
		friendMap[f.StableID] = f
	}

	rate := cfg.LocalSubmitRate
	burst := cfg.LocalSubmitBurst
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = 20
	}

	return &Service{
		cfg:         cfg,
		rln:         rln,
		clock:       clock,
		envelope:    encoder.Envelope{UseSnappyCompression: cfg.UseSnappyCompression},
		limiter:     ratelimit.New(cfg.RatePerEpoch),
		seen:        seencache.New(cfg.SeenCacheSize, cfg.SeenCacheTTL),
		throttle:    leakybucket.NewCollector(rate, burst, false),
		rng:         rand.New(rand.NewSource(seed)),
		friends:     friendMap,
		watchCancel: make(map[types.SubnetID]context.CancelFunc),
		cmdCh:       make(chan Command),
		statsReqCh:  make(chan chan Stats),
		recvCh:      make(chan recvMsg, 64),
		eventCh:     make(chan Event, 64),
		shutdown:    make(chan struct{}),
	}
}

// Events returns the channel relay Events are delivered on.
func (s *Service) Events() <-chan Event {
	return s.eventCh
}

// Start implements shared/service.Service.
func (s *Service) Start() {
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
	return nil
}

// Status implements shared/service.Service.
func (s *Service) Status() error {
	return s.startErr
}

// RelayAttestation submits a locally-originated attestation for fanout
// through the friend mesh.
func (s *Service) RelayAttestation(ctx context.Context, payload []byte, subnet types.SubnetID) error {
	return s.sendCommand(ctx, Command{kind: cmdRelay, payload: payload, subnet: subnet})
}

// AddFriend adds a friend to the mesh, idempotently.
func (s *Service) AddFriend(ctx context.Context, friend types.FriendRecord) error {
	return s.sendCommand(ctx, Command{kind: cmdAddFriend, friend: friend})
}

// RemoveFriend drops a friend from the mesh.
func (s *Service) RemoveFriend(ctx context.Context, stableID string) error {
	return s.sendCommand(ctx, Command{kind: cmdRemoveFriend, peerID: stableID})
}

// Stats returns a point-in-time snapshot of relay activity.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	req := make(chan Stats, 1)
	select {
	case s.statsReqCh <- req:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-s.shutdown:
		return Stats{}, types.Newf(types.KindInternal, "relay is shutting down")
	}
	select {
	case st := <-req:
		return st, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Watch starts ingesting inbound friend traffic for subnet's relay topic.
// It is idempotent: watching an already-watched subnet is a no-op.
func (s *Service) Watch(ctx context.Context, subnet types.SubnetID) error {
	if _, ok := s.watchCancel[subnet]; ok {
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	ch, err := s.rln.Subscribe(watchCtx, subnet.RelayTopicName())
	if err != nil {
		cancel()
		return types.Wrap(types.KindNetwork, err, "subscribe to relay topic")
	}
	s.watchCancel[subnet] = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				select {
				case s.recvCh <- recvMsg{raw: raw}:
				case <-watchCtx.Done():
					return
				}
			}
		}
	}()
	return nil
}

// Unwatch stops ingesting a subnet's relay topic.
func (s *Service) Unwatch(subnet types.SubnetID) {
	if cancel, ok := s.watchCancel[subnet]; ok {
		cancel()
		delete(s.watchCancel, subnet)
	}
}

func (s *Service) sendCommand(ctx context.Context, cmd Command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return types.Newf(types.KindInternal, "relay is shutting down")
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run() {
	defer s.wg.Done()
	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-s.shutdown:
			for _, cancel := range s.watchCancel {
				cancel()
			}
			return
		case <-statsTicker.C:
			log.WithField("stats", s.stats).Debug("Friend relay stats")
		case req := <-s.statsReqCh:
			req <- s.stats
		case msg := <-s.recvCh:
			s.handleReceived(msg)
		case cmd := <-s.cmdCh:
			cmd.reply <- s.handleCommand(context.Background(), cmd)
		}
	}
}

func (s *Service) handleCommand(ctx context.Context, cmd Command) error {
	switch cmd.kind {
	case cmdRelay:
		return s.relayAttestation(ctx, cmd.payload, cmd.subnet)
	case cmdAddFriend:
		s.friends[cmd.friend.StableID] = cmd.friend
		s.emit(Event{Kind: EventFriendConnected, FromFriend: cmd.friend.StableID})
		return nil
	case cmdRemoveFriend:
		delete(s.friends, cmd.peerID)
		s.emit(Event{Kind: EventFriendDisconnected, FromFriend: cmd.peerID})
		return nil
	default:
		return types.Newf(types.KindInternal, "unknown command kind %d", cmd.kind)
	}
}

func (s *Service) relayAttestation(ctx context.Context, payload []byte, subnet types.SubnetID) error {
	ctx, span := trace.StartSpan(ctx, "relay.relayAttestation")
	defer span.End()

	if len(s.friends) == 0 {
		return types.Wrap(types.KindRLNProof, types.ErrNoFriendsConfigured, "")
	}

	submissionKey := "local"
	if s.throttle.Add(submissionKey, 1) <= 0 {
		return types.Newf(types.KindRLNProof, "local submission throttle exceeded")
	}

	start := s.clock.Now()

	messageID := fmt.Sprintf("%d_%d", start.UnixNano(), subnet)
	message := types.RelayMessage{
		MessageID: messageID,
		Payload:   payload,
		SubnetID:  subnet,
		CreatedAt: s.clock.Now(),
	}

	epoch, err := s.rln.CurrentEpoch(ctx)
	if err != nil {
		return types.Wrap(types.KindProviderAPI, err, "query RLN epoch")
	}

	body, err := encodeForProof(message)
	if err != nil {
		return types.Wrap(types.KindInternal, err, "serialize message for proof")
	}

	proof, err := s.rln.GenerateProof(ctx, body, epoch)
	if err != nil {
		return types.Wrap(types.KindRLNProof, err, "generate RLN proof")
	}

	if err := s.limiter.CheckAndUpdate(epoch, proof.Nullifier); err != nil {
		s.stats.RateLimitViolations++
		s.emit(Event{Kind: EventRateLimitExceeded, Epoch: epoch, Attempts: s.limiter.CountInEpoch(), Limit: s.cfg.RatePerEpoch})
		return err
	}

	proven := types.NewProvenMessage(message, proof)
	wire, err := s.envelope.EncodeBytes(proven)
	if err != nil {
		return types.Wrap(types.KindInternal, err, "encode proven message")
	}

	order := s.shuffledFriendIDs()
	topic := subnet.RelayTopicName()
	result, err := fanout(ctx, s.rln, topic, wire, len(order))
	if err != nil {
		return err
	}
	if result.successCount == 0 {
		return types.Wrap(types.KindNetwork, types.ErrAllFriendsFailed, "")
	}
	if result.successCount < result.total {
		log.WithFields(logrus.Fields{"succeeded": result.successCount, "total": result.total}).Warn("Only some friends received the relayed message")
	}

	latency := s.clock.Since(start)
	s.stats.MessagesSent++
	s.stats.AverageLatencyMs = (s.stats.AverageLatencyMs*float64(s.stats.MessagesSent-1) + float64(latency.Milliseconds())) / float64(s.stats.MessagesSent)

	s.emit(Event{Kind: EventMessageRelayed, MessageID: messageID, FriendsCount: result.successCount, Latency: latency.Milliseconds()})
	return nil
}

func (s *Service) handleReceived(msg recvMsg) {
	proven, err := s.envelope.DecodeBytes(msg.raw)
	if err != nil {
		// A malformed envelope is dropped silently: it isn't attributable to
		// any friend in particular and isn't worth surfacing as an event.
		return
	}
	if s.seen.Seen(proven.Message.MessageID) {
		return // already forwarded or delivered once; drop the duplicate silently
	}

	epoch, err := s.rln.CurrentEpoch(context.Background())
	if err != nil {
		s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindProviderAPI, err, "query RLN epoch for inbound message")})
		return
	}
	if err := s.limiter.CheckAndUpdate(epoch, proven.RlnProof.Nullifier); err != nil {
		s.emit(Event{Kind: EventRateLimitExceeded, Epoch: epoch, Attempts: s.limiter.CountInEpoch(), Limit: s.cfg.RatePerEpoch})
		return
	}

	body, err := encodeForProof(proven.Message)
	if err != nil {
		s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindInternal, err, "serialize inbound message for verification")})
		return
	}
	valid, err := s.rln.VerifyProof(context.Background(), proven.RlnProof, body)
	if err != nil {
		s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindRLNProof, err, "verify inbound proof")})
		return
	}
	if !valid {
		s.emit(Event{Kind: EventError, Err: types.Newf(types.KindRLNProof, "rejected message %s: invalid proof", proven.Message.MessageID)})
		return
	}

	s.seen.Add(proven.Message.MessageID)
	s.stats.MessagesReceived++
	s.emit(Event{Kind: EventMessageReceived, MessageID: proven.Message.MessageID, FromFriend: proven.SenderTag})
}

// shuffledFriendIDs returns friend stable ids in random order, maximizing
// k-anonymity by never preferring any particular friend as a first hop.
func (s *Service) shuffledFriendIDs() []string {
	ids := make([]string, 0, len(s.friends))
	for id := range s.friends {
		ids = append(ids, id)
	}
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

func encodeForProof(msg types.RelayMessage) ([]byte, error) {
	return []byte(fmt.Sprintf("%s|%d|%d", msg.MessageID, msg.SubnetID, len(msg.Payload))), nil
}

func (s *Service) emit(e Event) {
	select {
	case s.eventCh <- e:
	default:
		log.Warn("Relay event channel full; dropping event")
	}
}
