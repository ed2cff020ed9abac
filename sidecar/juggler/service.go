// Package juggler implements the subnet juggler: an epoch-driven controller
// that keeps the node subscribed to its mandatory attestation subnets plus a
// uniformly-random set of cover subnets, reshuffled at every epoch boundary.
package juggler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"
	"golang.org/x/exp/rand"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/provider"
	"github.com/nadeemb53/lighthouse-privacy-sidecar/sidecar/types"
)

var log = logrus.WithField("prefix", "juggler")

// Config configures a Service's subnet-reshuffling behavior.
type Config struct {
	// ExtraPerEpoch is K, the number of cover subnets to hold alongside the
	// mandatory set. Clamped at runtime to 64 - len(mandatory).
	ExtraPerEpoch uint32
	// ValidatorPubkey identifies the validator whose mandatory subnets the
	// provider is queried for each epoch.
	ValidatorPubkey string
	// SecondsPerEpoch and GenesisTime drive the epoch boundary timer.
	SecondsPerEpoch uint64
	GenesisTime     time.Time
	// Seed, if non-zero, makes subnet selection deterministic (tests only).
	Seed uint64
}

// Service is the subnet juggler, run as a shared.Service by the node's
// composition root. All mutable state (Config aside) is owned exclusively
// by the goroutine started in Start; callers interact only through Command
// channels.
type Service struct {
	cfg      Config
	net      provider.NetworkingProvider
	clock    provider.Clock
	rng      *rand.Rand
	cache    *ristretto.Cache
	state    *types.SubnetState
	cmdCh    chan Command
	eventCh  chan Event
	shutdown chan struct{}
	ticker   *EpochTicker
	wg       sync.WaitGroup
	started  bool
	startErr error
}

// New constructs a Service. It does not query the provider or start any
// goroutine until Start is called.
func New(cfg Config, net provider.NetworkingProvider, clock provider.Clock) (*Service, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,
		MaxCost:     1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not build mandatory-subnet cache")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Service{
		cfg:      cfg,
		net:      net,
		clock:    clock,
		rng:      rand.New(rand.NewSource(seed)),
		cache:    cache,
		state:    types.NewSubnetState(),
		cmdCh:    make(chan Command),
		eventCh:  make(chan Event, 16),
		shutdown: make(chan struct{}),
	}, nil
}

// Events returns the channel SubnetsJoined/SubnetsLeft/EpochReshuffle/Error
// events are delivered on.
func (s *Service) Events() <-chan Event {
	return s.eventCh
}

// Start implements shared/service.Service. It blocks only long enough to
// perform the initial provider query and subscription; the reshuffle loop
// itself runs in a background goroutine.
func (s *Service) Start() {
	ctx := context.Background()
	if err := s.initialize(ctx); err != nil {
		log.WithError(err).Error("Failed to initialize subnet juggler")
		s.startErr = err
		return
	}
	s.started = true

	s.ticker = NewEpochTicker(s.cfg.GenesisTime, s.cfg.SecondsPerEpoch)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop implements shared/service.Service: it unsubscribes every extra
// subnet (leaving mandatory subscriptions intact, per the juggler's
// cleanup contract) and waits for the run loop to exit.
func (s *Service) Stop() error {
	if !s.started {
		return nil
	}
	close(s.shutdown)
	s.wg.Wait()
	if s.ticker != nil {
		s.ticker.Done()
	}
	return nil
}

// Status implements shared/service.Service.
func (s *Service) Status() error {
	return s.startErr
}

// ForceReshuffle requests an out-of-band reshuffle, for recovery or testing.
func (s *Service) ForceReshuffle(ctx context.Context) error {
	return s.sendCommand(ctx, Command{kind: cmdForceReshuffle})
}

// Add requests that subnets be joined as extras, idempotently.
func (s *Service) Add(ctx context.Context, subnets []types.SubnetID) error {
	return s.sendCommand(ctx, Command{kind: cmdAdd, subnets: subnets})
}

// Remove requests that subnets be dropped from the extra set. Mandatory
// subnets are never removed by this call.
func (s *Service) Remove(ctx context.Context, subnets []types.SubnetID) error {
	return s.sendCommand(ctx, Command{kind: cmdRemove, subnets: subnets})
}

func (s *Service) sendCommand(ctx context.Context, cmd Command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return types.Newf(types.KindInternal, "juggler is shutting down")
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) initialize(ctx context.Context) error {
	info, err := s.net.CurrentEpochInfo(ctx)
	if err != nil {
		return types.Wrap(types.KindProviderAPI, err, "initial epoch query")
	}
	s.state.CurrentEpoch = info.Epoch

	mandatory, err := s.mandatorySubnets(ctx)
	if err != nil {
		return err
	}
	for _, id := range mandatory {
		if err := s.net.Subscribe(ctx, id); err != nil {
			s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindSubnetManagement, err, "initial mandatory subscribe")})
			continue
		}
		s.state.Mandatory.SetBitAt(uint64(id), true)
	}

	return s.reshuffleExtras(ctx)
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			s.cleanup(ctx)
			return
		case epoch := <-s.ticker.C():
			s.handleEpochBoundary(ctx, epoch)
		case cmd := <-s.cmdCh:
			cmd.reply <- s.handleCommand(ctx, cmd)
		}
	}
}

func (s *Service) handleEpochBoundary(ctx context.Context, epoch uint64) {
	ctx, span := trace.StartSpan(ctx, "juggler.handleEpochBoundary")
	defer span.End()

	if epoch == s.state.CurrentEpoch {
		// Clock jitter delivered a tick for an epoch we already handled.
		return
	}
	s.state.CurrentEpoch = epoch
	s.cache.Del(mandatoryCacheKey)

	start := s.clock.Now()
	if err := s.reconcileMandatory(ctx); err != nil {
		s.emit(Event{Kind: EventError, Err: err})
	}
	if err := s.reshuffleExtras(ctx); err != nil {
		s.emit(Event{Kind: EventError, Err: err})
		return
	}
	s.emit(Event{Kind: EventEpochReshuffle, Epoch: epoch, Subnets: s.state.ExtraList()})
	_ = s.clock.Since(start) // duration available for metrics at the call site
}

func (s *Service) handleCommand(ctx context.Context, cmd Command) error {
	switch cmd.kind {
	case cmdForceReshuffle:
		return s.reshuffleExtras(ctx)
	case cmdAdd:
		return s.add(ctx, cmd.subnets)
	case cmdRemove:
		return s.remove(ctx, cmd.subnets)
	default:
		return types.Newf(types.KindInternal, "unknown command kind %d", cmd.kind)
	}
}

func (s *Service) add(ctx context.Context, subnets []types.SubnetID) error {
	var joined []types.SubnetID
	for _, id := range subnets {
		if s.state.Extra.BitAt(uint64(id)) || s.state.Mandatory.BitAt(uint64(id)) {
			continue // idempotent: already subscribed
		}
		if err := s.net.Subscribe(ctx, id); err != nil {
			return types.Wrap(types.KindSubnetManagement, err, fmt.Sprintf("subscribe subnet %d", id))
		}
		s.state.Extra.SetBitAt(uint64(id), true)
		joined = append(joined, id)
	}
	if len(joined) > 0 {
		s.emit(Event{Kind: EventSubnetsJoined, Subnets: joined})
	}
	return nil
}

func (s *Service) remove(ctx context.Context, subnets []types.SubnetID) error {
	var left []types.SubnetID
	for _, id := range subnets {
		if !s.state.Extra.BitAt(uint64(id)) {
			continue // never touches mandatory
		}
		if err := s.net.Unsubscribe(ctx, id); err != nil {
			return types.Wrap(types.KindSubnetManagement, err, fmt.Sprintf("unsubscribe subnet %d", id))
		}
		s.state.Extra.SetBitAt(uint64(id), false)
		left = append(left, id)
	}
	if len(left) > 0 {
		s.emit(Event{Kind: EventSubnetsLeft, Subnets: left})
	}
	return nil
}

// reconcileMandatory diffs the validator's mandatory set against the prior
// epoch's, subscribing newly-mandatory subnets and unsubscribing ones that
// dropped out, before the extras reshuffle runs.
func (s *Service) reconcileMandatory(ctx context.Context) error {
	want, err := s.mandatorySubnets(ctx)
	if err != nil {
		return err
	}
	wantSet := types.BitvectorFrom(want)

	for i := uint64(0); i <= types.MaxSubnetID; i++ {
		id := types.SubnetID(i)
		wasMandatory := s.state.Mandatory.BitAt(i)
		isMandatory := wantSet.BitAt(i)
		switch {
		case isMandatory && !wasMandatory:
			if err := s.net.Subscribe(ctx, id); err != nil {
				s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindSubnetManagement, err, "subscribe newly-mandatory subnet")})
				continue
			}
			s.state.Mandatory.SetBitAt(i, true)
		case wasMandatory && !isMandatory:
			if err := s.net.Unsubscribe(ctx, id); err != nil {
				s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindSubnetManagement, err, "unsubscribe dropped-mandatory subnet")})
				continue
			}
			s.state.Mandatory.SetBitAt(i, false)
		}
	}
	return nil
}

// reshuffleExtras drops every current extra subnet and draws a fresh,
// uniformly-random replacement set of size K from the subnets that aren't
// mandatory.
func (s *Service) reshuffleExtras(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "juggler.reshuffleExtras")
	defer span.End()

	var left []types.SubnetID
	for _, id := range s.state.ExtraList() {
		if err := s.net.Unsubscribe(ctx, id); err != nil {
			s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindSubnetManagement, err, "unsubscribe extra during reshuffle")})
			continue
		}
		s.state.Extra.SetBitAt(uint64(id), false)
		left = append(left, id)
	}
	if len(left) > 0 {
		s.emit(Event{Kind: EventSubnetsLeft, Subnets: left})
	}

	var candidates []types.SubnetID
	for _, id := range types.AllSubnets() {
		if !s.state.Mandatory.BitAt(uint64(id)) {
			candidates = append(candidates, id)
		}
	}
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	k := int(s.cfg.ExtraPerEpoch)
	if k > len(candidates) {
		k = len(candidates)
	}

	var joined []types.SubnetID
	for _, id := range candidates[:k] {
		if err := s.net.Subscribe(ctx, id); err != nil {
			s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindSubnetManagement, err, "subscribe new extra")})
			continue
		}
		s.state.Extra.SetBitAt(uint64(id), true)
		joined = append(joined, id)
	}
	if len(joined) > 0 {
		s.emit(Event{Kind: EventSubnetsJoined, Subnets: joined})
	}

	s.state.LastReshuffle = s.clock.Now()
	return nil
}

func (s *Service) cleanup(ctx context.Context) {
	var left []types.SubnetID
	for _, id := range s.state.ExtraList() {
		if err := s.net.Unsubscribe(ctx, id); err != nil {
			s.emit(Event{Kind: EventError, Err: types.Wrap(types.KindSubnetManagement, err, "unsubscribe extra during cleanup")})
			continue
		}
		s.state.Extra.SetBitAt(uint64(id), false)
		left = append(left, id)
	}
	if len(left) > 0 {
		s.emit(Event{Kind: EventSubnetsLeft, Subnets: left})
	}
}

const mandatoryCacheKey = "mandatory-subnets"

// mandatorySubnets returns the validator's mandatory subnets, memoizing the
// provider response for up to one epoch; handleEpochBoundary clears the
// memo so each new epoch queries the provider again.
func (s *Service) mandatorySubnets(ctx context.Context) ([]types.SubnetID, error) {
	if cached, ok := s.cache.Get(mandatoryCacheKey); ok {
		return cached.([]types.SubnetID), nil
	}
	subnets, err := s.net.ValidatorMandatorySubnets(ctx, s.cfg.ValidatorPubkey)
	if err != nil {
		return nil, types.Wrap(types.KindProviderAPI, err, "query mandatory subnets")
	}
	s.cache.SetWithTTL(mandatoryCacheKey, subnets, 1, time.Duration(s.cfg.SecondsPerEpoch)*time.Second)
	return subnets, nil
}

// State returns a snapshot of the current subnet state for status reporting.
func (s *Service) State() types.SubnetState {
	return *s.state
}

func (s *Service) emit(e Event) {
	select {
	case s.eventCh <- e:
	default:
		log.Warn("Juggler event channel full; dropping event")
	}
}
