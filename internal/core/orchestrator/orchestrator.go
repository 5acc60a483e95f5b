// Package orchestrator owns event discovery, shard placement, and market
// binding, generalising the teacher's per-sport wiring
// (internal/process/sport_process.go's SportProcessConfig + the
// GameStateStore's ticker index) from "one process per sport" into "one
// in-process orchestrator routing many events across a shard pool" (spec
// §4.I).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/predikt-markets/engine/internal/core/shard"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// Binding is one venue's market identifier for one entity of an event.
type Binding struct {
	Venue    domain.Venue
	MarketID string
	Entity   string
}

// DiscoveryService resolves an event's venue market identifiers. A miss
// (timeout or not-found) is not fatal — the orchestrator still tracks the
// event's live state without a tradeable binding (spec §4.I).
type DiscoveryService interface {
	Lookup(ctx context.Context, ev domain.Event) ([]Binding, error)
}

// Clock lets tests control time without sleeping.
type Clock func() time.Time

// Config tunes the orchestrator's timeouts (spec §4.I).
type Config struct {
	// DiscoveryTimeout bounds the discovery-service lookup per new event.
	DiscoveryTimeout time.Duration
	// FinalizationGrace is how long a Final event's bookkeeping survives
	// before archival.
	FinalizationGrace time.Duration
	// SweepInterval is how often the archival sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns spec §4.I's defaults.
func DefaultConfig() Config {
	return Config{
		DiscoveryTimeout:  30 * time.Second,
		FinalizationGrace: time.Hour,
		SweepInterval:     time.Minute,
	}
}

// Orchestrator owns assignments (event_id -> shard_id) and market_bindings
// (event_id -> venue/market_id pairs), and routes bus traffic to the shard
// that owns each event.
type Orchestrator struct {
	cfg       Config
	pool      *shard.Pool
	repo      domain.Repository
	bus       *events.Bus
	discovery DiscoveryService
	now       Clock

	mu          sync.RWMutex
	assignments map[string]int
	bindings    map[string][]Binding
	marketIndex map[string]string // venue|market_id -> event_id
	finalizedAt map[string]time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, pool *shard.Pool, repo domain.Repository, bus *events.Bus, discovery DiscoveryService) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		pool:        pool,
		repo:        repo,
		bus:         bus,
		discovery:   discovery,
		now:         time.Now,
		assignments: make(map[string]int),
		bindings:    make(map[string][]Binding),
		marketIndex: make(map[string]string),
		finalizedAt: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
	}

	bus.Subscribe(events.TypeEventDiscovered, o.onDiscovered)
	bus.Subscribe(events.TypeEventState, o.onEventState)
	bus.Subscribe(events.TypePlay, o.onPlay)
	bus.Subscribe(events.TypeMarketPrice, o.onMarketPrice)
	return o
}

func marketKey(venue domain.Venue, marketID string) string {
	return string(venue) + "|" + marketID
}

// onDiscovered runs the three steps spec §4.I lists for a new event: a
// bounded discovery-service lookup, binding publication, and shard
// placement.
func (o *Orchestrator) onDiscovered(e events.Event) error {
	ev := e.Payload.(events.EventDiscoveredPayload).Event
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.DiscoveryTimeout)
	defer cancel()

	bindings, err := o.discovery.Lookup(ctx, ev)
	if err != nil {
		telemetry.Warnf("orchestrator: discovery lookup for %s: %v (tracking state without a binding)", ev.EventID, err)
		bindings = nil
	}

	shardID, err := o.pool.Place(ev)
	if err != nil {
		telemetry.Errorf("orchestrator: placing event %s: %v (event will not be tracked)", ev.EventID, err)
		return nil
	}

	now := o.now()
	o.mu.Lock()
	o.assignments[ev.EventID] = shardID
	o.bindings[ev.EventID] = bindings
	for _, b := range bindings {
		o.marketIndex[marketKey(b.Venue, b.MarketID)] = ev.EventID
	}
	o.mu.Unlock()

	if err := o.repo.UpsertEvent(ctx, ev); err != nil {
		telemetry.Errorf("orchestrator: upserting event %s: %v", ev.EventID, err)
	}

	o.bus.Publish(events.Event{
		Type:      events.TypeAssignment,
		EventID:   ev.EventID,
		Timestamp: now,
		Payload:   events.AssignmentPayload{EventID: ev.EventID, ShardID: shardID},
	})
	for _, b := range bindings {
		o.bus.Publish(events.Event{
			Type:      events.TypeMarketBinding,
			EventID:   ev.EventID,
			Timestamp: now,
			Payload: events.MarketBindingPayload{
				EventID: ev.EventID, Venue: b.Venue, MarketID: b.MarketID, Entity: b.Entity,
			},
		})
	}
	return nil
}

func (o *Orchestrator) shardFor(eventID string) (*shard.Shard, bool) {
	o.mu.RLock()
	id, ok := o.assignments[eventID]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return o.pool.Get(id)
}

func (o *Orchestrator) onEventState(e events.Event) error {
	payload := e.Payload.(events.EventStatePayload)
	s, ok := o.shardFor(payload.EventID)
	if !ok {
		telemetry.Warnf("orchestrator: state for unassigned event %s, dropping", payload.EventID)
		return nil
	}

	if err := o.repo.AppendEventState(context.Background(), payload.State); err != nil {
		telemetry.Errorf("orchestrator: persisting state for %s: %v", payload.EventID, err)
	}
	s.HandleEventState(payload.EventID, payload.State)

	if payload.State.Status == domain.StatusFinal {
		o.mu.Lock()
		if _, already := o.finalizedAt[payload.EventID]; !already {
			o.finalizedAt[payload.EventID] = o.now()
		}
		o.mu.Unlock()
	}
	return nil
}

func (o *Orchestrator) onPlay(e events.Event) error {
	payload := e.Payload.(events.PlayPayload)
	s, ok := o.shardFor(payload.EventID)
	if !ok {
		return nil
	}
	if err := o.repo.AppendPlay(context.Background(), payload.Play); err != nil {
		telemetry.Errorf("orchestrator: persisting play for %s: %v", payload.EventID, err)
	}
	s.HandlePlay(payload.EventID, payload.Play)
	return nil
}

// onMarketPrice resolves a venue-native price tick back to the event it
// belongs to via the market binding index, the equivalent of the teacher's
// GameStateStore.ByTicker routing.
func (o *Orchestrator) onMarketPrice(e events.Event) error {
	payload := e.Payload.(events.MarketPricePayload)
	price := payload.Price

	o.mu.RLock()
	eventID, ok := o.marketIndex[marketKey(price.Venue, price.MarketID)]
	o.mu.RUnlock()
	if !ok {
		return nil
	}
	if price.EventID == "" {
		price.EventID = eventID
	}

	s, ok := o.shardFor(eventID)
	if !ok {
		return nil
	}
	if err := o.repo.AppendMarketPrice(context.Background(), price); err != nil {
		telemetry.Errorf("orchestrator: persisting price for %s: %v", eventID, err)
	}
	s.HandlePrice(eventID, price)
	return nil
}

// Run starts the background archival sweep. Blocks until ctx is cancelled
// or Stop is called.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	o.wg.Add(1)
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.sweep(ctx)
		}
	}
}

func (o *Orchestrator) Stop() {
	close(o.stopCh)
	o.wg.Wait()
}

// sweep archives events whose finalisation grace window has elapsed. The
// shard fiber itself already self-removed at Final (spec §4.C); this only
// forgets the orchestrator's own bookkeeping and tells the repository to
// archive.
func (o *Orchestrator) sweep(ctx context.Context) {
	now := o.now()

	o.mu.Lock()
	var due []string
	for eventID, at := range o.finalizedAt {
		if now.Sub(at) >= o.cfg.FinalizationGrace {
			due = append(due, eventID)
		}
	}
	for _, eventID := range due {
		for _, b := range o.bindings[eventID] {
			delete(o.marketIndex, marketKey(b.Venue, b.MarketID))
		}
		delete(o.bindings, eventID)
		delete(o.assignments, eventID)
		delete(o.finalizedAt, eventID)
	}
	o.mu.Unlock()

	for _, eventID := range due {
		if err := o.repo.ArchiveEvent(ctx, eventID); err != nil {
			telemetry.Errorf("orchestrator: archiving event %s: %v", eventID, err)
		}
	}
}

// Assignment reports which shard an event is on, if any.
func (o *Orchestrator) Assignment(eventID string) (int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	id, ok := o.assignments[eventID]
	return id, ok
}

// Bindings reports an event's known venue market identifiers.
func (o *Orchestrator) Bindings(eventID string) []Binding {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Binding, len(o.bindings[eventID]))
	copy(out, o.bindings[eventID])
	return out
}
