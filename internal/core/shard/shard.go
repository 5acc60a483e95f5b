// Package shard generalises the teacher's internal/core/state/game.GameContext
// (one goroutine per live game, an inbox channel of closures, a non-blocking
// Send with an overflow counter) into a container that runs many per-event
// fibers cooperatively, capped at a configurable capacity (spec §4.C). The
// teacher never grouped games; Shard is the new piece that does.
package shard

import (
	"errors"
	"sync"
	"time"

	"github.com/predikt-markets/engine/internal/core/detector"
	"github.com/predikt-markets/engine/internal/core/probability"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// ErrAtCapacity is returned by AddEvent when the shard already holds its
// configured maximum number of events.
var ErrAtCapacity = errors.New("shard: at capacity")

// PregameSource supplies the pregame prior the Probability Engine blends
// against live state, where one exists. Unknown entities return the
// Unknown sentinel.
type PregameSource interface {
	Pregame(eventID, entity string) domain.Probability
}

// Clock lets tests control time without sleeping.
type Clock func() time.Time

// Config tunes the per-event loop's trigger thresholds (spec §4.C).
type Config struct {
	// Capacity is the maximum number of events one Shard may hold.
	Capacity int
	// ProbabilityDeltaPct re-triggers the detector on a state change even
	// without a scoring/turnover play.
	ProbabilityDeltaPct float64
	// StalenessTTL gates whether a price change is still worth
	// re-evaluating.
	StalenessTTL time.Duration
	// InboxSize bounds each fiber's closure queue.
	InboxSize int
	Detector  detector.Config
}

// DefaultConfig returns spec §4.C's defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:            20,
		ProbabilityDeltaPct: 0.02,
		StalenessTTL:        30 * time.Second,
		InboxSize:           256,
		Detector:            detector.DefaultConfig(),
	}
}

// Shard owns 1..N events, each running as its own fiber. A Shard is the
// unit of horizontal scaling the orchestrator (spec §4.I) places events on.
type Shard struct {
	id     int
	cfg    Config
	bus    *events.Bus
	models *probability.Registry
	pregame PregameSource
	now    Clock

	mu     sync.RWMutex
	fibers map[string]*fiber
}

func New(id int, cfg Config, bus *events.Bus, models *probability.Registry, pregame PregameSource) *Shard {
	return &Shard{
		id:      id,
		cfg:     cfg,
		bus:     bus,
		models:  models,
		pregame: pregame,
		now:     time.Now,
		fibers:  make(map[string]*fiber),
	}
}

func (s *Shard) ID() int { return s.id }

// Len reports how many events this shard currently holds.
func (s *Shard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fibers)
}

// HasCapacity reports whether AddEvent would currently succeed.
func (s *Shard) HasCapacity() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fibers) < s.cfg.Capacity
}

// AddEvent starts a fiber for ev. Fails if the shard is at capacity;
// adding an event the shard already owns is a no-op that returns nil.
func (s *Shard) AddEvent(ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fibers[ev.EventID]; ok {
		return nil
	}
	if len(s.fibers) >= s.cfg.Capacity {
		return ErrAtCapacity
	}

	model, _ := s.models.Get(ev.MarketType)
	eventID := ev.EventID
	f := newFiber(ev, s.cfg, s.bus, model, s.pregame, s.now, func() { s.RemoveEvent(eventID) })
	s.fibers[ev.EventID] = f
	telemetry.Metrics.ActiveEvents.Inc()
	return nil
}

// RemoveEvent cancels the fiber and releases its cached state. Safe to call
// more than once for the same event.
func (s *Shard) RemoveEvent(eventID string) {
	s.mu.Lock()
	f, ok := s.fibers[eventID]
	if ok {
		delete(s.fibers, eventID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	f.close()
	telemetry.Metrics.ActiveEvents.Dec()
	s.bus.Publish(events.Event{
		Type:      events.TypeHeartbeat,
		EventID:   eventID,
		Timestamp: s.now(),
		Payload:   events.HeartbeatPayload{Component: "shard_fiber_terminal", At: s.now()},
	})
}

// HandleEventState routes a state update to its event's fiber, if this
// shard owns it.
func (s *Shard) HandleEventState(eventID string, state domain.EventState) {
	if f := s.lookup(eventID); f != nil {
		f.send(func() { f.onState(state) })
	}
}

// HandlePlay routes an observed play to its event's fiber.
func (s *Shard) HandlePlay(eventID string, play domain.Play) {
	if f := s.lookup(eventID); f != nil {
		f.send(func() { f.onPlay(play) })
	}
}

// HandlePrice routes a price tick to its event's fiber. Ticks are not
// filtered by entity; the fiber evaluates each one for its ContractEntity.
func (s *Shard) HandlePrice(eventID string, price domain.MarketPrice) {
	if f := s.lookup(eventID); f != nil {
		f.send(func() { f.onPrice(price) })
	}
}

func (s *Shard) lookup(eventID string) *fiber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fibers[eventID]
}

// Events lists the event IDs currently assigned to this shard.
func (s *Shard) Events() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.fibers))
	for id := range s.fibers {
		out = append(out, id)
	}
	return out
}
