package eventprovider

import (
	"time"

	"github.com/predikt-markets/engine/internal/domain"
)

// Poll intervals per spec §4.B: idle when nothing is live, faster once
// something is, fastest in the closing stretch of any tracked game.
const (
	IntervalIdle   = 30 * time.Second
	IntervalLive   = 3 * time.Second
	IntervalCrunch = 1 * time.Second

	// crunchFraction is the final share of game time ("last 5%") that
	// triggers the crunch interval.
	crunchFraction = 0.05
)

// defaultGameSeconds are per-sport regulation lengths used to judge how far
// into "crunch" a live event is, absent a venue-provided total. cmd/engine
// may override individual sports via Config.GameSeconds.
var defaultGameSeconds = map[string]float64{
	"hockey":     60 * 60,
	"basketball": 48 * 60,
	"football":   60 * 60,
	"soccer":     90 * 60,
}

// DefaultGameSeconds exposes the per-sport regulation length table to
// callers outside the package (cmd/engine's position tracker wants its own
// independent gameSeconds lookup, not a shared scheduler instance, but
// shouldn't have to duplicate the constants to get it).
func DefaultGameSeconds(sport string) (float64, bool) {
	secs, ok := defaultGameSeconds[sport]
	return secs, ok
}

// scheduler holds the per-sport game lengths and derives the next poll
// interval from the tracked event states the provider passes to it.
type scheduler struct {
	gameSeconds map[string]float64
}

func newScheduler(overrides map[string]float64) *scheduler {
	s := &scheduler{gameSeconds: make(map[string]float64, len(defaultGameSeconds))}
	for sport, secs := range defaultGameSeconds {
		s.gameSeconds[sport] = secs
	}
	for sport, secs := range overrides {
		s.gameSeconds[sport] = secs
	}
	return s
}

// nextInterval picks the fastest interval any tracked live event demands.
func (s *scheduler) nextInterval(states map[string]trackedEvent) time.Duration {
	interval := IntervalIdle
	for _, t := range states {
		if t.state.Status != domain.StatusLive {
			continue
		}
		if interval > IntervalLive {
			interval = IntervalLive
		}
		if s.inCrunch(t) {
			interval = IntervalCrunch
		}
	}
	return interval
}

func (s *scheduler) inCrunch(t trackedEvent) bool {
	total, ok := s.totalSecondsFor(t)
	if !ok || total <= 0 {
		return false
	}
	return t.state.SecondsRemain/total <= crunchFraction
}

func (s *scheduler) totalSecondsFor(t trackedEvent) (float64, bool) {
	sm, ok := t.event.MarketType.(domain.SportMarket)
	if !ok {
		return 0, false
	}
	secs, ok := s.gameSeconds[sm.Sport]
	return secs, ok
}
