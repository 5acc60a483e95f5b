// Package signal implements the Signal Processor: the gate pipeline a
// candidate signal must clear before it becomes an execution request
// (spec §4.F). The gates generalise the teacher's execution/lanes package
// (RiskGuard, SpendGuard, Throttle, IdempotencyGuard) from a single
// (sport, league) lane keyed on (ticker, score) to an arbitrary market-kind
// keyed on (event_id, entity, signal_type).
package signal

import (
	"sync"
	"sync/atomic"
	"time"
)

// cooldownGuard enforces a minimum interval between signals for the same
// key, generalising the teacher's Throttle. Unlike the teacher's fixed
// interval, the caller supplies the interval at touch time so a loss can
// impose a longer cooldown than a win (spec §4.F).
type cooldownGuard struct {
	mu          sync.Mutex
	nextAllowed map[string]time.Time
}

func newCooldownGuard() *cooldownGuard {
	return &cooldownGuard{nextAllowed: make(map[string]time.Time)}
}

func (g *cooldownGuard) allow(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until, ok := g.nextAllowed[key]; ok && now.Before(until) {
		return false
	}
	return true
}

func (g *cooldownGuard) touch(key string, now time.Time, interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextAllowed[key] = now.Add(interval)
}

// dedupeGuard prevents re-emitting a signal for the same key within a TTL
// window, generalising the teacher's IdempotencyGuard (which never expired
// entries, relying on an explicit Clear() after a score overturn). Ours
// expires entries on a TTL so a TTL sweep — not an external trigger — is
// what lets a key fire again.
type dedupeGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newDedupeGuard(ttl time.Duration) *dedupeGuard {
	return &dedupeGuard{ttl: ttl, seen: make(map[string]time.Time)}
}

func (g *dedupeGuard) hasSeen(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	seenAt, ok := g.seen[key]
	if !ok {
		return false
	}
	if now.Sub(seenAt) >= g.ttl {
		delete(g.seen, key)
		return false
	}
	return true
}

func (g *dedupeGuard) record(key string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[key] = now
}

// sweep drops every entry older than the TTL. Call periodically so the map
// doesn't grow unbounded across a long-running event.
func (g *dedupeGuard) sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, t := range g.seen {
		if now.Sub(t) >= g.ttl {
			delete(g.seen, k)
		}
	}
}

// exposureGuard tracks cents committed per key (event, sport, or asset) and
// enforces a cap, generalising the teacher's SpendGuard from a single
// per-sport cap to an arbitrary hierarchy of caps checked in sequence.
type exposureGuard struct {
	mu     sync.Mutex
	capped map[string]int64
	spent  map[string]int64
}

func newExposureGuard() *exposureGuard {
	return &exposureGuard{capped: make(map[string]int64), spent: make(map[string]int64)}
}

func (g *exposureGuard) setCap(key string, capCents int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.capped[key] = capCents
}

func (g *exposureGuard) canSpend(key string, cents int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cap, ok := g.capped[key]
	if !ok {
		return true // no cap configured for this key
	}
	return g.spent[key]+cents <= cap
}

func (g *exposureGuard) record(key string, cents int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.spent[key] += cents
}

// openPositionGuard caps the number of simultaneously open positions,
// generalising the teacher's RiskGuard.openCount.
type openPositionGuard struct {
	max  int32
	open atomic.Int32
}

func newOpenPositionGuard(max int) *openPositionGuard {
	return &openPositionGuard{max: int32(max)}
}

func (g *openPositionGuard) canOpen() bool { return g.open.Load() < g.max }
func (g *openPositionGuard) opened()       { g.open.Add(1) }
func (g *openPositionGuard) closed()       { g.open.Add(-1) }
