// Package discovery implements orchestrator.DiscoveryService: it matches a
// newly discovered domain.Event to its tradeable market on each configured
// venue by fuzzy name matching against that venue's open market listing,
// generalising the teacher's internal/core/ticker.Resolver (team-name to
// Kalshi series-ticker matching) from one venue to an arbitrary venue set,
// and from sport-only matching to sport + crypto markets.
package discovery

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/predikt-markets/engine/internal/core/orchestrator"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// Candidate is one open market a venue source returns for a search key.
type Candidate struct {
	MarketID string
	Title    string
}

// Source lists a venue's open markets for a search key — a sport's name
// for a SportMarket lookup, or an asset symbol for a CryptoMarket lookup.
// internal/adapters/direct and internal/adapters/proxied each get a thin
// Source wrapper (see cmd/engine) since their native listing calls take a
// different shape (series ticker vs. free-text tag).
type Source interface {
	Venue() domain.Venue
	Markets(ctx context.Context, key string) ([]Candidate, error)
}

const cacheTTL = 10 * time.Minute

// Resolver implements orchestrator.DiscoveryService across any number of
// venue Sources, caching each (source, key) listing for cacheTTL the same
// way the teacher's Resolver caches Kalshi market pages.
type Resolver struct {
	sources []Source

	mu        sync.RWMutex
	cache     map[cacheKey][]Candidate
	lastFetch map[cacheKey]time.Time
	sfGroup   singleflight.Group
}

type cacheKey struct {
	venue domain.Venue
	key   string
}

func NewResolver(sources ...Source) *Resolver {
	return &Resolver{
		sources:   sources,
		cache:     make(map[cacheKey][]Candidate),
		lastFetch: make(map[cacheKey]time.Time),
	}
}

var _ orchestrator.DiscoveryService = (*Resolver)(nil)

// Lookup implements orchestrator.DiscoveryService.
func (r *Resolver) Lookup(ctx context.Context, ev domain.Event) ([]orchestrator.Binding, error) {
	switch mt := ev.MarketType.(type) {
	case domain.SportMarket:
		return r.lookupSport(ctx, mt, ev)
	case domain.CryptoMarket:
		return r.lookupCrypto(ctx, mt, ev)
	default:
		return nil, nil
	}
}

func (r *Resolver) lookupSport(ctx context.Context, mt domain.SportMarket, ev domain.Event) ([]orchestrator.Binding, error) {
	homeNorm := normalize(ev.EntityA)
	awayNorm := normalize(ev.EntityB)

	var bindings []orchestrator.Binding
	for _, src := range r.sources {
		candidates, err := r.fetch(ctx, src, mt.Sport)
		if err != nil {
			telemetry.Warnf("discovery: %s markets for sport %s: %v", src.Venue(), mt.Sport, err)
			continue
		}
		for _, c := range candidates {
			title := normalize(c.Title)
			hasHome := fuzzyContains(title, homeNorm)
			hasAway := fuzzyContains(title, awayNorm)
			switch {
			case hasHome && !hasAway:
				bindings = append(bindings, orchestrator.Binding{Venue: src.Venue(), MarketID: c.MarketID, Entity: ev.EntityA})
			case hasAway && !hasHome:
				bindings = append(bindings, orchestrator.Binding{Venue: src.Venue(), MarketID: c.MarketID, Entity: ev.EntityB})
			}
		}
	}
	return bindings, nil
}

// lookupCrypto matches a strike market by asset symbol plus the up/down
// direction keyword in its title, since the teacher never traded a
// non-sport market and this has no direct teacher precedent.
func (r *Resolver) lookupCrypto(ctx context.Context, mt domain.CryptoMarket, ev domain.Event) ([]orchestrator.Binding, error) {
	directionWord := "above"
	if mt.Direction == domain.DirectionDown {
		directionWord = "below"
	}
	asset := normalize(mt.Asset)

	var bindings []orchestrator.Binding
	for _, src := range r.sources {
		candidates, err := r.fetch(ctx, src, mt.Asset)
		if err != nil {
			telemetry.Warnf("discovery: %s markets for asset %s: %v", src.Venue(), mt.Asset, err)
			continue
		}
		for _, c := range candidates {
			title := normalize(c.Title)
			if fuzzyContains(title, asset) && strings.Contains(title, directionWord) {
				bindings = append(bindings, orchestrator.Binding{Venue: src.Venue(), MarketID: c.MarketID, Entity: ev.EntityA})
			}
		}
	}
	return bindings, nil
}

// fetch returns a source's cached listing for key, refreshing through a
// singleflight group when the cache has expired.
func (r *Resolver) fetch(ctx context.Context, src Source, key string) ([]Candidate, error) {
	ck := cacheKey{venue: src.Venue(), key: key}

	r.mu.RLock()
	fresh := time.Since(r.lastFetch[ck]) < cacheTTL
	cached := r.cache[ck]
	r.mu.RUnlock()
	if fresh {
		return cached, nil
	}

	v, err, _ := r.sfGroup.Do(string(ck.venue)+"|"+ck.key, func() (any, error) {
		candidates, err := src.Markets(ctx, key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[ck] = candidates
		r.lastFetch[ck] = time.Now()
		r.mu.Unlock()
		return candidates, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Candidate), nil
}

// normalize lowercases, strips diacritics and collapses whitespace — the
// same three-step pipeline as the teacher's ticker.Normalize, minus the
// team-name alias table: this engine's entity names come from the Event
// Provider's own feed rather than Kalshi title text, so the alias table's
// job (papering over Kalshi's abbreviations) doesn't apply here.
func normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if !unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(strings.ToLower(b.String())), " ")
}

// fuzzyContains reports whether a and b share a substring relationship
// either direction, so "boston bruins" matches a title's "bruins".
func fuzzyContains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
