// Package detector turns a model probability and the venue quotes for an
// entity into candidate signals for the signal processor (spec §4.E),
// generalising the teacher's hockey Strategy.findEdges/buildOrderIntent
// (internal/core/strategy/hockey/hockey_strategy.go) from a single fixed
// discrepancy threshold into model-edge-yes, model-edge-no and cross-venue
// arbitrage detection across an arbitrary venue set.
package detector

import (
	"fmt"
	"sort"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
)

// Config tunes the detector's thresholds (spec §4.E).
type Config struct {
	// LiquidityMin is the minimum top-of-book size on the relevant side;
	// candidates below this are dropped.
	LiquidityMin int
}

func DefaultConfig() Config {
	return Config{LiquidityMin: 100}
}

// Quote is one venue's top-of-book view of an entity's contract, tagged
// with the round-trip latency used for venue selection and tie-breaking.
type Quote struct {
	Venue     domain.Venue
	Price     domain.MarketPrice
	LatencyMs int
}

// Clock lets tests control time without sleeping.
type Clock func() time.Time

// Detector evaluates one entity of one event per tick.
type Detector struct {
	cfg Config
	now Clock
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg, now: time.Now}
}

// Detect returns every surviving candidate signal for one entity: a
// model-edge-yes and model-edge-no candidate per venue (collapsed to the
// single best venue per direction, spec's "platform choice"), plus any
// cross-venue arbitrage pairs. Candidates are liquidity-filtered and
// ordered per spec's tie-break rule.
func (d *Detector) Detect(ev domain.Event, entity string, prob domain.Probability, exposureKey string, quotes []Quote) []domain.Signal {
	if len(quotes) == 0 {
		return nil
	}

	now := d.now()
	var candidates []domain.Signal

	// Arbitrage is model-independent — it still fires without a usable
	// probability estimate.
	candidates = append(candidates, d.arbitrage(ev, entity, exposureKey, quotes, now)...)

	if !prob.IsUnknown() {
		if c, ok := d.bestModelEdge(ev, entity, prob, exposureKey, quotes, now, domain.SignalModelEdgeYes); ok {
			candidates = append(candidates, c)
		}
		if c, ok := d.bestModelEdge(ev, entity, prob, exposureKey, quotes, now, domain.SignalModelEdgeNo); ok {
			candidates = append(candidates, c)
		}
	}

	candidates = d.filterLiquidity(candidates)
	sortCandidates(candidates)
	return candidates
}

// bestModelEdge computes the model-edge candidate for every venue quoting
// this entity and proposes the one with the highest fee-adjusted net
// edge ("platform choice", spec §4.E) — venue selection is never
// hard-coded.
func (d *Detector) bestModelEdge(ev domain.Event, entity string, prob domain.Probability, exposureKey string, quotes []Quote, now time.Time, kind domain.SignalType) (domain.Signal, bool) {
	var best domain.Signal
	var bestQuote Quote
	found := false

	for _, q := range quotes {
		c, ok := modelEdgeCandidate(ev, entity, prob, exposureKey, q, now, kind)
		if !ok {
			continue
		}
		if !found || preferVenue(c, q, best, bestQuote) {
			best, bestQuote, found = c, q, true
		}
	}
	return best, found
}

// modelEdgeCandidate builds a single-venue model-edge-yes or
// model-edge-no candidate, or reports ok=false if the raw edge is
// non-positive on this venue.
func modelEdgeCandidate(ev domain.Event, entity string, prob domain.Probability, exposureKey string, q Quote, now time.Time, kind domain.SignalType) (domain.Signal, bool) {
	fee := domain.FeeScheduleFor(q.Venue)
	rate := fee.RatePct()

	var rawEdge float64
	var buyPrice, liquidity int
	direction := domain.SideBuy
	outcome := domain.OutcomeYes

	switch kind {
	case domain.SignalModelEdgeYes:
		if q.Price.YesAskCents <= 0 {
			return domain.Signal{}, false
		}
		rawEdge = prob.P - float64(q.Price.YesAskCents)/100.0
		buyPrice = q.Price.YesAskCents
		liquidity = q.Price.YesAskSize
	case domain.SignalModelEdgeNo:
		if q.Price.YesBidCents <= 0 {
			return domain.Signal{}, false
		}
		rawEdge = float64(q.Price.YesBidCents)/100.0 - prob.P
		buyPrice = q.Price.NoAskCents()
		liquidity = q.Price.YesBidSize
		// Economically a bet against this entity — distinct from the
		// yes-leg direction so dedupe and persistence tell them apart.
		direction = domain.SideSell
		outcome = domain.OutcomeNo
	default:
		return domain.Signal{}, false
	}

	if rawEdge <= 0 {
		return domain.Signal{}, false
	}
	netEdge := rawEdge - 2*rate // entry + exit on the same venue

	return domain.Signal{
		SignalID:      nextSignalID(ev.EventID, entity, string(kind), q.Venue),
		EventID:       ev.EventID,
		MarketID:      q.Price.MarketID,
		Entity:        entity,
		Direction:     direction,
		Outcome:       outcome,
		SignalType:    kind,
		ModelP:        prob.P,
		MarketP:       float64(q.Price.YesAskCents) / 100.0,
		RawEdgePct:    rawEdge,
		NetEdgePct:    netEdge,
		Confidence:    1 - blendDiscount(prob),
		VenueBuy:      q.Venue,
		VenueSell:     q.Venue,
		BuyPriceCents: buyPrice,
		LiquidityMin:  liquidity,
		ExpiresUTC:    now.Add(30 * time.Second),
		ExposureKey:   exposureKey,
	}, true
}

// preferVenue implements the venue-selection tie-break for the same
// model-edge direction: higher net edge wins, then lower latency, then
// Direct over Proxied.
func preferVenue(candidate domain.Signal, cq Quote, incumbent domain.Signal, iq Quote) bool {
	if candidate.NetEdgePct != incumbent.NetEdgePct {
		return candidate.NetEdgePct > incumbent.NetEdgePct
	}
	if cq.LatencyMs != iq.LatencyMs {
		return cq.LatencyMs < iq.LatencyMs
	}
	return venueRank(cq.Venue) < venueRank(iq.Venue)
}

func venueRank(v domain.Venue) int {
	if v == domain.VenueDirect {
		return 0
	}
	return 1
}

// blendDiscount reduces confidence while the pregame prior still carries
// meaningful weight, since the blended estimate hasn't converged on live
// state yet.
func blendDiscount(p domain.Probability) float64 {
	if !p.UsedPregameBlend {
		return 0
	}
	return p.BlendWeight
}

// arbitrage scans every ordered pair of venues quoting this entity, in both
// directions, for a cross-venue mispricing: buy YES on one venue and NO on
// the other (spec
// §4.E). Evaluated in integer cents to avoid float drift on the decisive
// comparison.
func (d *Detector) arbitrage(ev domain.Event, entity string, exposureKey string, quotes []Quote, now time.Time) []domain.Signal {
	if len(quotes) < 2 {
		return nil
	}

	var out []domain.Signal
	for i := range quotes {
		for j := range quotes {
			if i == j {
				continue
			}
			x, y := quotes[i], quotes[j]
			if sig, ok := arbitragePair(ev, entity, exposureKey, x, y, now); ok {
				out = append(out, sig)
			}
		}
	}
	return out
}

// arbitragePair checks buy-YES-on-x / buy-NO-on-y for a guaranteed profit:
// yes_ask_x + no_ask_y < 100 cents.
func arbitragePair(ev domain.Event, entity string, exposureKey string, x, y Quote, now time.Time) (domain.Signal, bool) {
	if x.Price.YesAskCents <= 0 || y.Price.YesBidCents <= 0 {
		return domain.Signal{}, false
	}
	noAskY := y.Price.NoAskCents()
	combined := x.Price.YesAskCents + noAskY
	if combined >= 100 {
		return domain.Signal{}, false
	}
	profitCents := 100 - combined

	liquidity := x.Price.YesAskSize
	if y.Price.YesBidSize < liquidity {
		liquidity = y.Price.YesBidSize
	}

	return domain.Signal{
		SignalID:       nextSignalID(ev.EventID, entity, "arb", x.Venue) + ":" + string(y.Venue),
		EventID:        ev.EventID,
		MarketID:       x.Price.MarketID,
		MarketIDSell:   y.Price.MarketID,
		Entity:         entity,
		Direction:      domain.SideBuy,
		Outcome:        domain.OutcomeYes,
		SellOutcome:    domain.OutcomeNo,
		SignalType:     domain.SignalArbitrageYesNo,
		ModelP:         0, // arbitrage is model-independent; no edge vs a probability estimate
		RawEdgePct:     float64(profitCents) / 100.0,
		NetEdgePct:     float64(profitCents) / 100.0, // fee-adjusted recompute happens downstream (spec §4.F)
		Confidence:     1,
		VenueBuy:       x.Venue,
		VenueSell:      y.Venue,
		BuyPriceCents:  x.Price.YesAskCents,
		SellPriceCents: noAskY,
		LiquidityMin:   liquidity,
		ExpiresUTC:     now.Add(10 * time.Second), // arbitrage must execute quickly or not at all
		PairedLegID:    fmt.Sprintf("%s:%s:%s:%d", ev.EventID, entity, "arb", now.UnixNano()),
		ExposureKey:    exposureKey,
	}, true
}

// filterLiquidity drops candidates below the configured minimum
// top-of-book size (spec §4.E).
func (d *Detector) filterLiquidity(candidates []domain.Signal) []domain.Signal {
	out := candidates[:0]
	for _, c := range candidates {
		if c.LiquidityMin < d.cfg.LiquidityMin {
			continue
		}
		out = append(out, c)
	}
	return out
}

// sortCandidates orders survivors per spec's tie-break: higher net edge
// first, then lower latency (approximated here by venue rank since
// candidates of different signal types may draw on different quotes),
// then Direct over Proxied.
func sortCandidates(candidates []domain.Signal) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.NetEdgePct != b.NetEdgePct {
			return a.NetEdgePct > b.NetEdgePct
		}
		if venueRank(a.VenueBuy) != venueRank(b.VenueBuy) {
			return venueRank(a.VenueBuy) < venueRank(b.VenueBuy)
		}
		return a.SignalID < b.SignalID
	})
}

func nextSignalID(eventID, entity, kind string, venue domain.Venue) string {
	return fmt.Sprintf("%s:%s:%s:%s", eventID, entity, kind, venue)
}
