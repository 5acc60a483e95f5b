package shard

import (
	"time"

	"github.com/predikt-markets/engine/internal/core/detector"
	"github.com/predikt-markets/engine/internal/core/probability"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// priceKey identifies one venue's quote for one entity of the fiber's event.
type priceKey struct {
	venue  domain.Venue
	entity string
}

// fiber is one event's cooperatively scheduled slice of a Shard, modeled on
// the teacher's GameContext: a single goroutine drains an inbox of
// closures, so no field below needs a lock as long as every access happens
// through send().
type fiber struct {
	ev      domain.Event
	cfg     Config
	bus     *events.Bus
	model   probability.Model
	pregame PregameSource
	now     Clock
	det     *detector.Detector

	latestState   domain.EventState
	haveState     bool
	latestPrices  map[priceKey]domain.MarketPrice
	lastProb      domain.Probability
	haveProb      bool
	havePlayBoost bool // set by a scoring/turnover play, consumed by the next state change

	// onFinal is invoked, off this fiber's own goroutine, once the event
	// has transitioned to Final and its last in-flight evaluation has
	// completed — it is how the fiber tells its Shard to self-remove it
	// (spec §4.C) without the Shard calling back into the very goroutine
	// that is asking to be torn down.
	onFinal func()

	inbox chan func()
	stop  chan struct{}
}

func newFiber(ev domain.Event, cfg Config, bus *events.Bus, model probability.Model, pregame PregameSource, now Clock, onFinal func()) *fiber {
	f := &fiber{
		ev:           ev,
		cfg:          cfg,
		bus:          bus,
		model:        model,
		pregame:      pregame,
		now:          now,
		det:          detector.New(cfg.Detector),
		latestPrices: make(map[priceKey]domain.MarketPrice),
		onFinal:      onFinal,
		inbox:        make(chan func(), cfg.InboxSize),
		stop:         make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *fiber) run() {
	defer close(f.stop)
	for fn := range f.inbox {
		fn()
	}
}

// send enqueues a closure to run on this fiber's goroutine. Non-blocking:
// drops the closure and counts an overflow if the inbox is full, so one
// stuck event can never back up the shard's dispatch loop.
func (f *fiber) send(fn func()) {
	select {
	case f.inbox <- fn:
	default:
		telemetry.Metrics.InboxOverflows.WithLabelValues(f.ev.EventID).Inc()
		telemetry.Warnf("shard: event %s inbox full (cap=%d), dropping update", f.ev.EventID, cap(f.inbox))
	}
}

func (f *fiber) close() {
	close(f.inbox)
	<-f.stop
}

// entities returns the one or two entities this event trades.
func (f *fiber) entities() []string {
	if f.ev.HasEntityB() {
		return []string{f.ev.EntityA, f.ev.EntityB}
	}
	return []string{f.ev.EntityA}
}

// onState applies the monotonic state guard, recomputes probability, and
// hands off to the detector when the move is big enough to matter.
// Must only be called from this fiber's own goroutine.
func (f *fiber) onState(state domain.EventState) {
	if f.haveState && !domain.IsNewer(f.latestState, state) {
		return
	}
	f.latestState = state
	f.haveState = true
	telemetry.Metrics.EventStatesReceived.Inc()

	if state.Status == domain.StatusFinal {
		f.evaluateAll()
		if f.onFinal != nil {
			go f.onFinal()
		}
		return
	}

	significantPlay := f.havePlayBoost
	f.havePlayBoost = false

	if f.model == nil {
		return
	}

	for _, entity := range f.entities() {
		prevProb, havePrev := f.lastProb, f.haveProb
		prob := f.model.Estimate(f.ev, state, entity, f.pregameFor(entity))
		f.publishProbability(prob)

		if prob.IsUnknown() {
			continue
		}
		delta := 0.0
		if havePrev {
			delta = absFloat(prob.P - prevProb.P)
		}
		f.lastProb = prob
		f.haveProb = true

		if significantPlay || !havePrev || delta >= f.cfg.ProbabilityDeltaPct {
			f.evaluate(entity, prob)
		}
	}
}

// onPlay records whether the most recent play should force a detector
// re-evaluation on the state change it accompanies.
func (f *fiber) onPlay(play domain.Play) {
	telemetry.Metrics.PlaysObserved.Inc()
	if play.Scoring || play.Kind == domain.PlayTurnover {
		f.havePlayBoost = true
	}
	f.bus.Publish(events.Event{
		Type:      events.TypePlay,
		EventID:   f.ev.EventID,
		Timestamp: f.now(),
		Payload:   events.PlayPayload{EventID: f.ev.EventID, Play: play},
	})
}

// onPrice caches a venue price tick and, if it is still fresh and a
// probability estimate is cached for this entity, re-runs the detector
// against the refreshed quote set.
func (f *fiber) onPrice(price domain.MarketPrice) {
	if !price.IsFresh(f.now(), f.cfg.StalenessTTL) {
		return
	}
	telemetry.Metrics.PricesReceived.Inc()
	f.latestPrices[priceKey{venue: price.Venue, entity: price.ContractEntity}] = price

	if !f.haveState || !f.haveProb {
		return
	}
	f.evaluate(price.ContractEntity, f.lastProb)
}

// evaluate runs the detector for one entity using whichever quotes are
// still fresh, and publishes every surviving candidate signal.
func (f *fiber) evaluate(entity string, prob domain.Probability) {
	quotes := f.freshQuotes(entity)
	if len(quotes) == 0 {
		return
	}
	candidates := f.det.Detect(f.ev, entity, prob, f.ev.MarketType.Key(), quotes)
	for _, c := range candidates {
		f.bus.Publish(events.Event{
			Type:      events.TypeSignal,
			EventID:   f.ev.EventID,
			Timestamp: f.now(),
			Payload:   events.SignalPayload{Signal: c},
		})
	}
}

// evaluateAll re-runs evaluate for every entity, used on final settlement so
// any in-flight opportunity gets one last look before the shard removes
// this event (spec §4.C).
func (f *fiber) evaluateAll() {
	if !f.haveProb {
		return
	}
	for _, entity := range f.entities() {
		f.evaluate(entity, f.lastProb)
	}
}

func (f *fiber) freshQuotes(entity string) []detector.Quote {
	now := f.now()
	var out []detector.Quote
	for key, price := range f.latestPrices {
		if key.entity != entity {
			continue
		}
		if !price.IsFresh(now, f.cfg.StalenessTTL) {
			continue
		}
		out = append(out, detector.Quote{
			Venue:     price.Venue,
			Price:     price,
			LatencyMs: int(now.Sub(price.UpdatedUTC) / time.Millisecond),
		})
	}
	return out
}

func (f *fiber) publishProbability(prob domain.Probability) {
	f.bus.Publish(events.Event{
		Type:      events.TypeProbability,
		EventID:   f.ev.EventID,
		Timestamp: f.now(),
		Payload:   events.ProbabilityPayload{EventID: f.ev.EventID, Probability: prob},
	})
}

func (f *fiber) pregameFor(entity string) domain.Probability {
	if f.pregame == nil {
		return domain.Unknown
	}
	return f.pregame.Pregame(f.ev.EventID, entity)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
