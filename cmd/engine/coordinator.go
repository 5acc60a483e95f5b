package main

import (
	"context"
	"sync"
	"time"

	"github.com/predikt-markets/engine/internal/adapters/eventprovider"
	"github.com/predikt-markets/engine/internal/adapters/venue"
	"github.com/predikt-markets/engine/internal/core/execution"
	"github.com/predikt-markets/engine/internal/core/position"
	"github.com/predikt-markets/engine/internal/core/signal"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// coordinator is the piece nothing in internal/core owns: it drives a
// signal through Process -> Execute -> OnFill, keeps the order-book cache
// Process reads, and turns a fresh market binding into a live feed
// subscription. The teacher never needed this glue because
// strategy.Engine, execution.Service and the single GameStore all shared
// one process per sport; here the pipeline stages are independent
// packages wired together only by the bus and this coordinator.
type coordinator struct {
	bus       *events.Bus
	repo      domain.Repository
	processor *signal.Processor
	engine    *execution.Engine
	tracker   *position.Tracker
	feeds     map[domain.Venue]venue.Feed

	booksMu sync.RWMutex
	books   map[string]domain.OrderBook // venue|market_id

	eventsMu   sync.RWMutex
	eventsByID map[string]domain.Event
}

func newCoordinator(
	bus *events.Bus,
	repo domain.Repository,
	processor *signal.Processor,
	engine *execution.Engine,
	tracker *position.Tracker,
	feeds map[domain.Venue]venue.Feed,
) *coordinator {
	c := &coordinator{
		bus:        bus,
		repo:       repo,
		processor:  processor,
		engine:     engine,
		tracker:    tracker,
		feeds:      feeds,
		books:      make(map[string]domain.OrderBook),
		eventsByID: make(map[string]domain.Event),
	}

	bus.Subscribe(events.TypeSignal, c.onSignal)
	bus.Subscribe(events.TypePositionClosed, c.onPositionClosed)
	bus.Subscribe(events.TypePauseTrading, c.onPauseTrading)
	bus.Subscribe(events.TypeMarketPrice, c.onMarketPrice)
	bus.Subscribe(events.TypeEventDiscovered, c.onEventDiscovered)
	bus.Subscribe(events.TypeMarketBinding, c.onMarketBinding)
	return c
}

func bookKey(v domain.Venue, marketID string) string { return string(v) + "|" + marketID }

// onSignal drives one candidate through the full pipeline. Process already
// publishes TypeExecutionRequest/TypeSignalRejected for audit purposes, but
// the coordinator still has to call Execute itself with Process's returned
// requests — nothing subscribes to TypeExecutionRequest to do that.
func (c *coordinator) onSignal(e events.Event) error {
	payload, ok := e.Payload.(events.SignalPayload)
	if !ok {
		return nil
	}
	sig := payload.Signal
	ctx := context.Background()

	book := c.bookFor(sig.VenueBuy, sig.MarketID)
	reqs, reason, accepted := c.processor.Process(sig, book)

	if err := c.repo.AppendSignal(ctx, sig, reason); err != nil {
		telemetry.Errorf("coordinator: persist signal %s: %v", sig.SignalID, err)
	}
	if !accepted {
		return nil
	}

	results, err := c.engine.Execute(ctx, reqs)
	if err != nil {
		telemetry.Warnf("coordinator: execute signal %s: %v", sig.SignalID, err)
	}

	timeStop := c.timeStopFor(sig.EventID)
	for i, res := range results {
		req := reqs[i]
		c.persistTrade(ctx, req, res, sig.Entity)

		if res.Status != domain.OrderFilled || res.FilledQty <= 0 {
			continue
		}
		if _, err := c.tracker.OnFill(ctx, req, res, sig.Entity, timeStop); err != nil {
			telemetry.Errorf("coordinator: open position from %s: %v", req.RequestID, err)
		}
	}
	return nil
}

func (c *coordinator) persistTrade(ctx context.Context, req domain.ExecutionRequest, res domain.ExecutionResult, entity string) {
	rec := domain.TradeRecord{
		Venue:         req.Venue,
		MarketID:      req.MarketID,
		EventID:       req.EventID,
		Entity:        entity,
		Side:          req.Side,
		Outcome:       req.Outcome,
		Qty:           res.FilledQty,
		PriceCents:    res.AvgPriceCents,
		FeeCents:      res.FeesCents,
		Status:        res.Status,
		ClientOrderID: res.ClientOrderID,
	}
	if err := c.repo.AppendTrade(ctx, rec); err != nil {
		telemetry.Errorf("coordinator: persist trade %s: %v", req.RequestID, err)
	}
}

// onPositionClosed records the exit leg as a trade (the Position and its
// Exit carry everything a TradeRecord needs, so this doesn't need its own
// subscription to TypeExecutionResult) and arms the processor's
// win/loss cooldown.
func (c *coordinator) onPositionClosed(e events.Event) error {
	payload, ok := e.Payload.(events.PositionPayload)
	if !ok || payload.Position.Exit == nil {
		return nil
	}
	pos := payload.Position

	rec := domain.TradeRecord{
		Venue:         pos.Venue,
		MarketID:      pos.MarketID,
		EventID:       pos.EventID,
		Entity:        pos.Entity,
		Side:          domain.SideSell,
		Outcome:       pos.Outcome,
		Qty:           pos.QtyOpen,
		PriceCents:    pos.Exit.ExitPriceCents,
		FeeCents:      pos.Exit.ExitFeeCents,
		Status:        domain.OrderFilled,
		ClientOrderID: pos.PositionID + ":exit",
	}
	if err := c.repo.AppendTrade(context.Background(), rec); err != nil {
		telemetry.Errorf("coordinator: persist exit trade %s: %v", pos.PositionID, err)
	}

	c.processor.NotifyTradeClosed(pos.EventID, pos.Entity, pos.Exit.RealizedPnLCents)
	return nil
}

func (c *coordinator) onPauseTrading(e events.Event) error {
	payload, ok := e.Payload.(events.PauseTradingPayload)
	if !ok {
		return nil
	}
	c.processor.Pause()
	telemetry.Warnf("coordinator: trading paused, drawdown %.1f%% on account %s", payload.Fraction*100, payload.Account)
	return nil
}

// onMarketPrice keeps the order-book Process reads, synthesized from the
// single-level MarketPrice summary the bus carries rather than the full
// depth the venue feeds reconcile internally.
func (c *coordinator) onMarketPrice(e events.Event) error {
	payload, ok := e.Payload.(events.MarketPricePayload)
	if !ok {
		return nil
	}
	p := payload.Price

	book := domain.OrderBook{
		Venue:         p.Venue,
		MarketID:      p.MarketID,
		Bids:          make(map[int]int, 1),
		Asks:          make(map[int]int, 1),
		LastUpdateUTC: p.UpdatedUTC,
		Sequence:      p.Sequence,
	}
	if p.YesBidSize > 0 {
		book.Bids[p.YesBidCents] = p.YesBidSize
	}
	if p.YesAskSize > 0 {
		book.Asks[p.YesAskCents] = p.YesAskSize
	}

	c.booksMu.Lock()
	c.books[bookKey(p.Venue, p.MarketID)] = book
	c.booksMu.Unlock()
	return nil
}

func (c *coordinator) bookFor(v domain.Venue, marketID string) domain.OrderBook {
	c.booksMu.RLock()
	defer c.booksMu.RUnlock()
	return c.books[bookKey(v, marketID)]
}

func (c *coordinator) onEventDiscovered(e events.Event) error {
	payload, ok := e.Payload.(events.EventDiscoveredPayload)
	if !ok {
		return nil
	}
	c.eventsMu.Lock()
	c.eventsByID[payload.Event.EventID] = payload.Event
	c.eventsMu.Unlock()
	return nil
}

// timeStopFor returns the remaining time to expiry for a crypto event, or
// zero (no time stop) for everything else — spec §4.H's time-stop only
// applies to strike/expiry markets.
func (c *coordinator) timeStopFor(eventID string) time.Duration {
	ev, ok := c.eventFor(eventID)
	if !ok {
		return 0
	}
	mt, ok := ev.MarketType.(domain.CryptoMarket)
	if !ok {
		return 0
	}
	return time.Until(mt.ExpiryUTC)
}

// GameSecondsFor looks up a sport event's regulation length, for the
// Position Tracker's time-adjusted stop distance (spec §4.H). Wired
// independently from the Event Provider's own scheduler so the tracker
// never shares a clock instance with event discovery.
func (c *coordinator) GameSecondsFor(eventID string) float64 {
	ev, ok := c.eventFor(eventID)
	if !ok {
		return 0
	}
	sm, ok := ev.MarketType.(domain.SportMarket)
	if !ok {
		return 0
	}
	secs, ok := eventprovider.DefaultGameSeconds(sm.Sport)
	if !ok {
		return 0
	}
	return secs
}

func (c *coordinator) eventFor(eventID string) (domain.Event, bool) {
	c.eventsMu.RLock()
	defer c.eventsMu.RUnlock()
	ev, ok := c.eventsByID[eventID]
	return ev, ok
}

// onMarketBinding subscribes the bound venue's feed to the new market as
// soon as the orchestrator resolves it — the orchestrator only tracks the
// binding, it never touches a venue client directly.
func (c *coordinator) onMarketBinding(e events.Event) error {
	payload, ok := e.Payload.(events.MarketBindingPayload)
	if !ok {
		return nil
	}
	feed, ok := c.feeds[payload.Venue]
	if !ok {
		return nil
	}
	if err := feed.SubscribeMarkets([]string{payload.MarketID}); err != nil {
		telemetry.Warnf("coordinator: subscribe %s/%s: %v", payload.Venue, payload.MarketID, err)
	}
	return nil
}
