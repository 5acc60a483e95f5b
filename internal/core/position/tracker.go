// Package position owns the open-position registry and the bankroll,
// generalising the teacher's internal/core/tracking package (which only
// recorded fills for offline settlement) into a live exit loop that closes
// positions on take-profit, stop-loss, time-stop, or event settlement.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// Clock lets tests control time without sleeping.
type Clock func() time.Time

// Executor places an exit order. *execution.Engine satisfies this.
type Executor interface {
	Execute(ctx context.Context, reqs []domain.ExecutionRequest) ([]domain.ExecutionResult, error)
}

// Config bundles the tunables the tracker reads (spec §4.H defaults).
type Config struct {
	ExitCheckInterval time.Duration
	StalenessTTL      time.Duration
	SlippageBps       int
	PiggybankPct      float64
	MaxDrawdownPct    float64
	Stops             StopConfig
	Account           string
}

func DefaultConfig() Config {
	return Config{
		ExitCheckInterval: 500 * time.Millisecond,
		StalenessTTL:      2 * time.Second,
		SlippageBps:       50,
		PiggybankPct:      0.50,
		MaxDrawdownPct:    0.15,
		Stops:             DefaultStopConfig(),
		Account:           "main",
	}
}

// trackedPosition pairs a Position with the per-position lock spec §3
// requires ("mutated only by Position Tracker under a per-position lock").
type trackedPosition struct {
	mu  sync.Mutex
	pos domain.Position
}

// Tracker is the sole owner and mutator of every open Position and of the
// account Bankroll row.
type Tracker struct {
	cfg  Config
	repo domain.Repository
	exec Executor
	bus  *events.Bus
	now  Clock

	mu        sync.RWMutex
	positions map[string]*trackedPosition

	pricesMu sync.RWMutex
	prices   map[string]domain.MarketPrice // key: venue|market_id

	statesMu sync.RWMutex
	states   map[string]domain.EventState // key: event_id

	gameSeconds func(eventID string) float64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewTracker(cfg Config, repo domain.Repository, exec Executor, bus *events.Bus) *Tracker {
	t := &Tracker{
		cfg:         cfg,
		repo:        repo,
		exec:        exec,
		bus:         bus,
		now:         time.Now,
		positions:   make(map[string]*trackedPosition),
		prices:      make(map[string]domain.MarketPrice),
		states:      make(map[string]domain.EventState),
		gameSeconds: func(string) float64 { return 0 },
		stopCh:      make(chan struct{}),
	}
	bus.Subscribe(events.TypeMarketPrice, t.onMarketPrice)
	bus.Subscribe(events.TypeEventState, t.onEventState)
	return t
}

// SetGameSecondsFunc lets cmd/engine wire in the per-sport total game
// length (spec §4.H's time-adjusted stop distance needs game_seconds, which
// is a per-sport constant the tracker otherwise has no way to know).
func (t *Tracker) SetGameSecondsFunc(fn func(eventID string) float64) {
	t.gameSeconds = fn
}

func priceKey(venue domain.Venue, marketID string) string {
	return string(venue) + "|" + marketID
}

func (t *Tracker) onMarketPrice(e events.Event) error {
	payload, ok := e.Payload.(events.MarketPricePayload)
	if !ok {
		return nil
	}
	t.pricesMu.Lock()
	t.prices[priceKey(payload.Price.Venue, payload.Price.MarketID)] = payload.Price
	t.pricesMu.Unlock()
	return nil
}

func (t *Tracker) onEventState(e events.Event) error {
	payload, ok := e.Payload.(events.EventStatePayload)
	if !ok {
		return nil
	}
	t.statesMu.Lock()
	if cur, exists := t.states[payload.EventID]; !exists || domain.IsNewer(cur, payload.State) {
		t.states[payload.EventID] = payload.State
	}
	t.statesMu.Unlock()
	return nil
}

// Run starts the exit-check loop on its own goroutine; call Stop to end it.
func (t *Tracker) Run(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.ExitCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.checkExits(ctx)
			}
		}
	}()
}

func (t *Tracker) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// OnFill creates a position from a filled ExecutionRequest/Result pair
// (spec §4.H "on fill"): debits the bankroll, reserves the max loss, and
// computes sport/time-adjusted stop-loss, take-profit, and optional
// time-stop.
func (t *Tracker) OnFill(ctx context.Context, req domain.ExecutionRequest, res domain.ExecutionResult, entity string, timeStop time.Duration) (domain.Position, error) {
	if res.Status != domain.OrderFilled || res.FilledQty <= 0 {
		return domain.Position{}, fmt.Errorf("position: OnFill called with a non-fill result (%s)", res.Status)
	}

	entryPrice := res.AvgPriceCents
	if entryPrice == 0 {
		entryPrice = req.LimitPriceCents
	}
	costCents := res.FilledQty*entryPrice + res.FeesCents

	now := t.now()
	var secondsRemain, gameSeconds float64
	t.statesMu.RLock()
	if st, ok := t.states[req.EventID]; ok {
		secondsRemain = st.SecondsRemain
	}
	t.statesMu.RUnlock()
	gameSeconds = t.gameSeconds(req.EventID)

	pos := domain.Position{
		PositionID:      req.RequestID,
		SignalID:        req.SignalID,
		EventID:         req.EventID,
		Venue:           req.Venue,
		MarketID:        req.MarketID,
		Entity:          entity,
		Side:            req.Side,
		Outcome:         req.Outcome,
		QtyOpen:         res.FilledQty,
		EntryPriceCents: entryPrice,
		EntryFeeCents:   res.FeesCents,
		OpenedUTC:       now,
		StopLossCents:   t.cfg.Stops.StopLossCents(entryPrice, secondsRemain, gameSeconds),
		TakeProfitCents: t.cfg.Stops.TakeProfitCents(entryPrice, secondsRemain, gameSeconds),
	}
	if timeStop > 0 {
		pos.HasTimeStop = true
		pos.TimeStopUTC = now.Add(timeStop)
	}

	if err := t.applyBankrollCAS(ctx, func(b domain.Bankroll) domain.Bankroll {
		b.BalanceCents -= int64(costCents)
		b.ReservedCents += int64(costCents)
		return b
	}); err != nil {
		return domain.Position{}, fmt.Errorf("position: debit on fill: %w", err)
	}

	t.mu.Lock()
	t.positions[pos.PositionID] = &trackedPosition{pos: pos}
	t.mu.Unlock()

	telemetry.Metrics.OpenPositions.Inc()
	t.bus.Publish(events.Event{
		Type:      events.TypePositionOpened,
		EventID:   req.EventID,
		Timestamp: now,
		Payload:   events.PositionPayload{Position: pos},
	})
	return pos, nil
}

// checkExits runs one pass of the exit loop over every open position (spec
// §4.H).
func (t *Tracker) checkExits(ctx context.Context) {
	now := t.now()

	t.mu.RLock()
	tracked := make([]*trackedPosition, 0, len(t.positions))
	for _, tp := range t.positions {
		tracked = append(tracked, tp)
	}
	t.mu.RUnlock()

	for _, tp := range tracked {
		tp.mu.Lock()
		pos := tp.pos
		if !pos.IsOpen() {
			tp.mu.Unlock()
			continue
		}

		reason, ok := t.evaluateExit(pos, now)
		if !ok {
			tp.mu.Unlock()
			continue
		}
		tp.mu.Unlock()

		t.executeExit(ctx, pos, reason, now)
	}
}

func (t *Tracker) evaluateExit(pos domain.Position, now time.Time) (domain.ExitReason, bool) {
	t.statesMu.RLock()
	st, haveState := t.states[pos.EventID]
	t.statesMu.RUnlock()
	if haveState && st.Status == domain.StatusFinal {
		return domain.ExitSettlement, true
	}

	if pos.HasTimeStop && !now.Before(pos.TimeStopUTC) {
		return domain.ExitTimeStop, true
	}

	t.pricesMu.RLock()
	price, havePrice := t.prices[priceKey(pos.Venue, pos.MarketID)]
	t.pricesMu.RUnlock()
	if !havePrice || !price.IsFresh(now, t.cfg.StalenessTTL) {
		return "", false
	}

	bid := bidCentsFor(price, pos.Outcome)
	if bid >= pos.TakeProfitCents {
		return domain.ExitTakeProfit, true
	}
	if bid <= pos.StopLossCents {
		return domain.ExitStopLoss, true
	}
	return "", false
}

// bidCentsFor returns the bid price for whichever outcome a position holds
// — the yes bid, or its complementary no bid (spec §4.E's single-market,
// two-outcome convention).
func bidCentsFor(price domain.MarketPrice, outcome domain.Outcome) int {
	if outcome == domain.OutcomeNo {
		return price.NoBidCents()
	}
	return price.YesBidCents
}

func (t *Tracker) executeExit(ctx context.Context, pos domain.Position, reason domain.ExitReason, now time.Time) {
	t.pricesMu.RLock()
	price, havePrice := t.prices[priceKey(pos.Venue, pos.MarketID)]
	t.pricesMu.RUnlock()

	exitPrice := pos.EntryPriceCents
	if havePrice {
		exitPrice = slippageAdjusted(bidCentsFor(price, pos.Outcome), t.cfg.SlippageBps)
	}

	req := domain.ExecutionRequest{
		RequestID:       pos.PositionID + ":exit",
		SignalID:        pos.SignalID,
		EventID:         pos.EventID,
		IdempotencyKey:  pos.PositionID + ":exit",
		Venue:           pos.Venue,
		MarketID:        pos.MarketID,
		Side:            domain.SideSell,
		Outcome:         pos.Outcome,
		Quantity:        pos.QtyOpen,
		LimitPriceCents: exitPrice,
		ExpiresUTC:      now.Add(10 * time.Second),
	}

	results, err := t.exec.Execute(ctx, []domain.ExecutionRequest{req})
	if err != nil || len(results) == 0 {
		telemetry.Errorf("position: exit order for %s failed: %v", pos.PositionID, err)
		return
	}
	res := results[0]
	if res.FilledQty <= 0 {
		telemetry.Warnf("position: exit order for %s did not fill (status=%s)", pos.PositionID, res.Status)
		return
	}

	t.settle(ctx, pos.PositionID, reason, res, now)
}

func slippageAdjusted(bidCents, bps int) int {
	worse := bidCents * bps / 10000
	p := bidCents - worse
	if p < 0 {
		p = 0
	}
	return p
}

// settle finalises an exit: computes P&L, credits the bankroll (splitting
// positive P&L between balance and piggybank per spec §4.H), and evaluates
// the drawdown guard.
func (t *Tracker) settle(ctx context.Context, positionID string, reason domain.ExitReason, res domain.ExecutionResult, now time.Time) {
	t.mu.Lock()
	tp, ok := t.positions[positionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.positions, positionID)
	t.mu.Unlock()

	tp.mu.Lock()
	pos := tp.pos
	pnl := (res.AvgPriceCents-pos.EntryPriceCents)*pos.QtyOpen - pos.EntryFeeCents - res.FeesCents
	pos.Exit = &domain.Exit{
		Reason:           reason,
		ExitPriceCents:   res.AvgPriceCents,
		ExitFeeCents:     res.FeesCents,
		ClosedUTC:        now,
		RealizedPnLCents: pnl,
	}
	tp.pos = pos
	tp.mu.Unlock()

	costCents := int64(pos.QtyOpen*pos.EntryPriceCents + pos.EntryFeeCents)
	proceeds := int64(pos.QtyOpen*res.AvgPriceCents - res.FeesCents)

	toPiggybank := int64(0)
	if pnl > 0 {
		toPiggybank = int64(float64(pnl) * t.cfg.PiggybankPct)
	}

	var pausedFraction float64
	var shouldPause bool

	err := t.applyBankrollCAS(ctx, func(b domain.Bankroll) domain.Bankroll {
		b.ReservedCents -= costCents
		if b.ReservedCents < 0 {
			b.ReservedCents = 0
		}
		b.BalanceCents += proceeds - toPiggybank
		b.PiggybankCents += toPiggybank

		if b.BalanceCents > b.PeakCents {
			b.PeakCents = b.BalanceCents
		}
		if b.TroughCents == 0 || b.BalanceCents < b.TroughCents {
			b.TroughCents = b.BalanceCents
		}
		if b.PeakCents > 0 {
			drawdown := float64(b.PeakCents-b.BalanceCents) / float64(b.PeakCents)
			if drawdown >= t.cfg.MaxDrawdownPct {
				shouldPause = true
				pausedFraction = drawdown
			}
		}
		return b
	})
	if err != nil {
		telemetry.Errorf("position: bankroll credit on exit of %s: %v", positionID, err)
	}

	telemetry.Metrics.OpenPositions.Dec()
	t.bus.Publish(events.Event{
		Type:      events.TypePositionClosed,
		Timestamp: now,
		Payload:   events.PositionPayload{Position: pos},
	})

	if shouldPause {
		t.bus.Publish(events.Event{
			Type:      events.TypePauseTrading,
			Timestamp: now,
			Payload:   events.PauseTradingPayload{Account: t.cfg.Account, Fraction: pausedFraction},
		})
	}
}

// applyBankrollCAS reads the bankroll, applies mutate, and writes it back
// under the optimistic-concurrency loop (spec §4.H), retrying a bounded
// number of times on a version conflict.
func (t *Tracker) applyBankrollCAS(ctx context.Context, mutate func(domain.Bankroll) domain.Bankroll) error {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		b, err := t.repo.GetBankroll(ctx, t.cfg.Account)
		if err != nil {
			return fmt.Errorf("read bankroll: %w", err)
		}
		expected := b.Version
		next := mutate(b)
		next.Version = expected + 1

		err = t.repo.UpdateBankroll(ctx, next, expected)
		if err == nil {
			telemetry.Metrics.BankrollCents.Set(float64(next.BalanceCents))
			return nil
		}
		if !isVersionConflict(err) {
			return err
		}
	}
	return fmt.Errorf("position: bankroll CAS did not converge after %d attempts", maxAttempts)
}

func isVersionConflict(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict)
}

// OpenPositions returns a snapshot of every currently open position.
func (t *Tracker) OpenPositions() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Position, 0, len(t.positions))
	for _, tp := range t.positions {
		tp.mu.Lock()
		if tp.pos.IsOpen() {
			out = append(out, tp.pos)
		}
		tp.mu.Unlock()
	}
	return out
}
