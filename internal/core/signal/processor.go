package signal

import (
	"fmt"
	"time"

	"github.com/predikt-markets/engine/internal/config"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// Clock lets tests control time without sleeping.
type Clock func() time.Time

// BankrollSource gives the processor a read-only view of the bankroll; the
// Position Tracker owns writes (spec §4.H).
type BankrollSource interface {
	Bankroll(account string) (domain.Bankroll, error)
	DailyRealizedLossCents(account string) int64
	OpenPositionCount(eventID string) int
}

// Config bundles the tunables the processor reads every pass. Defaults
// mirror spec §4.F.
type Config struct {
	StalenessTTL      time.Duration
	MinBuyProb        float64
	MaxBuyProb        float64
	CooldownAfterLoss time.Duration
	CooldownAfterWin  time.Duration
	DedupeWindow      time.Duration
	DedupeImprovePct  float64
	KellyFraction     float64
	MaxPositionPct    float64
	MaxEventExposureFraction float64
	Account           string
}

// DefaultConfig returns spec §4.F's defaults.
func DefaultConfig() Config {
	return Config{
		StalenessTTL:      30 * time.Second,
		MinBuyProb:        0.08,
		MaxBuyProb:        0.92,
		CooldownAfterLoss: 45 * time.Second,
		CooldownAfterWin:  15 * time.Second,
		DedupeWindow:      45 * time.Second,
		DedupeImprovePct:  0.01,
		KellyFraction:     0.25,
		MaxPositionPct:    0.05,
		MaxEventExposureFraction: 0.10,
		Account:           "main",
	}
}

// Processor is the gate pipeline between the Opportunity Detector and the
// Execution Engine.
type Processor struct {
	cfg    Config
	limits config.RiskLimits
	bank   BankrollSource
	bus    *events.Bus
	now    Clock

	cooldown  *cooldownGuard
	dedupe    *dedupeGuard
	event     *exposureGuard
	sportCap  *exposureGuard
	openPos   *openPositionGuard
	paused    bool
}

func NewProcessor(cfg Config, limits config.RiskLimits, bank BankrollSource, bus *events.Bus) *Processor {
	return &Processor{
		cfg:      cfg,
		limits:   limits,
		bank:     bank,
		bus:      bus,
		now:      time.Now,
		cooldown: newCooldownGuard(),
		dedupe:   newDedupeGuard(cfg.DedupeWindow),
		event:    newExposureGuard(),
		sportCap: newExposureGuard(),
		openPos:  newOpenPositionGuard(limits.MaxOpenPositions),
	}
}

// Pause and Resume implement the drawdown-guard kill switch (spec §4.H):
// the tracker calls Pause on a pause_trading event; an operator calls
// Resume.
func (p *Processor) Pause()  { p.paused = true }
func (p *Processor) Resume() { p.paused = false }

// NotifyTradeClosed arms the per-(event, entity) cooldown once a position
// settles; pnlCents<=0 imposes the longer post-loss cooldown.
func (p *Processor) NotifyTradeClosed(eventID, entity string, pnlCents int) {
	interval := p.cfg.CooldownAfterWin
	if pnlCents <= 0 {
		interval = p.cfg.CooldownAfterLoss
	}
	p.cooldown.touch(eventID+":"+entity, p.now(), interval)
}

// SetExposureCap registers an exposure cap for a sport/league or asset key,
// read from the nested risk-limit tree at startup (spec §4.F).
func (p *Processor) SetExposureCap(key string, capCents int64) {
	p.sportCap.setCap(key, capCents)
}

// Process runs a candidate signal through every gate in spec order and
// either returns an ExecutionRequest (possibly two, for an arbitrage pair)
// or a RejectReason.
func (p *Processor) Process(c domain.Signal, book domain.OrderBook) ([]domain.ExecutionRequest, domain.RejectReason, bool) {
	now := p.now()

	if p.limits.KillSwitch || p.paused {
		return p.reject(c, domain.RejectKillSwitch)
	}

	// 1. Freshness.
	if now.Sub(book.LastUpdateUTC) >= p.cfg.StalenessTTL {
		return p.reject(c, domain.RejectStale)
	}

	// 2. Fee-adjusted edge.
	buyFee := domain.FeeScheduleFor(c.VenueBuy)
	sellFee := domain.FeeScheduleFor(c.VenueSell)
	entryRate := buyFee.RatePct()
	exitRate := sellFee.RatePct()
	netEdge := c.RawEdgePct - (entryRate + exitRate)
	c.NetEdgePct = netEdge
	if netEdge < p.limits.MinNetEdgePct {
		return p.reject(c, domain.RejectThinEdge)
	}

	// 3. Probability bounds.
	if c.ModelP < p.cfg.MinBuyProb || c.ModelP > p.cfg.MaxBuyProb {
		return p.reject(c, domain.RejectProbBounds)
	}

	// 4. Risk gates.
	if reason, ok := p.riskGates(c); !ok {
		return p.reject(c, reason)
	}

	// 5. Cooldown.
	cooldownKey := c.EventID + ":" + c.Entity
	if !p.cooldown.allow(cooldownKey, now) {
		return p.reject(c, domain.RejectCooldown)
	}

	// 6. Dedupe.
	dedupeKey := fmt.Sprintf("%s:%s:%s:%s", c.EventID, c.Entity, c.Direction, c.VenueBuy)
	if p.dedupe.hasSeen(dedupeKey, now) {
		return p.reject(c, domain.RejectDuplicate)
	}
	p.dedupe.record(dedupeKey, now)

	// 7. Sizing.
	bankroll, err := p.bank.Bankroll(p.cfg.Account)
	if err != nil {
		telemetry.Errorf("signal: read bankroll: %v", err)
		return p.reject(c, domain.RejectInsufficientBank)
	}
	qty := p.size(c, bankroll, entryRate, exitRate)
	if qty < 1 {
		return p.reject(c, domain.RejectInsufficientBank)
	}
	notional := int64(qty * c.BuyPriceCents)
	if !p.event.canSpend(c.EventID, notional) {
		return p.reject(c, domain.RejectEventExposure)
	}
	if c.ExposureKey != "" && !p.sportCap.canSpend(c.ExposureKey, notional) {
		return p.reject(c, domain.RejectSportExposure)
	}
	p.event.record(c.EventID, notional)
	if c.ExposureKey != "" {
		p.sportCap.record(c.ExposureKey, notional)
	}

	// 8. Emit.
	reqs := p.buildRequests(c, qty, now)
	p.openPos.opened()
	telemetry.Metrics.SignalsEmitted.Inc()
	for _, r := range reqs {
		p.bus.Publish(events.Event{
			Type:      events.TypeExecutionRequest,
			EventID:   c.EventID,
			Timestamp: now,
			Payload:   events.ExecutionRequestPayload{Request: r},
		})
	}
	return reqs, "", true
}

func (p *Processor) riskGates(c domain.Signal) (domain.RejectReason, bool) {
	bankroll, err := p.bank.Bankroll(p.cfg.Account)
	if err != nil {
		return domain.RejectInsufficientBank, false
	}
	if bankroll.AvailableCents() <= 0 {
		return domain.RejectInsufficientBank, false
	}
	if p.bank.DailyRealizedLossCents(p.cfg.Account) >= p.limits.DailyLossCapCents {
		return domain.RejectDailyLoss, false
	}
	if bankroll.DrawdownFraction() >= p.limits.DrawdownPauseFrac {
		return domain.RejectDrawdownPause, false
	}
	if !p.openPos.canOpen() {
		return domain.RejectOpenPositions, false
	}
	// Per-event exposure cap scales with current bankroll, so it is
	// registered lazily on the guard's first sight of this event rather
	// than fixed at startup.
	eventCap := int64(p.cfg.MaxEventExposureFraction * float64(bankroll.BalanceCents))
	p.event.setCap(c.EventID, eventCap)

	return "", true
}

func (p *Processor) size(c domain.Signal, b domain.Bankroll, entryRate, exitRate float64) int {
	kellyFrac := p.cfg.KellyFraction
	if c.RawEdgePct > 0.10 {
		kellyFrac *= 0.5
	}
	maxNotional := float64(b.AvailableCents()) / (1 + entryRate + exitRate)
	kellyQty := int(kellyFrac * maxNotional / float64(c.BuyPriceCents))
	maxPosQty := int(p.cfg.MaxPositionPct * float64(b.BalanceCents) / float64(c.BuyPriceCents))

	qty := kellyQty
	if c.LiquidityMin < qty {
		qty = c.LiquidityMin
	}
	if maxPosQty < qty {
		qty = maxPosQty
	}
	if qty < 1 {
		return 0
	}
	return qty
}

func (p *Processor) buildRequests(c domain.Signal, qty int, now time.Time) []domain.ExecutionRequest {
	base := domain.ExecutionRequest{
		SignalID:        c.SignalID,
		EventID:         c.EventID,
		Venue:           c.VenueBuy,
		MarketID:        c.MarketID,
		Side:            domain.SideBuy,
		Outcome:         c.Outcome,
		Quantity:        qty,
		LimitPriceCents: c.BuyPriceCents,
		ExpiresUTC:      now.Add(30 * time.Second),
	}
	base.IdempotencyKey = fmt.Sprintf("%s:%s:%d", c.SignalID, c.VenueBuy, qty)
	base.RequestID = base.IdempotencyKey

	if !c.IsPaired() {
		return []domain.ExecutionRequest{base}
	}

	leg2MarketID := c.MarketIDSell
	if leg2MarketID == "" {
		leg2MarketID = c.MarketID
	}
	// Arbitrage's second leg is also a buy: buy YES on VenueBuy, buy NO
	// on VenueSell — not a sell of the same contract, since each venue
	// quotes its own market for the entity (spec §4.E).
	leg2 := domain.ExecutionRequest{
		SignalID:        c.SignalID,
		EventID:         c.EventID,
		Venue:           c.VenueSell,
		MarketID:        leg2MarketID,
		Side:            domain.SideBuy,
		Outcome:         c.SellOutcome,
		Quantity:        qty,
		LimitPriceCents: c.SellPriceCents,
		ExpiresUTC:      now.Add(10 * time.Second), // arbitrage: execute fast or not at all
	}
	leg2.IdempotencyKey = fmt.Sprintf("%s:%s:%d", c.SignalID, c.VenueSell, qty)
	leg2.RequestID = leg2.IdempotencyKey

	base.ExpiresUTC = now.Add(10 * time.Second)
	base.PairedLegRequestID = leg2.RequestID
	leg2.PairedLegRequestID = base.RequestID

	return []domain.ExecutionRequest{base, leg2}
}

func (p *Processor) reject(c domain.Signal, reason domain.RejectReason) ([]domain.ExecutionRequest, domain.RejectReason, bool) {
	telemetry.Metrics.SignalsRejected.WithLabelValues(string(reason)).Inc()
	p.bus.Publish(events.Event{
		Type:      events.TypeSignalRejected,
		EventID:   c.EventID,
		Timestamp: p.now(),
		Payload:   events.SignalRejectedPayload{Signal: c, Reason: reason},
	})
	return nil, reason, false
}
