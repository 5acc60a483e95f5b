package domain

import "time"

// Side is the trading direction of a signal.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Outcome is which half of a binary market a signal or order targets. A
// market has exactly one MarketID with two complementary outcomes (spec
// §4.E) — Outcome is orthogonal to Side/Direction, which says buy or sell.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// SignalType enumerates the opportunity classes the detector can emit.
type SignalType string

const (
	SignalModelEdgeYes   SignalType = "model_edge_yes"
	SignalModelEdgeNo    SignalType = "model_edge_no"
	SignalArbitrageYesNo SignalType = "arbitrage_yes_no"
	SignalArbitrageNoYes SignalType = "arbitrage_no_yes"
	SignalWinProbShift   SignalType = "win_prob_shift"
)

// Signal is an immutable-after-emission candidate trade produced by the
// opportunity detector and refined by the signal processor.
//
// Invariant: for arbitrage signals, PairedLegID is set and references
// exactly one other signal of the opposite leg.
type Signal struct {
	SignalID      string
	EventID       string
	MarketID      string
	// MarketIDSell is the second leg's venue-native market id for an
	// arbitrage pair, where each venue quotes its own contract for the
	// same entity. Empty for a single-leg signal (MarketID covers it).
	MarketIDSell  string
	Entity        string
	Direction     Side
	// Outcome is the outcome bought on VenueBuy/MarketID — yes for
	// model-edge-yes and the first arbitrage leg, no for model-edge-no.
	Outcome       Outcome
	// SellOutcome is the outcome bought on VenueSell/MarketIDSell for a
	// paired arbitrage signal; unused for a single-leg signal.
	SellOutcome   Outcome
	SignalType    SignalType
	ModelP        float64
	MarketP       float64
	RawEdgePct    float64
	NetEdgePct    float64
	Confidence    float64
	VenueBuy      Venue
	VenueSell     Venue
	BuyPriceCents int
	SellPriceCents int
	LiquidityMin  int
	ExpiresUTC    time.Time
	PairedLegID   string

	// ExposureKey identifies the sport/league or crypto asset this signal
	// counts against for the category exposure cap (spec §4.F), e.g.
	// "sport:hockey:nhl" or "crypto:BTC".
	ExposureKey string
}

// IsPaired reports whether this signal is one leg of an arbitrage pair.
func (s Signal) IsPaired() bool { return s.PairedLegID != "" }

// IsExpired reports whether the signal can no longer be acted on.
// Exactly at ExpiresUTC the signal is rejected (strict inequality).
func (s Signal) IsExpired(now time.Time) bool { return !now.Before(s.ExpiresUTC) }

// RejectReason enumerates the gates a candidate/signal can fail. These are
// published to the observability channel, not treated as errors (spec §7).
type RejectReason string

const (
	RejectStale            RejectReason = "stale_price"
	RejectThinEdge         RejectReason = "thin_edge"
	RejectProbBounds       RejectReason = "prob_out_of_bounds"
	RejectInsufficientBank RejectReason = "insufficient_bankroll"
	RejectDailyLoss        RejectReason = "max_daily_loss"
	RejectEventExposure    RejectReason = "event_exposure_cap"
	RejectSportExposure    RejectReason = "sport_exposure_cap"
	RejectOpenPositions    RejectReason = "open_position_cap"
	RejectCooldown         RejectReason = "cooldown"
	RejectDuplicate        RejectReason = "duplicate_signal"
	RejectLiquidity        RejectReason = "insufficient_liquidity"
	RejectDrawdownPause    RejectReason = "drawdown_pause"
	RejectKillSwitch       RejectReason = "kill_switch"
	RejectExpired          RejectReason = "expired"
)
