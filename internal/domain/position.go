package domain

import (
	"fmt"
	"time"
)

// Position is exclusively owned by the Position Tracker; every other
// component sees it by value (a copy), never a pointer into the registry.
type Position struct {
	PositionID      string
	SignalID        string
	EventID         string
	Venue           Venue
	MarketID        string
	Entity          string
	Side            Side
	Outcome         Outcome
	QtyOpen         int
	EntryPriceCents int
	EntryFeeCents   int
	OpenedUTC       time.Time
	StopLossCents   int
	TakeProfitCents int
	TimeStopUTC     time.Time
	HasTimeStop     bool
	Exit            *Exit
}

// Exit records the terminal disposition of a position.
type Exit struct {
	Reason        ExitReason
	ExitPriceCents int
	ExitFeeCents  int
	ClosedUTC     time.Time
	RealizedPnLCents int
}

// ExitReason enumerates why a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTimeStop   ExitReason = "time_stop"
	ExitSettlement ExitReason = "settlement"
)

// IsOpen reports whether the position has not yet been exited.
func (p Position) IsOpen() bool { return p.Exit == nil }

// CostBasisCents is the total cents debited to open this position.
func (p Position) CostBasisCents() int {
	return p.QtyOpen*p.EntryPriceCents + p.EntryFeeCents
}

// Bankroll is the singleton-per-account ledger. Every mutation increments
// Version; a write only succeeds if the caller's expected version matches
// (optimistic concurrency, spec §3/§5).
type Bankroll struct {
	Account          string
	BalanceCents     int64
	PiggybankCents   int64
	ReservedCents    int64
	Version          int64
	PeakCents        int64
	TroughCents      int64
}

// AvailableCents is capital that position sizing may draw on: balance minus
// the protected piggy-bank reserve (spec §4.F).
func (b Bankroll) AvailableCents() int64 {
	avail := b.BalanceCents - b.PiggybankCents
	if avail < 0 {
		return 0
	}
	return avail
}

// DrawdownFraction returns (peak - balance) / peak, or 0 if peak <= 0.
func (b Bankroll) DrawdownFraction() float64 {
	if b.PeakCents <= 0 {
		return 0
	}
	return float64(b.PeakCents-b.BalanceCents) / float64(b.PeakCents)
}

// ErrVersionConflict is returned by a Repository.UpdateBankroll
// implementation when the expected version no longer matches.
var ErrVersionConflict = fmt.Errorf("bankroll: version conflict")
