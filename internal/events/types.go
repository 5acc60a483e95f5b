package events

import (
	"time"

	"github.com/predikt-markets/engine/internal/domain"
)

// EventDiscoveredPayload wraps a newly discovered event, carrying its full
// identity (MarketType, entities) so the orchestrator can request market
// bindings and place it on a shard.
type EventDiscoveredPayload struct {
	Event domain.Event
}

// EventStatePayload wraps an Event Provider state update, generalising the
// teacher's GameUpdateEvent to cover both sport and crypto markets.
type EventStatePayload struct {
	EventID string
	State   domain.EventState
}

// PlayPayload wraps a single observed Play.
type PlayPayload struct {
	EventID string
	Play    domain.Play
}

// MarketPricePayload wraps an order book change, generalising the teacher's
// MarketEvent.
type MarketPricePayload struct {
	Venue  domain.Venue
	Price  domain.MarketPrice
}

// ProbabilityPayload wraps a probability recomputation.
type ProbabilityPayload struct {
	EventID     string
	Probability domain.Probability
}

// SignalPayload wraps an emitted signal.
type SignalPayload struct {
	Signal domain.Signal
}

// SignalRejectedPayload wraps a signal that a gate turned down, kept for
// offline analysis rather than execution.
type SignalRejectedPayload struct {
	Signal domain.Signal
	Reason domain.RejectReason
}

// ExecutionRequestPayload wraps a hand-off from the signal processor to the
// execution engine.
type ExecutionRequestPayload struct {
	Request domain.ExecutionRequest
}

// ExecutionResultPayload wraps a resolved order.
type ExecutionResultPayload struct {
	Request domain.ExecutionRequest
	Result  domain.ExecutionResult
}

// PositionPayload wraps a position open or close.
type PositionPayload struct {
	Position domain.Position
}

// BankrollUpdatedPayload wraps a bankroll mutation.
type BankrollUpdatedPayload struct {
	Bankroll domain.Bankroll
}

// AssignmentPayload records which shard owns an event, mirroring
// orchestrator.assignments.
type AssignmentPayload struct {
	EventID string
	ShardID int
}

// MarketBindingPayload records which venue market IDs back an event,
// mirroring orchestrator.market_bindings.
type MarketBindingPayload struct {
	EventID  string
	Venue    domain.Venue
	MarketID string
	Entity   string
}

// HeartbeatPayload is a component liveness ping.
type HeartbeatPayload struct {
	Component string
	At        time.Time
}

// PauseTradingPayload announces a drawdown-triggered trading pause.
type PauseTradingPayload struct {
	Account  string
	Fraction float64
}

// EventSuspendedPayload announces that an event was pulled from further
// arbitrage consideration pending reconciliation (spec §4.G).
type EventSuspendedPayload struct {
	EventID string
	Reason  string
}
