package events

import "time"

// Type names every event that can flow through the bus. Channel names in
// comments mirror the indicative names in spec §6.
type Type string

const (
	// TypeEventDiscovered fires the first time the Event Provider sees an
	// event_id, before any EventState for it — this is what triggers the
	// orchestrator's discovery-service lookup and shard placement (spec
	// §4.I).
	TypeEventDiscovered Type = "event_discovered"
	// TypeEventState fires on every Event Provider state update.
	// game.{event_id}.state
	TypeEventState Type = "event_state"
	// TypePlay fires on every new Play observed for an event.
	// game.{event_id}.play
	TypePlay Type = "play"
	// TypeMarketPrice fires on every venue order book change.
	// prices.{venue}.{market_id}
	TypeMarketPrice Type = "market_price"
	// TypeProbability fires whenever the probability engine recomputes.
	TypeProbability Type = "probability"
	// TypeSignal fires when the detector/processor emits a signal.
	// signals.new
	TypeSignal Type = "signal"
	// TypeSignalRejected fires on every gate rejection, for offline
	// analysis (spec §4.F).
	TypeSignalRejected Type = "signal_rejected"
	// TypeExecutionRequest fires when the processor hands off an order.
	// execution.requests
	TypeExecutionRequest Type = "execution_request"
	// TypeExecutionResult fires when the execution engine resolves a
	// request. execution.results
	TypeExecutionResult Type = "execution_result"
	// TypePositionOpened / TypePositionClosed mirror positions.opened /
	// positions.closed.
	TypePositionOpened Type = "position_opened"
	TypePositionClosed Type = "position_closed"
	// TypeBankrollUpdated mirrors bankroll.updated.
	TypeBankrollUpdated Type = "bankroll_updated"
	// TypeAssignment mirrors orchestrator.assignments.
	TypeAssignment Type = "assignment"
	// TypeMarketBinding mirrors orchestrator.market_bindings.
	TypeMarketBinding Type = "market_binding"
	// TypeHeartbeat mirrors heartbeat.{component}.
	TypeHeartbeat Type = "heartbeat"
	// TypePauseTrading fires when the drawdown guard trips.
	TypePauseTrading Type = "pause_trading"
	// TypeEventSuspended fires when an event is suspended for further
	// arbitrage after an unpaired exposure (spec §4.G).
	TypeEventSuspended Type = "event_suspended"
)

// Event is the envelope that flows through the bus. Every domain event
// (state change, price tick, signal, order result) is wrapped in one.
type Event struct {
	ID        string
	Type      Type
	EventID   string
	Timestamp time.Time
	Payload   any
}
