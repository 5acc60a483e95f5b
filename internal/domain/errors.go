package domain

import "errors"

// Error taxonomy (spec §7). These are sentinels, not a typed hierarchy —
// callers use errors.Is against them and wrap with fmt.Errorf("...: %w").
var (
	// ErrTransient covers network/timeout failures eligible for capped
	// exponential backoff at the failing call site.
	ErrTransient = errors.New("transient network or timeout error")

	// ErrRateLimited covers 429-class responses. Never counts against a
	// circuit breaker; never surfaced as a failure unless the deadline is
	// exceeded while waiting it out.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuthConfig covers authentication or configuration failures.
	// Fatal: the process exits non-zero with an operator-readable reason.
	ErrAuthConfig = errors.New("authentication or configuration error")

	// ErrProtocolViolation covers a venue behaving outside its contract
	// (e.g. returning a resting order for an IOC request, or a sequence
	// gap surviving a resnapshot).
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrSuspended marks an event suspended for further trading pending
	// reconciliation of an unpaired arbitrage exposure.
	ErrSuspended = errors.New("event suspended pending reconciliation")
)
