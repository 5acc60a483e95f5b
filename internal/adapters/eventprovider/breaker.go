package eventprovider

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker is a hand-rolled three-state circuit breaker: closed, open,
// half-open. The teacher has no circuit breaker abstraction of its own —
// this shape is grounded on the retry/backoff loop in
// kalshi_ws.Client.runLoop, generalized into the three named states spec
// §4.B/§7 calls for. A 429 never counts as a failure here; callers check
// errors.Is(err, domain.ErrRateLimited) before reporting to the breaker.
type breaker struct {
	mu              sync.Mutex
	state           breakerState
	consecutiveFail int
	openedAt        time.Time

	failureThreshold int
	openDuration     time.Duration
	now              func() time.Time
}

func newBreaker(failureThreshold int, openDuration time.Duration) *breaker {
	return &breaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		now:              time.Now,
	}
}

// Allow reports whether a call should proceed. An open breaker past its
// openDuration transitions to half-open and allows exactly one probe.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		return false // a probe is already in flight
	default: // breakerOpen
		if b.now().Sub(b.openedAt) >= b.openDuration {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.consecutiveFail = 0
}

// RecordFailure counts one non-rate-limited failure. A probe that fails
// while half-open reopens the breaker immediately; enough consecutive
// failures while closed trips it.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = b.now()
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}

// Healthy reports whether the breaker is closed, for heartbeat reporting.
func (b *breaker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerClosed
}
