// Package execution places signal-processor-approved orders against a
// venue, generalising the teacher's internal/adapters/outbound/kalshi_http
// client (rate limiting via golang.org/x/time/rate, one signed POST per
// order) into a venue-agnostic engine with retry/circuit-breaker handling
// and paired-leg arbitrage coordination the teacher never needed (it only
// ever traded one venue at a time).
package execution

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
	"github.com/predikt-markets/engine/internal/telemetry"
)

// VenueClient places one order against a venue and reports its terminal
// outcome. Implementations live in internal/adapters/{direct,proxied}.
// A rate-limited call must return an error satisfying
// errors.Is(err, domain.ErrRateLimited); every other failure is treated as
// a circuit-breaker-counted failure.
type VenueClient interface {
	PlaceOrder(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error)
}

// Clock lets tests control time without sleeping.
type Clock func() time.Time

// Config tunes the engine's rate limiting, retry and breaker behaviour
// (spec §4.G defaults).
type Config struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	IdempotencyTTL   time.Duration
}

// DefaultDirectConfig returns the Direct venue's defaults.
func DefaultDirectConfig() Config {
	return Config{
		RateLimitPerSec:  10,
		RateLimitBurst:   20,
		MaxRetries:       5,
		BackoffBase:      250 * time.Millisecond,
		BackoffCap:       16 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
		IdempotencyTTL:   10 * time.Minute,
	}
}

type venueBinding struct {
	client  VenueClient
	limiter *rate.Limiter
	breaker *circuitBreaker
}

// Engine is the execution engine: one venue binding per Venue, a shared
// idempotency store, and paired-leg coordination.
type Engine struct {
	mu          sync.RWMutex
	venues      map[domain.Venue]venueBinding
	idempotency *idempotencyStore
	bus         *events.Bus
	now         Clock
	cfg         map[domain.Venue]Config

	suspendedMu sync.Mutex
	suspended   map[string]bool
}

func NewEngine(bus *events.Bus) *Engine {
	return &Engine{
		venues:      make(map[domain.Venue]venueBinding),
		idempotency: newIdempotencyStore(10 * time.Minute),
		bus:         bus,
		now:         time.Now,
		cfg:         make(map[domain.Venue]Config),
		suspended:   make(map[string]bool),
	}
}

// RegisterVenue binds a client to a venue with its own rate limiter and
// circuit breaker.
func (e *Engine) RegisterVenue(venue domain.Venue, client VenueClient, cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.venues[venue] = venueBinding{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		breaker: newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
	e.cfg[venue] = cfg
}

// IsSuspended reports whether an event has been pulled from further
// arbitrage consideration after an unresolved unpaired exposure.
func (e *Engine) IsSuspended(eventID string) bool {
	e.suspendedMu.Lock()
	defer e.suspendedMu.Unlock()
	return e.suspended[eventID]
}

// Execute places one request, or coordinates a paired arbitrage pair (spec
// §4.G). Results are returned in the same order as reqs and published to
// the bus as they resolve.
func (e *Engine) Execute(ctx context.Context, reqs []domain.ExecutionRequest) ([]domain.ExecutionResult, error) {
	switch len(reqs) {
	case 0:
		return nil, nil
	case 1:
		res, err := e.placeOne(ctx, reqs[0])
		e.publishResult(reqs[0], res)
		return []domain.ExecutionResult{res}, err
	case 2:
		return e.executePaired(ctx, reqs[0], reqs[1])
	default:
		return nil, errors.New("execution: at most two legs are supported per request batch")
	}
}

func (e *Engine) executePaired(ctx context.Context, a, b domain.ExecutionRequest) ([]domain.ExecutionResult, error) {
	var resA, resB domain.ExecutionResult
	var errA, errB error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); resA, errA = e.placeOne(ctx, a) }()
	go func() { defer wg.Done(); resB, errB = e.placeOne(ctx, b) }()
	wg.Wait()

	e.publishResult(a, resA)
	e.publishResult(b, resB)

	filledA := resA.Status == domain.OrderFilled && resA.FilledQty > 0
	filledB := resB.Status == domain.OrderFilled && resB.FilledQty > 0

	switch {
	case filledA && filledB:
		// Both legs filled — the arbitrage closed clean.
	case !filledA && !filledB:
		// Both cancelled — no position, no exposure.
	case filledA && !filledB:
		e.reconcileUnpairedExposure(ctx, a, resA)
	case !filledA && filledB:
		e.reconcileUnpairedExposure(ctx, b, resB)
	}

	if errA != nil {
		return []domain.ExecutionResult{resA, resB}, errA
	}
	return []domain.ExecutionResult{resA, resB}, errB
}

// reconcileUnpairedExposure flattens a one-sided fill left over from an
// asymmetric paired-leg outcome: an immediate offsetting IOC on the filled
// leg's own venue. If that doesn't fully flatten the position, the event
// is suspended for further arbitrage and a human-attention alert fires
// (spec §4.G) — the engine never leaves a silent one-sided position.
func (e *Engine) reconcileUnpairedExposure(ctx context.Context, filled domain.ExecutionRequest, result domain.ExecutionResult) {
	offsetSide := domain.SideSell
	if filled.Side == domain.SideSell {
		offsetSide = domain.SideBuy
	}

	offset := domain.ExecutionRequest{
		RequestID:      filled.RequestID + ":offset",
		SignalID:       filled.SignalID,
		EventID:        filled.EventID,
		Venue:          filled.Venue,
		MarketID:       filled.MarketID,
		Side:           offsetSide,
		Outcome:        filled.Outcome,
		Quantity:       result.FilledQty,
		LimitPriceCents: result.AvgPriceCents,
		ExpiresUTC:     e.now().Add(10 * time.Second),
	}
	offset.IdempotencyKey = offset.RequestID

	offRes, err := e.placeOne(ctx, offset)
	e.publishResult(offset, offRes)

	if err != nil || offRes.FilledQty < result.FilledQty {
		telemetry.Errorf("execution: unpaired exposure on %s/%s not fully flattened (filled %d of %d) — suspending event %s",
			filled.Venue, filled.MarketID, offRes.FilledQty, result.FilledQty, filled.EventID)
		e.suspendEvent(filled.EventID, "unresolved unpaired arbitrage exposure")
	}
}

// SuspendEvent marks eventID as ineligible for further arbitrage signals
// until an operator resolves the unpaired exposure and calls ResumeEvent.
func (e *Engine) SuspendEvent(eventID, reason string) {
	e.suspendEvent(eventID, reason)
}

func (e *Engine) suspendEvent(eventID, reason string) {
	e.suspendedMu.Lock()
	e.suspended[eventID] = true
	e.suspendedMu.Unlock()

	e.bus.Publish(events.Event{
		Type:      events.TypeEventSuspended,
		EventID:   eventID,
		Timestamp: e.now(),
		Payload:   events.EventSuspendedPayload{EventID: eventID, Reason: reason},
	})
}

// ResumeEvent clears a suspension once an operator has manually
// reconciled the exposure.
func (e *Engine) ResumeEvent(eventID string) {
	e.suspendedMu.Lock()
	defer e.suspendedMu.Unlock()
	delete(e.suspended, eventID)
}

func (e *Engine) publishResult(req domain.ExecutionRequest, res domain.ExecutionResult) {
	e.bus.Publish(events.Event{
		Type:      events.TypeExecutionResult,
		Timestamp: e.now(),
		Payload:   events.ExecutionResultPayload{Request: req, Result: res},
	})
}

// placeOne runs the full per-order pipeline: idempotency check, rate
// limit, circuit breaker, 429 retry with capped exponential backoff, and
// a protocol-violation guard on the result (spec §4.G).
func (e *Engine) placeOne(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	now := e.now()
	if cached, ok := e.idempotency.get(req.IdempotencyKey, now); ok {
		return cached, nil
	}

	e.mu.RLock()
	binding, ok := e.venues[req.Venue]
	cfg := e.cfg[req.Venue]
	e.mu.RUnlock()
	if !ok {
		return domain.ExecutionResult{}, errors.New("execution: no client registered for venue " + string(req.Venue))
	}

	var result domain.ExecutionResult
	var err error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if !binding.breaker.Allow(e.now()) {
			err = errors.New("execution: circuit breaker open for venue " + string(req.Venue))
			break
		}

		waitStart := e.now()
		if wErr := binding.limiter.Wait(ctx); wErr != nil {
			err = wErr
			break
		}
		telemetry.Metrics.RateLimiterWait.Observe(e.now().Sub(waitStart).Seconds())

		result, err = binding.client.PlaceOrder(ctx, req)
		if err == nil {
			binding.breaker.RecordSuccess()
			if violation := checkProtocolCompliance(result); violation {
				telemetry.Errorf("execution: venue %s returned a non-terminal order status for %s — protocol violation", req.Venue, req.RequestID)
				result.Status = domain.OrderRejected
			}
			telemetry.Metrics.OrdersSent.Inc()
			if result.Status == domain.OrderFilled {
				telemetry.Metrics.OrderFills.Inc()
			}
			break
		}

		if errors.Is(err, domain.ErrRateLimited) {
			// 429s never count against the breaker.
			if attempt == cfg.MaxRetries {
				break
			}
			time.Sleep(backoffWithJitter(attempt, cfg.BackoffBase, cfg.BackoffCap))
			continue
		}

		binding.breaker.RecordFailure(e.now())
		telemetry.Metrics.OrderErrors.Inc()
		break
	}

	if err == nil {
		e.idempotency.put(req.IdempotencyKey, result, e.now())
	}
	return result, err
}

// checkProtocolCompliance reports true if the venue returned a
// resting/pending order for what must be an IOC fill-or-cancel.
func checkProtocolCompliance(result domain.ExecutionResult) bool {
	return !domain.IsTerminal(result.Status)
}

func backoffWithJitter(attempt int, base, capDur time.Duration) time.Duration {
	d := base << attempt
	if d > capDur || d <= 0 {
		d = capDur
	}
	jitter := time.Duration(rand.Int63n(int64(d) + 1))
	return jitter
}

// ClientOrderID derives a deterministic client order id from the
// idempotency key: the hex SHA-256 of the key, cut to maxLen when maxLen
// is positive. Neither venue adapter calls it; both send the idempotency
// key itself as the wire client order id.
func ClientOrderID(idempotencyKey string, maxLen int) string {
	sum := sha256.Sum256([]byte(idempotencyKey))
	id := hex.EncodeToString(sum[:])
	if maxLen > 0 && maxLen < len(id) {
		return id[:maxLen]
	}
	return id
}
