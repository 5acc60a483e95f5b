package execution

import (
	"context"
	"testing"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
)

type scriptedClient struct {
	calls   int
	results []domain.ExecutionResult
	errs    []error
	reqs    []domain.ExecutionRequest
}

func (c *scriptedClient) PlaceOrder(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	i := c.calls
	c.calls++
	c.reqs = append(c.reqs, req)
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	return c.results[i], c.errs[i]
}

func testConfig() Config {
	cfg := DefaultDirectConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCap = 5 * time.Millisecond
	return cfg
}

func TestExecuteSingleRequestFills(t *testing.T) {
	bus := events.NewBus()
	e := NewEngine(bus)
	client := &scriptedClient{
		results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10}},
		errs:    []error{nil},
	}
	e.RegisterVenue(domain.VenueDirect, client, testConfig())

	req := domain.ExecutionRequest{RequestID: "r1", IdempotencyKey: "r1", Venue: domain.VenueDirect, Quantity: 10}
	results, err := e.Execute(context.Background(), []domain.ExecutionRequest{req})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Status != domain.OrderFilled {
		t.Fatalf("results = %+v, want one filled result", results)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestExecuteDeduplicatesOnIdempotencyKey(t *testing.T) {
	bus := events.NewBus()
	e := NewEngine(bus)
	client := &scriptedClient{
		results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 5}},
		errs:    []error{nil},
	}
	e.RegisterVenue(domain.VenueDirect, client, testConfig())

	req := domain.ExecutionRequest{RequestID: "dup", IdempotencyKey: "dup", Venue: domain.VenueDirect, Quantity: 5}
	if _, err := e.Execute(context.Background(), []domain.ExecutionRequest{req}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Execute(context.Background(), []domain.ExecutionRequest{req}); err != nil {
		t.Fatal(err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (second call must hit the idempotency cache)", client.calls)
	}
}

func TestExecuteRetriesOnRateLimitThenSucceeds(t *testing.T) {
	bus := events.NewBus()
	e := NewEngine(bus)
	client := &scriptedClient{
		results: []domain.ExecutionResult{{}, {Status: domain.OrderFilled, FilledQty: 1}},
		errs:    []error{domain.ErrRateLimited, nil},
	}
	e.RegisterVenue(domain.VenueDirect, client, testConfig())

	req := domain.ExecutionRequest{RequestID: "rl", IdempotencyKey: "rl", Venue: domain.VenueDirect, Quantity: 1}
	results, err := e.Execute(context.Background(), []domain.ExecutionRequest{req})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Status != domain.OrderFilled {
		t.Errorf("status = %v, want filled after retry", results[0].Status)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2 (one 429, one success)", client.calls)
	}
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	bus := events.NewBus()
	e := NewEngine(bus)
	cfg := testConfig()
	cfg.BreakerThreshold = 2
	cfg.MaxRetries = 0
	errs := make([]error, 10)
	results := make([]domain.ExecutionResult, 10)
	for i := range errs {
		errs[i] = errTransient
	}
	client := &scriptedClient{results: results, errs: errs}
	e.RegisterVenue(domain.VenueDirect, client, cfg)

	for i := 0; i < 2; i++ {
		req := domain.ExecutionRequest{RequestID: "f", IdempotencyKey: "f" + string(rune('a'+i)), Venue: domain.VenueDirect, Quantity: 1}
		e.Execute(context.Background(), []domain.ExecutionRequest{req})
	}

	req := domain.ExecutionRequest{RequestID: "f3", IdempotencyKey: "f3", Venue: domain.VenueDirect, Quantity: 1}
	_, err := e.Execute(context.Background(), []domain.ExecutionRequest{req})
	if err == nil {
		t.Fatal("expected the breaker to be open after threshold consecutive failures")
	}
}

func TestExecutePairedBothFillSucceedsWithoutOffset(t *testing.T) {
	bus := events.NewBus()
	e := NewEngine(bus)
	clientA := &scriptedClient{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10}}, errs: []error{nil}}
	clientB := &scriptedClient{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10}}, errs: []error{nil}}
	e.RegisterVenue(domain.VenueDirect, clientA, testConfig())
	e.RegisterVenue(domain.VenueProxied, clientB, testConfig())

	a := domain.ExecutionRequest{RequestID: "a", IdempotencyKey: "a", EventID: "evt-1", Venue: domain.VenueDirect, Side: domain.SideBuy, Quantity: 10}
	b := domain.ExecutionRequest{RequestID: "b", IdempotencyKey: "b", EventID: "evt-1", Venue: domain.VenueProxied, Side: domain.SideBuy, Quantity: 10}

	results, err := e.Execute(context.Background(), []domain.ExecutionRequest{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Status != domain.OrderFilled || results[1].Status != domain.OrderFilled {
		t.Fatalf("results = %+v, want both filled", results)
	}
	if e.IsSuspended("evt-1") {
		t.Error("event should not be suspended when both legs fill")
	}
}

func TestExecutePairedAsymmetricOffsetsAndSuspendsOnPartialFlatten(t *testing.T) {
	bus := events.NewBus()
	e := NewEngine(bus)

	// Leg A (Direct) fills; leg B (Proxied) is cancelled. The offset
	// attempt on Direct only partially flattens -> suspend.
	clientA := &scriptedClient{
		results: []domain.ExecutionResult{
			{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 45},
			{Status: domain.OrderFilled, FilledQty: 4}, // offset only flattens 4 of 10
		},
		errs: []error{nil, nil},
	}
	clientB := &scriptedClient{results: []domain.ExecutionResult{{Status: domain.OrderCancelled}}, errs: []error{nil}}
	e.RegisterVenue(domain.VenueDirect, clientA, testConfig())
	e.RegisterVenue(domain.VenueProxied, clientB, testConfig())

	a := domain.ExecutionRequest{RequestID: "a2", IdempotencyKey: "a2", EventID: "evt-2", Venue: domain.VenueDirect, Side: domain.SideBuy, Outcome: domain.OutcomeNo, Quantity: 10}
	b := domain.ExecutionRequest{RequestID: "b2", IdempotencyKey: "b2", EventID: "evt-2", Venue: domain.VenueProxied, Side: domain.SideBuy, Outcome: domain.OutcomeNo, Quantity: 10}

	if _, err := e.Execute(context.Background(), []domain.ExecutionRequest{a, b}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.IsSuspended("evt-2") {
		t.Error("expected event suspended after a partial offset flatten")
	}
	if clientA.calls != 2 {
		t.Errorf("clientA calls = %d, want 2 (fill + offset attempt)", clientA.calls)
	}
	offsetReq := clientA.reqs[1]
	if offsetReq.Outcome != domain.OutcomeNo {
		t.Errorf("offset request Outcome = %v, want no (must flatten the same outcome that filled, not default to yes)", offsetReq.Outcome)
	}
	if offsetReq.Side != domain.SideSell {
		t.Errorf("offset request Side = %v, want sell (flips the filled leg's buy)", offsetReq.Side)
	}
}

var errTransient = domain.ErrTransient
