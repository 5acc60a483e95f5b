package position

import (
	"context"
	"testing"
	"time"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
)

type fakeRepo struct {
	bankroll domain.Bankroll
}

func (f *fakeRepo) AppendTrade(context.Context, domain.TradeRecord) error           { return nil }
func (f *fakeRepo) AppendSignal(context.Context, domain.Signal, domain.RejectReason) error {
	return nil
}
func (f *fakeRepo) AppendPlay(context.Context, domain.Play) error            { return nil }
func (f *fakeRepo) AppendEventState(context.Context, domain.EventState) error { return nil }
func (f *fakeRepo) AppendMarketPrice(context.Context, domain.MarketPrice) error {
	return nil
}
func (f *fakeRepo) UpsertEvent(context.Context, domain.Event) error { return nil }
func (f *fakeRepo) ArchiveEvent(context.Context, string) error     { return nil }

func (f *fakeRepo) GetBankroll(ctx context.Context, account string) (domain.Bankroll, error) {
	return f.bankroll, nil
}

func (f *fakeRepo) UpdateBankroll(ctx context.Context, b domain.Bankroll, expectedVersion int64) error {
	if f.bankroll.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	f.bankroll = b
	return nil
}

type fakeExecutor struct {
	results []domain.ExecutionResult
	calls   int
}

func (f *fakeExecutor) Execute(ctx context.Context, reqs []domain.ExecutionRequest) ([]domain.ExecutionResult, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return []domain.ExecutionResult{f.results[i]}, nil
}

func newTestTracker(repo *fakeRepo, exec *fakeExecutor) *Tracker {
	cfg := DefaultConfig()
	return NewTracker(cfg, repo, exec, events.NewBus())
}

func TestOnFillDebitsBankrollAndOpensPosition(t *testing.T) {
	repo := &fakeRepo{bankroll: domain.Bankroll{Account: "main", BalanceCents: 100_000, PeakCents: 100_000, Version: 1}}
	tr := newTestTracker(repo, &fakeExecutor{})

	req := domain.ExecutionRequest{RequestID: "p1", EventID: "evt-1", Venue: domain.VenueDirect, MarketID: "M1", Side: domain.SideBuy}
	res := domain.ExecutionResult{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 40, FeesCents: 20}

	pos, err := tr.OnFill(context.Background(), req, res, "home", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.QtyOpen != 10 || pos.EntryPriceCents != 40 {
		t.Errorf("pos = %+v, want qty 10 @ 40", pos)
	}

	wantBalance := int64(100_000 - (10*40 + 20))
	if repo.bankroll.BalanceCents != wantBalance {
		t.Errorf("balance = %d, want %d", repo.bankroll.BalanceCents, wantBalance)
	}
	if repo.bankroll.ReservedCents != int64(10*40+20) {
		t.Errorf("reserved = %d, want %d", repo.bankroll.ReservedCents, 10*40+20)
	}

	open := tr.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("open positions = %d, want 1", len(open))
	}
}

func TestCheckExitsFiresTakeProfitAndCreditsBankroll(t *testing.T) {
	repo := &fakeRepo{bankroll: domain.Bankroll{Account: "main", BalanceCents: 100_000, PeakCents: 100_000, Version: 1}}
	exec := &fakeExecutor{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 70, FeesCents: 5}}}
	tr := newTestTracker(repo, exec)

	now := time.Now()
	tr.now = func() time.Time { return now }

	req := domain.ExecutionRequest{RequestID: "p2", EventID: "evt-2", Venue: domain.VenueDirect, MarketID: "M2", Side: domain.SideBuy}
	res := domain.ExecutionResult{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 50, FeesCents: 5}
	pos, err := tr.OnFill(context.Background(), req, res, "home", 0)
	if err != nil {
		t.Fatal(err)
	}

	tr.onMarketPrice(events.Event{Payload: events.MarketPricePayload{Price: domain.MarketPrice{
		Venue: domain.VenueDirect, MarketID: "M2", YesBidCents: pos.TakeProfitCents + 1, YesAskCents: pos.TakeProfitCents + 2,
		UpdatedUTC: now,
	}}})

	tr.checkExits(context.Background())

	if len(tr.OpenPositions()) != 0 {
		t.Fatal("expected the position to be closed after take-profit fires")
	}
	if exec.calls != 1 {
		t.Errorf("exec calls = %d, want 1", exec.calls)
	}
	if repo.bankroll.ReservedCents != 0 {
		t.Errorf("reserved after close = %d, want 0", repo.bankroll.ReservedCents)
	}
}

func TestCheckExitsFiresTakeProfitForNoPositionAgainstNoBid(t *testing.T) {
	repo := &fakeRepo{bankroll: domain.Bankroll{Account: "main", BalanceCents: 100_000, PeakCents: 100_000, Version: 1}}
	exec := &fakeExecutor{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 70, FeesCents: 5}}}
	tr := newTestTracker(repo, exec)

	now := time.Now()
	tr.now = func() time.Time { return now }

	req := domain.ExecutionRequest{RequestID: "p2n", EventID: "evt-2n", Venue: domain.VenueDirect, MarketID: "M2N", Side: domain.SideBuy, Outcome: domain.OutcomeNo}
	res := domain.ExecutionResult{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 50, FeesCents: 5}
	pos, err := tr.OnFill(context.Background(), req, res, "home", 0)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Outcome != domain.OutcomeNo {
		t.Fatalf("pos.Outcome = %v, want no", pos.Outcome)
	}

	// A YES bid that would NOT trip take-profit on its own, but whose
	// complementary NO bid (100-YesAskCents) does. Read against the YES
	// bid instead, the same tick would trip the stop-loss, not take-profit.
	tr.onMarketPrice(events.Event{Payload: events.MarketPricePayload{Price: domain.MarketPrice{
		Venue: domain.VenueDirect, MarketID: "M2N",
		YesBidCents: 10, YesAskCents: 100 - (pos.TakeProfitCents + 1),
		UpdatedUTC: now,
	}}})

	tr.checkExits(context.Background())

	if len(tr.OpenPositions()) != 0 {
		t.Fatal("expected the no-outcome position to be closed once its no bid crosses take-profit")
	}
	if exec.calls != 1 {
		t.Errorf("exec calls = %d, want 1", exec.calls)
	}
}

func TestCheckExitsIgnoresStalePrice(t *testing.T) {
	repo := &fakeRepo{bankroll: domain.Bankroll{Account: "main", BalanceCents: 100_000, PeakCents: 100_000, Version: 1}}
	exec := &fakeExecutor{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 70}}}
	tr := newTestTracker(repo, exec)

	now := time.Now()
	tr.now = func() time.Time { return now }

	req := domain.ExecutionRequest{RequestID: "p3", EventID: "evt-3", Venue: domain.VenueDirect, MarketID: "M3", Side: domain.SideBuy}
	res := domain.ExecutionResult{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 50, FeesCents: 0}
	pos, err := tr.OnFill(context.Background(), req, res, "home", 0)
	if err != nil {
		t.Fatal(err)
	}

	tr.onMarketPrice(events.Event{Payload: events.MarketPricePayload{Price: domain.MarketPrice{
		Venue: domain.VenueDirect, MarketID: "M3", YesBidCents: pos.TakeProfitCents + 1,
		UpdatedUTC: now.Add(-1 * time.Hour), // well past the staleness TTL
	}}})

	tr.checkExits(context.Background())

	if len(tr.OpenPositions()) != 1 {
		t.Fatal("expected the position to stay open when its only price is stale")
	}
	if exec.calls != 0 {
		t.Errorf("exec calls = %d, want 0 (stale price must not trigger an exit)", exec.calls)
	}
}

func TestCheckExitsFiresTimeStopWithoutAPrice(t *testing.T) {
	repo := &fakeRepo{bankroll: domain.Bankroll{Account: "main", BalanceCents: 100_000, PeakCents: 100_000, Version: 1}}
	exec := &fakeExecutor{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 45}}}
	tr := newTestTracker(repo, exec)

	now := time.Now()
	tr.now = func() time.Time { return now }

	req := domain.ExecutionRequest{RequestID: "p4", EventID: "evt-4", Venue: domain.VenueDirect, MarketID: "M4", Side: domain.SideBuy}
	res := domain.ExecutionResult{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 50}
	if _, err := tr.OnFill(context.Background(), req, res, "home", -time.Second); err != nil {
		t.Fatal(err)
	}

	tr.checkExits(context.Background())

	if len(tr.OpenPositions()) != 0 {
		t.Fatal("expected the time-stop to close the position even with no cached price")
	}
}

func TestSettlementClosesPositionOnEventFinal(t *testing.T) {
	repo := &fakeRepo{bankroll: domain.Bankroll{Account: "main", BalanceCents: 100_000, PeakCents: 100_000, Version: 1}}
	exec := &fakeExecutor{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 100}}}
	tr := newTestTracker(repo, exec)

	now := time.Now()
	tr.now = func() time.Time { return now }

	req := domain.ExecutionRequest{RequestID: "p5", EventID: "evt-5", Venue: domain.VenueDirect, MarketID: "M5", Side: domain.SideBuy}
	res := domain.ExecutionResult{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 50}
	if _, err := tr.OnFill(context.Background(), req, res, "home", 0); err != nil {
		t.Fatal(err)
	}

	tr.onEventState(events.Event{Payload: events.EventStatePayload{EventID: "evt-5", State: domain.EventState{
		EventID: "evt-5", Status: domain.StatusFinal, FetchTimestamp: now,
	}}})

	tr.checkExits(context.Background())

	if len(tr.OpenPositions()) != 0 {
		t.Fatal("expected settlement to close the position once the event is final")
	}
}

func TestDrawdownGuardPublishesPauseTrading(t *testing.T) {
	repo := &fakeRepo{bankroll: domain.Bankroll{Account: "main", BalanceCents: 100_000, PeakCents: 100_000, Version: 1}}
	exec := &fakeExecutor{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 500, AvgPriceCents: 1}}}
	tr := newTestTracker(repo, exec)

	now := time.Now()
	tr.now = func() time.Time { return now }

	var paused bool
	tr.bus.Subscribe(events.TypePauseTrading, func(e events.Event) error {
		paused = true
		return nil
	})

	req := domain.ExecutionRequest{RequestID: "p6", EventID: "evt-6", Venue: domain.VenueDirect, MarketID: "M6", Side: domain.SideBuy}
	res := domain.ExecutionResult{Status: domain.OrderFilled, FilledQty: 500, AvgPriceCents: 90}
	if _, err := tr.OnFill(context.Background(), req, res, "home", 0); err != nil {
		t.Fatal(err)
	}

	tr.onMarketPrice(events.Event{Payload: events.MarketPricePayload{Price: domain.MarketPrice{
		Venue: domain.VenueDirect, MarketID: "M6", YesBidCents: 1, YesAskCents: 2, UpdatedUTC: now,
	}}})
	tr.checkExits(context.Background())

	if !paused {
		t.Error("expected pause_trading to publish after a >15% drawdown")
	}
}
