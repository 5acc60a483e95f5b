package main

import (
	"context"
	"testing"
	"time"

	"github.com/predikt-markets/engine/internal/adapters/venue"
	"github.com/predikt-markets/engine/internal/config"
	"github.com/predikt-markets/engine/internal/core/execution"
	"github.com/predikt-markets/engine/internal/core/position"
	"github.com/predikt-markets/engine/internal/core/signal"
	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/events"
)

type fakeRepo struct {
	bankroll domain.Bankroll
	trades   []domain.TradeRecord
	signals  int
}

func (f *fakeRepo) AppendTrade(_ context.Context, t domain.TradeRecord) error {
	f.trades = append(f.trades, t)
	return nil
}
func (f *fakeRepo) AppendSignal(context.Context, domain.Signal, domain.RejectReason) error {
	f.signals++
	return nil
}
func (f *fakeRepo) AppendPlay(context.Context, domain.Play) error             { return nil }
func (f *fakeRepo) AppendEventState(context.Context, domain.EventState) error { return nil }
func (f *fakeRepo) AppendMarketPrice(context.Context, domain.MarketPrice) error {
	return nil
}
func (f *fakeRepo) UpsertEvent(context.Context, domain.Event) error { return nil }
func (f *fakeRepo) ArchiveEvent(context.Context, string) error      { return nil }
func (f *fakeRepo) GetBankroll(_ context.Context, account string) (domain.Bankroll, error) {
	return f.bankroll, nil
}
func (f *fakeRepo) UpdateBankroll(_ context.Context, b domain.Bankroll, expectedVersion int64) error {
	if f.bankroll.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	f.bankroll = b
	return nil
}

type scriptedClient struct {
	results []domain.ExecutionResult
	calls   int
}

func (c *scriptedClient) PlaceOrder(_ context.Context, _ domain.ExecutionRequest) (domain.ExecutionResult, error) {
	i := c.calls
	c.calls++
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	return c.results[i], nil
}

type fakeFeed struct {
	subscribed []string
}

func (f *fakeFeed) Connect(context.Context) error { return nil }
func (f *fakeFeed) SubscribeMarkets(marketIDs []string) error {
	f.subscribed = append(f.subscribed, marketIDs...)
	return nil
}
func (f *fakeFeed) Close() error { return nil }

func testLimits() config.RiskLimits {
	return config.RiskLimits{
		DailyLossCapCents: 1_000_00,
		DrawdownPauseFrac: 0.15,
		MaxOpenPositions:  10,
		MinNetEdgePct:     0.01,
	}
}

func newTestCoordinator(t *testing.T) (*coordinator, *fakeRepo, *scriptedClient, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	repo := &fakeRepo{bankroll: domain.Bankroll{Account: "main", BalanceCents: 1_000_00, PeakCents: 1_000_00, Version: 1}}

	execEngine := execution.NewEngine(bus)
	client := &scriptedClient{results: []domain.ExecutionResult{{Status: domain.OrderFilled, FilledQty: 10, AvgPriceCents: 40, FeesCents: 5}}}
	execEngine.RegisterVenue(domain.VenueDirect, client, execution.DefaultDirectConfig())

	posCfg := position.DefaultConfig()
	tracker := position.NewTracker(posCfg, repo, execEngine, bus)

	bank := newBankrollSource(repo, tracker, bus)
	processor := signal.NewProcessor(signal.DefaultConfig(), testLimits(), bank, bus)

	feeds := map[domain.Venue]venue.Feed{domain.VenueDirect: &fakeFeed{}}
	coord := newCoordinator(bus, repo, processor, execEngine, tracker, feeds)
	return coord, repo, client, bus
}

func TestOnSignalExecutesAndOpensPosition(t *testing.T) {
	coord, repo, client, bus := newTestCoordinator(t)
	now := time.Now()

	bus.Publish(events.Event{Type: events.TypeMarketPrice, Payload: events.MarketPricePayload{
		Venue: domain.VenueDirect,
		Price: domain.MarketPrice{
			Venue: domain.VenueDirect, MarketID: "TICKER-1",
			YesBidCents: 38, YesAskCents: 40, YesBidSize: 500, YesAskSize: 500,
			UpdatedUTC: now,
		},
	}})

	sig := domain.Signal{
		SignalID: "sig-1", EventID: "evt-1", MarketID: "TICKER-1", Entity: "home",
		Direction: domain.SideBuy, SignalType: domain.SignalModelEdgeYes,
		ModelP: 0.60, MarketP: 0.40, RawEdgePct: 0.08, VenueBuy: domain.VenueDirect,
		BuyPriceCents: 40, LiquidityMin: 500, ExpiresUTC: now.Add(time.Minute),
	}
	bus.Publish(events.Event{Type: events.TypeSignal, Payload: events.SignalPayload{Signal: sig}})

	if repo.signals != 1 {
		t.Fatalf("signals persisted = %d, want 1", repo.signals)
	}
	if client.calls != 1 {
		t.Fatalf("venue calls = %d, want 1", client.calls)
	}
	if len(repo.trades) != 1 {
		t.Fatalf("trades persisted = %d, want 1", len(repo.trades))
	}
	if len(coord.tracker.OpenPositions()) != 1 {
		t.Fatalf("open positions = %d, want 1", len(coord.tracker.OpenPositions()))
	}
}

func TestOnPositionClosedPersistsExitTrade(t *testing.T) {
	coord, repo, _, bus := newTestCoordinator(t)

	pos := domain.Position{
		PositionID: "pos-1", EventID: "evt-1", Venue: domain.VenueDirect,
		MarketID: "TICKER-1", Entity: "home", Side: domain.SideBuy,
		QtyOpen: 10, EntryPriceCents: 40,
		Exit: &domain.Exit{
			Reason: domain.ExitTakeProfit, ExitPriceCents: 70, ExitFeeCents: 5,
			ClosedUTC: time.Now(), RealizedPnLCents: 295,
		},
	}
	bus.Publish(events.Event{Type: events.TypePositionClosed, Payload: events.PositionPayload{Position: pos}})

	if len(repo.trades) != 1 {
		t.Fatalf("trades persisted = %d, want 1", len(repo.trades))
	}
	rec := repo.trades[0]
	if rec.Side != domain.SideSell || rec.PriceCents != 70 || rec.Qty != 10 {
		t.Errorf("trade record = %+v, want exit leg at 70c x10", rec)
	}
	_ = coord
}

func TestOnMarketBindingSubscribesFeed(t *testing.T) {
	coord, _, _, bus := newTestCoordinator(t)
	feed := coord.feeds[domain.VenueDirect].(*fakeFeed)

	bus.Publish(events.Event{Type: events.TypeMarketBinding, Payload: events.MarketBindingPayload{
		EventID: "evt-1", Venue: domain.VenueDirect, MarketID: "TICKER-1", Entity: "home",
	}})

	if len(feed.subscribed) != 1 || feed.subscribed[0] != "TICKER-1" {
		t.Errorf("subscribed = %v, want [TICKER-1]", feed.subscribed)
	}
}

func TestTimeStopForCryptoEvent(t *testing.T) {
	coord, _, _, bus := newTestCoordinator(t)
	expiry := time.Now().Add(30 * time.Minute)

	bus.Publish(events.Event{Type: events.TypeEventDiscovered, Payload: events.EventDiscoveredPayload{
		Event: domain.Event{
			EventID:    "evt-crypto",
			MarketType: domain.CryptoMarket{Asset: "BTC", ExpiryUTC: expiry},
			EntityA:    "BTC",
		},
	}})

	d := coord.timeStopFor("evt-crypto")
	if d <= 0 || d > 30*time.Minute {
		t.Errorf("timeStopFor = %v, want ~30m", d)
	}
	if coord.timeStopFor("unknown-event") != 0 {
		t.Errorf("timeStopFor(unknown) should be 0")
	}
}
