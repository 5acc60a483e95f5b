package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/predikt-markets/engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertEventThenArchive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := domain.Event{
		EventID:           "NHL1",
		MarketType:        domain.SportMarket{Sport: "hockey", League: "NHL"},
		EntityA:           "BOS",
		EntityB:           "TOR",
		ScheduledStartUTC: time.Now().UTC(),
	}
	require.NoError(t, s.UpsertEvent(ctx, ev))
	// Upsert is idempotent.
	require.NoError(t, s.UpsertEvent(ctx, ev))
	require.NoError(t, s.ArchiveEvent(ctx, "NHL1"))

	var archived int
	require.NoError(t, s.db.QueryRow(`SELECT archived FROM events WHERE event_id = ?`, "NHL1").Scan(&archived))
	require.Equal(t, 1, archived)
}

func TestAppendEventStateDedupesByFetchTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	st := domain.EventState{EventID: "NHL1", Status: domain.StatusLive, FetchTimestamp: now}
	require.NoError(t, s.AppendEventState(ctx, st))
	require.NoError(t, s.AppendEventState(ctx, st)) // same fetch_timestamp, ignored

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM event_states WHERE event_id = ?`, "NHL1").Scan(&count))
	require.Equal(t, 1, count)
}

func TestAppendPlayDedupesByPlayID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := domain.Play{EventID: "NHL1", PlayID: "p1", Kind: domain.PlayScore, TimeUTC: time.Now().UTC()}
	require.NoError(t, s.AppendPlay(ctx, p))
	require.NoError(t, s.AppendPlay(ctx, p))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM plays WHERE event_id = ? AND play_id = ?`, "NHL1", "p1").Scan(&count))
	require.Equal(t, 1, count)
}

func TestAppendTradeAndSignal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTrade(ctx, domain.TradeRecord{
		Venue: domain.VenueDirect, MarketID: "M1", EventID: "NHL1", Entity: "BOS",
		Side: domain.SideBuy, Qty: 10, PriceCents: 55, FeeCents: 1,
		Status: domain.OrderFilled, ClientOrderID: "co1",
	}))

	require.NoError(t, s.AppendSignal(ctx, domain.Signal{
		SignalID: "s1", EventID: "NHL1", MarketID: "M1", Entity: "BOS",
		Direction: domain.SideBuy, SignalType: domain.SignalModelEdgeYes,
		ModelP: 0.6, MarketP: 0.55, NetEdgePct: 0.05,
	}, domain.RejectReason("")))

	require.NoError(t, s.AppendSignal(ctx, domain.Signal{
		SignalID: "s2", EventID: "NHL1", MarketID: "M1",
	}, domain.RejectStale))

	var tradeCount, signalCount int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&tradeCount))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM signals`).Scan(&signalCount))
	require.Equal(t, 1, tradeCount)
	require.Equal(t, 2, signalCount)
}

func TestAppendMarketPriceDedupesByCompositeKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	price := domain.MarketPrice{
		Venue: domain.VenueDirect, MarketID: "M1", ContractEntity: "BOS",
		YesBidCents: 45, YesAskCents: 50, Liquidity: 100, UpdatedUTC: now,
	}
	require.NoError(t, s.AppendMarketPrice(ctx, price))
	require.NoError(t, s.AppendMarketPrice(ctx, price))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM market_prices WHERE market_id = ?`, "M1").Scan(&count))
	require.Equal(t, 1, count)
}

func TestGetBankrollSeedsZeroRowOnFirstCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.GetBankroll(ctx, "acct1")
	require.NoError(t, err)
	require.Equal(t, "acct1", b.Account)
	require.Equal(t, int64(0), b.BalanceCents)
	require.Equal(t, int64(0), b.Version)
}

func TestUpdateBankrollCASSucceedsOnMatchingVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.GetBankroll(ctx, "acct1")
	require.NoError(t, err)

	b.BalanceCents = 5000
	b.Version = 1
	require.NoError(t, s.UpdateBankroll(ctx, b, 0))

	got, err := s.GetBankroll(ctx, "acct1")
	require.NoError(t, err)
	require.Equal(t, int64(5000), got.BalanceCents)
	require.Equal(t, int64(1), got.Version)
}

func TestUpdateBankrollCASFailsOnStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetBankroll(ctx, "acct1")
	require.NoError(t, err)

	b := domain.Bankroll{Account: "acct1", BalanceCents: 100, Version: 1}
	err = s.UpdateBankroll(ctx, b, 7) // wrong expected version
	require.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestAppendEventStateWithCryptoFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := domain.EventState{
		EventID: "BTC-100K", Status: domain.StatusLive, FetchTimestamp: time.Now().UTC(),
	}
	require.NoError(t, s.AppendEventState(ctx, st))
}
