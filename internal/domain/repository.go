package domain

import "context"

// Repository is the narrow persistence boundary the core pipeline writes
// through. Everything beyond it (the read API, the UI, scheduled archival)
// is out of scope per spec §1; this interface is the seam.
type Repository interface {
	// AppendTrade persists a fill (or cancel) record. Time-series,
	// append-only.
	AppendTrade(ctx context.Context, t TradeRecord) error
	// AppendSignal persists an emitted or rejected signal for offline
	// analysis.
	AppendSignal(ctx context.Context, s Signal, rejected RejectReason) error
	// AppendPlay persists a play, deduplicated on PlayID.
	AppendPlay(ctx context.Context, p Play) error
	// AppendEventState persists a state snapshot, deduplicated on
	// (time, market_id, venue, entity) at the MarketPrice granularity;
	// event states dedupe on (event_id, fetch_timestamp).
	AppendEventState(ctx context.Context, s EventState) error
	// AppendMarketPrice persists a price tick, deduplicated on
	// (time, market_id, venue, entity).
	AppendMarketPrice(ctx context.Context, p MarketPrice) error

	// UpsertEvent idempotently upserts an Event keyed by EventID.
	UpsertEvent(ctx context.Context, e Event) error

	// UpdateBankroll performs an optimistic-concurrency CAS: the write
	// succeeds only if the stored version equals expectedVersion, else
	// ErrVersionConflict is returned and the caller retries with a fresh
	// read.
	UpdateBankroll(ctx context.Context, b Bankroll, expectedVersion int64) error
	// GetBankroll reads the current bankroll row for an account.
	GetBankroll(ctx context.Context, account string) (Bankroll, error)

	// ArchiveEvent moves a finalised event and its attached records out of
	// the hot path after the finalisation + grace window (spec §4.I).
	ArchiveEvent(ctx context.Context, eventID string) error
}

// TradeRecord is the append-only trade ledger row.
type TradeRecord struct {
	Venue         Venue
	MarketID      string
	EventID       string
	Entity        string
	Side          Side
	Outcome       Outcome
	Qty           int
	PriceCents    int
	FeeCents      int
	Status        OrderStatus
	ClientOrderID string
}
