// Package repository persists the append-only trade, signal, play, event
// state and market price streams plus the event registry and bankroll
// ledger in a single-file SQLite database, generalizing the teacher's FIFO
// tracking store to every durable record this engine produces.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/predikt-markets/engine/internal/domain"
	"github.com/predikt-markets/engine/internal/telemetry"
)

const (
	maxStoreBytes  int64   = 1 << 30 // 1 GiB
	evictPct       float64 = 0.10    // evict oldest 10% of rows per table
	vacuumInterval         = 10      // incremental vacuum every N evictions
)

// Store is a modernc.org/sqlite-backed domain.Repository, capped at ~1 GiB
// total and FIFO-evicted across its append-only tables when exceeded.
type Store struct {
	db           *sql.DB
	mu           sync.Mutex
	cachedSize   int64
	evictCounter int
}

func timeFmt(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// outcomeOrYes defaults an unset domain.Outcome to "yes" for rows recorded
// before this column existed, and for single-outcome test fixtures.
func outcomeOrYes(o domain.Outcome) string {
	if o == domain.OutcomeNo {
		return string(domain.OutcomeNo)
	}
	return string(domain.OutcomeYes)
}

// OpenStore opens (creating if absent) the SQLite file at path in WAL mode
// with a single writer connection, matching the teacher's tracking store.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create repository store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 {
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("repository store: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init repository schema: %w", err)
	}

	var size int64
	db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	telemetry.Plainf("repository store: opened %s  size=%d", path, size)

	return &Store{db: db, cachedSize: size}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendTrade implements domain.Repository.
func (s *Store) AppendTrade(ctx context.Context, t domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO trades (
		venue, market_id, event_id, entity, side, outcome, qty, price_cents, fee_cents,
		status, client_order_id, recorded_utc
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(t.Venue), t.MarketID, t.EventID, t.Entity, string(t.Side), outcomeOrYes(t.Outcome), t.Qty,
		t.PriceCents, t.FeeCents, string(t.Status), t.ClientOrderID, timeFmt(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	s.maybeEvictLocked("trades")
	return nil
}

// AppendSignal implements domain.Repository. rejected is empty when the
// signal was acted on rather than rejected.
func (s *Store) AppendSignal(ctx context.Context, sig domain.Signal, rejected domain.RejectReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO signals (
		signal_id, event_id, market_id, entity, direction, outcome, signal_type,
		model_p, market_p, net_edge_pct, rejected_reason, recorded_utc
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.SignalID, sig.EventID, sig.MarketID, sig.Entity, string(sig.Direction), outcomeOrYes(sig.Outcome), string(sig.SignalType),
		sig.ModelP, sig.MarketP, sig.NetEdgePct, string(rejected), timeFmt(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("append signal: %w", err)
	}
	s.maybeEvictLocked("signals")
	return nil
}

// AppendPlay implements domain.Repository, deduped on (event_id, play_id)
// per the at-least-once delivery guarantee from the event shard.
func (s *Store) AppendPlay(ctx context.Context, p domain.Play) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO plays (
		event_id, play_id, kind, scoring, time_utc
	) VALUES (?,?,?,?,?)`,
		p.EventID, p.PlayID, string(p.Kind), boolToInt(p.Scoring), timeFmt(p.TimeUTC),
	)
	if err != nil {
		return fmt.Errorf("append play: %w", err)
	}
	s.maybeEvictLocked("plays")
	return nil
}

// AppendEventState implements domain.Repository, deduped on
// (event_id, fetch_timestamp) per the monotonic FetchTimestamp invariant.
func (s *Store) AppendEventState(ctx context.Context, st domain.EventState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO event_states (
		event_id, home_score, away_score, period, seconds_remain, possession,
		spot, reference, time_to_expiry_ms, status, fetch_timestamp, fetch_latency_ms
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		st.EventID, st.HomeScore, st.AwayScore, st.Period, st.SecondsRemain, string(st.Possession),
		st.Spot.String(), st.Reference.String(), st.TimeToExpiry.Milliseconds(),
		string(st.Status), timeFmt(st.FetchTimestamp), st.FetchLatency.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("append event state: %w", err)
	}
	s.maybeEvictLocked("event_states")
	return nil
}

// AppendMarketPrice implements domain.Repository, deduped on
// (updated_utc, market_id, venue, contract_entity).
func (s *Store) AppendMarketPrice(ctx context.Context, p domain.MarketPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO market_prices (
		venue, market_id, contract_entity, event_id, yes_bid_cents, yes_ask_cents,
		yes_bid_size, yes_ask_size, liquidity, sequence, updated_utc
	) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		string(p.Venue), p.MarketID, p.ContractEntity, p.EventID, p.YesBidCents, p.YesAskCents,
		p.YesBidSize, p.YesAskSize, p.Liquidity, p.Sequence, timeFmt(p.UpdatedUTC),
	)
	if err != nil {
		return fmt.Errorf("append market price: %w", err)
	}
	s.maybeEvictLocked("market_prices")
	return nil
}

// UpsertEvent implements domain.Repository. Events are a small registry,
// not an append-only stream, so this is a plain idempotent upsert.
func (s *Store) UpsertEvent(ctx context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind, sport, league, asset, strike, hasStrike, expiry, direction := decomposeMarketType(e.MarketType)

	_, err := s.db.ExecContext(ctx, `INSERT INTO events (
		event_id, market_kind, sport, league, asset, strike, has_strike, expiry_utc, direction,
		entity_a, entity_b, scheduled_start, archived
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,0)
	ON CONFLICT(event_id) DO UPDATE SET
		entity_a = excluded.entity_a,
		entity_b = excluded.entity_b,
		scheduled_start = excluded.scheduled_start`,
		e.EventID, string(kind), sport, league, asset, strike, boolToInt(hasStrike), expiry, direction,
		e.EntityA, e.EntityB, timeFmt(e.ScheduledStartUTC),
	)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

// ArchiveEvent implements domain.Repository: it flags a finalized event so
// it drops out of the orchestrator's hot-path scan after its grace window,
// without deleting its historical rows.
func (s *Store) ArchiveEvent(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE events SET archived = 1 WHERE event_id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("archive event %s: %w", eventID, err)
	}
	return nil
}

// GetBankroll implements domain.Repository. An account with no row yet is
// seeded at a zero balance, version 0 — the first CAS attempt always has
// something to compare against, so callers never special-case "no account".
func (s *Store) GetBankroll(ctx context.Context, account string) (domain.Bankroll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO bankroll (
		account, balance_cents, piggybank_cents, reserved_cents, peak_cents, trough_cents, version
	) VALUES (?,0,0,0,0,0,0)`, account)
	if err != nil {
		return domain.Bankroll{}, fmt.Errorf("seed bankroll %s: %w", account, err)
	}

	var b domain.Bankroll
	row := s.db.QueryRowContext(ctx, `SELECT account, balance_cents, piggybank_cents, reserved_cents,
		peak_cents, trough_cents, version FROM bankroll WHERE account = ?`, account)
	if err := row.Scan(&b.Account, &b.BalanceCents, &b.PiggybankCents, &b.ReservedCents,
		&b.PeakCents, &b.TroughCents, &b.Version); err != nil {
		return domain.Bankroll{}, fmt.Errorf("get bankroll %s: %w", account, err)
	}
	return b, nil
}

// UpdateBankroll implements domain.Repository's optimistic-concurrency CAS:
// the write only applies if the stored version still matches
// expectedVersion, returning domain.ErrVersionConflict otherwise so the
// caller's retry loop (position.Tracker.applyBankrollCAS) re-reads and
// reapplies its mutation.
func (s *Store) UpdateBankroll(ctx context.Context, b domain.Bankroll, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE bankroll SET
		balance_cents = ?, piggybank_cents = ?, reserved_cents = ?,
		peak_cents = ?, trough_cents = ?, version = ?
		WHERE account = ? AND version = ?`,
		b.BalanceCents, b.PiggybankCents, b.ReservedCents, b.PeakCents, b.TroughCents, b.Version,
		b.Account, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update bankroll %s: %w", b.Account, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bankroll %s: %w", b.Account, err)
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// maybeEvictLocked runs the FIFO eviction for one table if the store has
// crossed its size cap. Must be called with s.mu held.
func (s *Store) maybeEvictLocked(table string) {
	s.refreshSizeLocked()
	if s.cachedSize <= maxStoreBytes {
		return
	}
	s.evictLocked(table)
}

func (s *Store) refreshSizeLocked() {
	var size int64
	row := s.db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`)
	if err := row.Scan(&size); err == nil {
		s.cachedSize = size
	}
}

// evictLocked deletes the oldest evictPct of rows in table by ascending id.
// Must be called with s.mu held.
func (s *Store) evictLocked(table string) {
	var rowCount int64
	s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&rowCount)
	toDelete := int64(float64(rowCount) * evictPct)
	if toDelete < 1 {
		toDelete = 1
	}

	res, err := s.db.Exec(fmt.Sprintf(
		`DELETE FROM %s WHERE id IN (SELECT id FROM %s ORDER BY id ASC LIMIT ?)`, table, table,
	), toDelete)
	if err != nil {
		telemetry.Warnf("repository store evict %s: %v", table, err)
		return
	}

	deleted, _ := res.RowsAffected()
	s.evictCounter++
	telemetry.Infof("repository store: evicted %d rows from %s (target %d)", deleted, table, toDelete)

	if s.evictCounter%vacuumInterval == 0 {
		s.db.Exec(`PRAGMA incremental_vacuum`)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// decomposeMarketType flattens the domain.MarketType tagged union into the
// events table's sparse sport/crypto column groups.
func decomposeMarketType(mt domain.MarketType) (kind domain.MarketKind, sport, league, asset, strike string, hasStrike bool, expiry, direction string) {
	switch m := mt.(type) {
	case domain.SportMarket:
		return domain.MarketSport, m.Sport, m.League, "", "", false, "", ""
	case domain.CryptoMarket:
		exp := ""
		if !m.ExpiryUTC.IsZero() {
			exp = timeFmt(m.ExpiryUTC)
		}
		return domain.MarketCrypto, "", "", m.Asset, m.Strike.String(), m.HasStrike, exp, string(m.Direction)
	default:
		return "", "", "", "", "", false, "", ""
	}
}

var _ domain.Repository = (*Store)(nil)
