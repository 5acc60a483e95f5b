package repository

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id        TEXT PRIMARY KEY,
	market_kind      TEXT NOT NULL,
	sport            TEXT NOT NULL DEFAULT '',
	league           TEXT NOT NULL DEFAULT '',
	asset            TEXT NOT NULL DEFAULT '',
	strike           TEXT NOT NULL DEFAULT '',
	has_strike       INTEGER NOT NULL DEFAULT 0,
	expiry_utc       TEXT NOT NULL DEFAULT '',
	direction        TEXT NOT NULL DEFAULT '',
	entity_a         TEXT NOT NULL,
	entity_b         TEXT NOT NULL DEFAULT '',
	scheduled_start  TEXT NOT NULL,
	archived         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS event_states (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id        TEXT NOT NULL,
	home_score      INTEGER NOT NULL DEFAULT 0,
	away_score      INTEGER NOT NULL DEFAULT 0,
	period          TEXT NOT NULL DEFAULT '',
	seconds_remain  REAL NOT NULL DEFAULT 0,
	possession      TEXT NOT NULL DEFAULT '',
	spot            TEXT NOT NULL DEFAULT '',
	reference       TEXT NOT NULL DEFAULT '',
	time_to_expiry_ms INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	fetch_timestamp TEXT NOT NULL,
	fetch_latency_ms INTEGER NOT NULL DEFAULT 0,
	UNIQUE(event_id, fetch_timestamp)
);
CREATE INDEX IF NOT EXISTS idx_event_states_event ON event_states(event_id);

CREATE TABLE IF NOT EXISTS plays (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id  TEXT NOT NULL,
	play_id   TEXT NOT NULL,
	kind      TEXT NOT NULL,
	scoring   INTEGER NOT NULL DEFAULT 0,
	time_utc  TEXT NOT NULL,
	UNIQUE(event_id, play_id)
);

CREATE TABLE IF NOT EXISTS market_prices (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	venue       TEXT NOT NULL,
	market_id   TEXT NOT NULL,
	contract_entity TEXT NOT NULL DEFAULT '',
	event_id    TEXT NOT NULL DEFAULT '',
	yes_bid_cents INTEGER NOT NULL,
	yes_ask_cents INTEGER NOT NULL,
	yes_bid_size  INTEGER NOT NULL,
	yes_ask_size  INTEGER NOT NULL,
	liquidity     INTEGER NOT NULL,
	sequence      INTEGER NOT NULL,
	updated_utc   TEXT NOT NULL,
	UNIQUE(updated_utc, market_id, venue, contract_entity)
);
CREATE INDEX IF NOT EXISTS idx_market_prices_market ON market_prices(venue, market_id);

CREATE TABLE IF NOT EXISTS trades (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	venue            TEXT NOT NULL,
	market_id        TEXT NOT NULL,
	event_id         TEXT NOT NULL DEFAULT '',
	entity           TEXT NOT NULL DEFAULT '',
	side             TEXT NOT NULL,
	outcome          TEXT NOT NULL DEFAULT 'yes',
	qty              INTEGER NOT NULL,
	price_cents      INTEGER NOT NULL,
	fee_cents        INTEGER NOT NULL,
	status           TEXT NOT NULL,
	client_order_id  TEXT NOT NULL,
	recorded_utc     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	signal_id       TEXT NOT NULL,
	event_id        TEXT NOT NULL,
	market_id       TEXT NOT NULL,
	entity          TEXT NOT NULL DEFAULT '',
	direction       TEXT NOT NULL,
	outcome         TEXT NOT NULL DEFAULT 'yes',
	signal_type     TEXT NOT NULL,
	model_p         REAL NOT NULL,
	market_p        REAL NOT NULL,
	net_edge_pct    REAL NOT NULL,
	rejected_reason TEXT NOT NULL DEFAULT '',
	recorded_utc    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bankroll (
	account          TEXT PRIMARY KEY,
	balance_cents    INTEGER NOT NULL,
	piggybank_cents  INTEGER NOT NULL,
	reserved_cents   INTEGER NOT NULL,
	peak_cents       INTEGER NOT NULL,
	trough_cents     INTEGER NOT NULL,
	version          INTEGER NOT NULL
);
`
