package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tickers (
	code               TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	market             TEXT NOT NULL,
	type               TEXT NOT NULL,
	sector             TEXT,
	theme              TEXT,
	launch_date        TEXT,
	expense_ratio      REAL,
	is_active          INTEGER NOT NULL DEFAULT 1,
	added_at           TEXT NOT NULL,
	purchase_date      TEXT,
	purchase_price     REAL,
	quantity           REAL,
	search_keyword     TEXT,
	relevance_keywords TEXT, -- comma-joined; empty string means none
	sort_order         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS catalog_entries (
	ticker_code        TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	market             TEXT NOT NULL,
	type               TEXT NOT NULL,
	sector             TEXT,
	listed_date        TEXT,
	is_active          INTEGER NOT NULL DEFAULT 1,
	last_close         REAL NOT NULL DEFAULT 0,
	daily_change_pct   REAL NOT NULL DEFAULT 0,
	volume             INTEGER NOT NULL DEFAULT 0,
	weekly_return_pct  REAL NOT NULL DEFAULT 0,
	foreign_net        INTEGER NOT NULL DEFAULT 0,
	institution_net    INTEGER NOT NULL DEFAULT 0,
	market_cap         INTEGER NOT NULL DEFAULT 0,
	per                REAL NOT NULL DEFAULT 0,
	pbr                REAL NOT NULL DEFAULT 0,
	dividend_yield     REAL NOT NULL DEFAULT 0,
	catalog_updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_catalog_weekly_return ON catalog_entries (weekly_return_pct DESC);
CREATE INDEX IF NOT EXISTS idx_catalog_sector ON catalog_entries (sector);

CREATE TABLE IF NOT EXISTS daily_bars (
	ticker_code       TEXT NOT NULL,
	date              TEXT NOT NULL,
	open              REAL NOT NULL,
	high              REAL NOT NULL,
	low               REAL NOT NULL,
	close             REAL NOT NULL,
	volume            INTEGER NOT NULL,
	trading_value     INTEGER NOT NULL,
	daily_change_pct  REAL NOT NULL,
	collected_at      TEXT NOT NULL,
	PRIMARY KEY (ticker_code, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_bars_ticker_date ON daily_bars (ticker_code, date DESC);

CREATE TABLE IF NOT EXISTS trading_flows (
	ticker_code        TEXT NOT NULL,
	date               TEXT NOT NULL,
	individual_net     INTEGER NOT NULL,
	foreign_net        INTEGER NOT NULL,
	institution_net    INTEGER NOT NULL,
	collected_at       TEXT NOT NULL,
	PRIMARY KEY (ticker_code, date)
);

CREATE TABLE IF NOT EXISTS intraday_ticks (
	ticker_code  TEXT NOT NULL,
	ts           TEXT NOT NULL,
	price        REAL NOT NULL,
	volume       INTEGER NOT NULL,
	change_pct   REAL NOT NULL,
	PRIMARY KEY (ticker_code, ts)
);
CREATE INDEX IF NOT EXISTS idx_intraday_ticker_ts ON intraday_ticks (ticker_code, ts DESC);

CREATE TABLE IF NOT EXISTS news_items (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker_code  TEXT NOT NULL,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL UNIQUE,
	source       TEXT,
	published_at TEXT NOT NULL,
	collected_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_news_ticker ON news_items (ticker_code, published_at DESC);

CREATE TABLE IF NOT EXISTS stock_fundamentals (
	ticker_code     TEXT PRIMARY KEY,
	market_cap      INTEGER NOT NULL,
	per             REAL NOT NULL,
	pbr             REAL NOT NULL,
	eps             REAL NOT NULL,
	bps             REAL NOT NULL,
	dividend_yield  REAL NOT NULL,
	roe             REAL NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS etf_fundamentals (
	ticker_code     TEXT PRIMARY KEY,
	nav             REAL NOT NULL,
	aum             INTEGER NOT NULL,
	expense_ratio   REAL NOT NULL,
	tracking_index  TEXT,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS etf_holdings (
	etf_code      TEXT NOT NULL,
	holding_code  TEXT NOT NULL,
	holding_name  TEXT NOT NULL,
	weight_pct    REAL NOT NULL,
	PRIMARY KEY (etf_code, holding_code)
);

CREATE TABLE IF NOT EXISTS collection_state (
	ticker_code         TEXT NOT NULL,
	data_kind           TEXT NOT NULL,
	last_price_date     TEXT,
	last_success_at     TEXT,
	last_error          TEXT,
	consecutive_errors  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (ticker_code, data_kind)
);

CREATE TABLE IF NOT EXISTS app_settings (
	key    TEXT PRIMARY KEY,
	value  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_rules (
	id                 TEXT PRIMARY KEY,
	ticker_code        TEXT NOT NULL,
	alert_type         TEXT NOT NULL,
	direction          TEXT NOT NULL,
	target_price       REAL NOT NULL,
	memo               TEXT,
	is_active          INTEGER NOT NULL DEFAULT 1,
	created_at         TEXT NOT NULL,
	last_triggered_at  TEXT
);

CREATE TABLE IF NOT EXISTS alert_history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	rule_id      TEXT,
	ticker_code  TEXT NOT NULL,
	alert_type   TEXT NOT NULL,
	message      TEXT NOT NULL,
	triggered_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_history_rule_time ON alert_history (rule_id, triggered_at DESC);
`
