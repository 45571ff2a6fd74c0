// Package sqlite provides SQLite-backed storage for assetfolio.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jktan/assetfolio/internal/common"
)

// schema holds the DDL for all tables. Executed on every open; all statements
// are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS transactions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		date             TEXT NOT NULL,
		ticker           TEXT NOT NULL,
		side             TEXT NOT NULL CHECK(side IN ('BUY','SELL')),
		price            REAL NOT NULL,
		quantity         REAL NOT NULL,
		broker           TEXT NOT NULL,
		currency         TEXT NOT NULL DEFAULT 'USD',
		fx_rate_to_base  REAL,
		fx_rate_override REAL,
		notes            TEXT,
		created_at       TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at       TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(date, ticker, side, broker, price, quantity)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_txn_ticker ON transactions(ticker)`,
	`CREATE INDEX IF NOT EXISTS idx_txn_broker ON transactions(broker)`,
	`CREATE INDEX IF NOT EXISTS idx_txn_date ON transactions(date)`,
	`CREATE TABLE IF NOT EXISTS fx_rate_cache (
		date          TEXT NOT NULL,
		from_currency TEXT NOT NULL,
		to_currency   TEXT NOT NULL,
		rate          REAL NOT NULL,
		fetched_at    TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (date, from_currency, to_currency)
	)`,
	`CREATE TABLE IF NOT EXISTS ticker_metadata_cache (
		ticker     TEXT PRIMARY KEY,
		currency   TEXT,
		country    TEXT,
		exchange   TEXT,
		name       TEXT,
		sector     TEXT,
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS price_cache (
		ticker     TEXT PRIMARY KEY,
		price      REAL NOT NULL,
		currency   TEXT NOT NULL,
		fetched_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS series_cache (
		cache_key               TEXT PRIMARY KEY,
		data_json               TEXT NOT NULL,
		transaction_fingerprint TEXT NOT NULL,
		updated_at              TEXT NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Store wraps the SQLite connection shared by all repositories.
type Store struct {
	db     *sql.DB
	logger *common.Logger
}

// NewStore opens (creating if needed) the database under dir and applies the schema.
func NewStore(logger *common.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "assetfolio.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // single writer; the engine is request-driven

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	logger.Debug().Str("path", path).Msg("SQLite store opened")

	return &Store{db: db, logger: logger}, nil
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
