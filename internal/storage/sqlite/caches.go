package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jktan/assetfolio/internal/models"
)

// RateCache stores historical FX observations. Entries never expire —
// a historical rate is an immutable fact once observed.
type RateCache struct {
	db *sql.DB
}

// NewRateCache creates the FX rate cache repository.
func NewRateCache(store *Store) *RateCache {
	return &RateCache{db: store.DB()}
}

// GetRate returns the cached rate for (date, from, to) if present.
func (c *RateCache) GetRate(ctx context.Context, date, fromCurrency, toCurrency string) (float64, bool, error) {
	var rate float64
	err := c.db.QueryRowContext(ctx, `
		SELECT rate FROM fx_rate_cache
		WHERE date = ? AND from_currency = ? AND to_currency = ?`,
		date, strings.ToUpper(fromCurrency), strings.ToUpper(toCurrency),
	).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query fx rate cache: %w", err)
	}
	return rate, true, nil
}

// PutRate stores an observed rate for (date, from, to).
func (c *RateCache) PutRate(ctx context.Context, date, fromCurrency, toCurrency string, rate float64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO fx_rate_cache (date, from_currency, to_currency, rate, fetched_at)
		VALUES (?, ?, ?, ?, datetime('now'))`,
		date, strings.ToUpper(fromCurrency), strings.ToUpper(toCurrency), rate,
	)
	if err != nil {
		return fmt.Errorf("failed to store fx rate: %w", err)
	}
	return nil
}

// MetadataCache stores ticker metadata indefinitely once currency is known.
type MetadataCache struct {
	db *sql.DB
}

// NewMetadataCache creates the ticker metadata cache repository.
func NewMetadataCache(store *Store) *MetadataCache {
	return &MetadataCache{db: store.DB()}
}

// Get returns cached metadata for a ticker if present.
func (c *MetadataCache) Get(ctx context.Context, ticker string) (*models.TickerMetadata, bool, error) {
	var m models.TickerMetadata
	var currency, country, exchange, name, sector sql.NullString
	err := c.db.QueryRowContext(ctx, `
		SELECT ticker, currency, country, exchange, name, sector
		FROM ticker_metadata_cache WHERE ticker = ?`,
		strings.ToUpper(ticker),
	).Scan(&m.Ticker, &currency, &country, &exchange, &name, &sector)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query metadata cache: %w", err)
	}
	m.Currency = currency.String
	m.Country = country.String
	m.Exchange = exchange.String
	m.Name = name.String
	m.Sector = sector.String
	return &m, true, nil
}

// Put stores metadata for a ticker.
func (c *MetadataCache) Put(ctx context.Context, meta *models.TickerMetadata) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ticker_metadata_cache (ticker, currency, country, exchange, name, sector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		strings.ToUpper(meta.Ticker), meta.Currency, meta.Country, meta.Exchange, meta.Name, meta.Sector,
	)
	if err != nil {
		return fmt.Errorf("failed to store metadata: %w", err)
	}
	return nil
}

// PriceCache stores live quotes with caller-supplied freshness on read.
type PriceCache struct {
	db *sql.DB
}

// NewPriceCache creates the live price cache repository.
func NewPriceCache(store *Store) *PriceCache {
	return &PriceCache{db: store.DB()}
}

// Get returns the cached quote for a ticker when younger than maxAge.
func (c *PriceCache) Get(ctx context.Context, ticker string, maxAge time.Duration) (*models.PriceQuote, bool, error) {
	var q models.PriceQuote
	err := c.db.QueryRowContext(ctx, `
		SELECT ticker, price, currency FROM price_cache
		WHERE ticker = ?
		AND (julianday('now') - julianday(fetched_at)) * 86400 < ?`,
		strings.ToUpper(ticker), maxAge.Seconds(),
	).Scan(&q.Ticker, &q.Price, &q.Currency)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query price cache: %w", err)
	}
	return &q, true, nil
}

// Put stores a live quote.
func (c *PriceCache) Put(ctx context.Context, quote *models.PriceQuote) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO price_cache (ticker, price, currency, fetched_at)
		VALUES (?, ?, ?, datetime('now'))`,
		strings.ToUpper(quote.Ticker), quote.Price, quote.Currency,
	)
	if err != nil {
		return fmt.Errorf("failed to store price: %w", err)
	}
	return nil
}
