package interfaces

import (
	"context"
	"time"

	"github.com/jktan/assetfolio/internal/models"
)

// StorageManager coordinates all storage backends.
type StorageManager interface {
	Transactions() TransactionStore
	RateCache() RateCacheStore
	MetadataCache() MetadataCacheStore
	PriceCache() PriceCacheStore
	SeriesCache() SeriesCacheStore
	KV() KVStore

	Close() error
}

// TransactionStore persists raw broker transactions.
type TransactionStore interface {
	Insert(ctx context.Context, txn *models.Transaction) (int64, error)

	// Upsert inserts, or updates price/quantity/currency when a row with the
	// same (date, ticker, side, broker, price, quantity) natural key exists.
	// Returns the row id and whether a new row was created.
	Upsert(ctx context.Context, txn *models.Transaction) (int64, bool, error)

	Update(ctx context.Context, id int64, txn *models.Transaction) error
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) (int64, error)

	// List returns transactions matching the filter, ascending by date then id.
	List(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error)

	Brokers(ctx context.Context) ([]string, error)
	Tickers(ctx context.Context) ([]string, error)

	// Fingerprint is a cheap summary (count, max id, max updated-at) that
	// changes on any add/edit/delete. Used purely for cache invalidation.
	Fingerprint(ctx context.Context) (string, error)
}

// RateCacheStore caches historical FX observations. Historical rates are
// immutable facts, so entries never expire.
type RateCacheStore interface {
	GetRate(ctx context.Context, date, fromCurrency, toCurrency string) (float64, bool, error)
	PutRate(ctx context.Context, date, fromCurrency, toCurrency string, rate float64) error
}

// MetadataCacheStore caches ticker metadata indefinitely once currency is known.
type MetadataCacheStore interface {
	Get(ctx context.Context, ticker string) (*models.TickerMetadata, bool, error)
	Put(ctx context.Context, meta *models.TickerMetadata) error
}

// PriceCacheStore caches live price quotes with a short TTL.
type PriceCacheStore interface {
	Get(ctx context.Context, ticker string, maxAge time.Duration) (*models.PriceQuote, bool, error)
	Put(ctx context.Context, quote *models.PriceQuote) error
}

// SeriesCacheStore persists computed time series, gated on the transaction
// fingerprint so a stale series is never served.
type SeriesCacheStore interface {
	Get(ctx context.Context, cacheKey, fingerprint string) ([]models.SeriesPoint, bool, error)
	Put(ctx context.Context, cacheKey, fingerprint string, points []models.SeriesPoint) error
	Purge(ctx context.Context) (int64, error)
}

// KVStore is generic keyed storage used by the portfolio snapshot cache.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}
