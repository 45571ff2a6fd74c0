package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jktan/assetfolio/internal/models"
)

// SeriesCache persists computed time series, gated on the transaction
// fingerprint: a cached series is only served while the underlying
// transaction set is unchanged.
type SeriesCache struct {
	db *sql.DB
}

// NewSeriesCache creates the series cache repository.
func NewSeriesCache(store *Store) *SeriesCache {
	return &SeriesCache{db: store.DB()}
}

// Get returns the cached series when the fingerprint matches.
func (c *SeriesCache) Get(ctx context.Context, cacheKey, fingerprint string) ([]models.SeriesPoint, bool, error) {
	var dataJSON, storedFP string
	err := c.db.QueryRowContext(ctx, `
		SELECT data_json, transaction_fingerprint FROM series_cache WHERE cache_key = ?`,
		cacheKey,
	).Scan(&dataJSON, &storedFP)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query series cache: %w", err)
	}
	if storedFP != fingerprint {
		return nil, false, nil
	}

	var points []models.SeriesPoint
	if err := json.Unmarshal([]byte(dataJSON), &points); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached series: %w", err)
	}
	return points, true, nil
}

// Put stores a series under cacheKey with its fingerprint (write-through).
func (c *SeriesCache) Put(ctx context.Context, cacheKey, fingerprint string, points []models.SeriesPoint) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to encode series: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO series_cache (cache_key, data_json, transaction_fingerprint, updated_at)
		VALUES (?, ?, ?, datetime('now'))`,
		cacheKey, string(data), fingerprint,
	)
	if err != nil {
		return fmt.Errorf("failed to store series: %w", err)
	}
	return nil
}

// Purge deletes all cached series, returning the number removed.
func (c *SeriesCache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM series_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge series cache: %w", err)
	}
	return res.RowsAffected()
}
