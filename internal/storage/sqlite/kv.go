package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// KV is a generic key-value table, used by the portfolio snapshot cache.
type KV struct {
	db *sql.DB
}

// NewKV creates the key-value repository.
func NewKV(store *Store) *KV {
	return &KV{db: store.DB()}
}

// Get returns the value for key if present.
func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query kv: %w", err)
	}
	return value, true, nil
}

// Set stores a value under key.
func (s *KV) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set kv %q: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (s *KV) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete kv %q: %w", key, err)
	}
	return nil
}

// DeletePrefix removes all keys with the prefix, returning the number removed.
func (s *KV) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to delete kv prefix %q: %w", prefix, err)
	}
	return res.RowsAffected()
}
