package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jktan/assetfolio/internal/models"
)

// TransactionStore is the SQLite-backed transaction repository.
type TransactionStore struct {
	db *sql.DB
}

// NewTransactionStore creates a transaction repository over the shared connection.
func NewTransactionStore(store *Store) *TransactionStore {
	return &TransactionStore{db: store.DB()}
}

// Insert adds a transaction. The transaction must already be validated.
func (s *TransactionStore) Insert(ctx context.Context, txn *models.Transaction) (int64, error) {
	txn.Normalize()
	if err := txn.Validate(); err != nil {
		return 0, fmt.Errorf("invalid transaction: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (date, ticker, side, price, quantity, broker, currency,
		                          fx_rate_to_base, fx_rate_override, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.Date, txn.Ticker, string(txn.Side), txn.Price, txn.Quantity, txn.Broker,
		txn.Currency, nullableRate(txn.FXRateToBase), nullableRate(txn.FXOverride), txn.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return res.LastInsertId()
}

// Upsert inserts, or updates price/quantity/currency when a row with the same
// natural key already exists.
func (s *TransactionStore) Upsert(ctx context.Context, txn *models.Transaction) (int64, bool, error) {
	txn.Normalize()
	if err := txn.Validate(); err != nil {
		return 0, false, fmt.Errorf("invalid transaction: %w", err)
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM transactions
		WHERE date = ? AND ticker = ? AND side = ? AND broker = ? AND price = ? AND quantity = ?`,
		txn.Date, txn.Ticker, string(txn.Side), txn.Broker, txn.Price, txn.Quantity,
	).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		id, err := s.Insert(ctx, txn)
		return id, true, err
	case err != nil:
		return 0, false, fmt.Errorf("failed to query existing transaction: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE transactions
		SET price = ?, quantity = ?, currency = ?, updated_at = datetime('now')
		WHERE id = ?`,
		txn.Price, txn.Quantity, txn.Currency, existingID,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to update transaction: %w", err)
	}
	return existingID, false, nil
}

// Update replaces mutable fields of a transaction by id.
func (s *TransactionStore) Update(ctx context.Context, id int64, txn *models.Transaction) error {
	txn.Normalize()
	if err := txn.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET date = ?, ticker = ?, side = ?, price = ?, quantity = ?, broker = ?,
		    currency = ?, fx_rate_to_base = ?, fx_rate_override = ?, notes = ?,
		    updated_at = datetime('now')
		WHERE id = ?`,
		txn.Date, txn.Ticker, string(txn.Side), txn.Price, txn.Quantity, txn.Broker,
		txn.Currency, nullableRate(txn.FXRateToBase), nullableRate(txn.FXOverride), txn.Notes, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d not found", id)
	}
	return nil
}

// Delete removes a transaction by id.
func (s *TransactionStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %d: %w", id, err)
	}
	return nil
}

// DeleteAll removes every transaction, returning the number deleted.
func (s *TransactionStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	return res.RowsAffected()
}

// List returns transactions matching the filter, ascending by date then id.
func (s *TransactionStore) List(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error) {
	query := `SELECT id, date, ticker, side, price, quantity, broker, currency,
	                 fx_rate_to_base, fx_rate_override, notes, created_at, updated_at
	          FROM transactions WHERE 1=1`
	var params []interface{}

	if len(filter.Tickers) > 0 {
		query += " AND ticker IN (" + placeholders(len(filter.Tickers)) + ")"
		for _, t := range filter.Tickers {
			params = append(params, strings.ToUpper(t))
		}
	}
	if len(filter.Brokers) > 0 {
		query += " AND broker IN (" + placeholders(len(filter.Brokers)) + ")"
		for _, b := range filter.Brokers {
			params = append(params, b)
		}
	}
	if len(filter.Sides) > 0 {
		query += " AND side IN (" + placeholders(len(filter.Sides)) + ")"
		for _, sd := range filter.Sides {
			params = append(params, strings.ToUpper(string(sd)))
		}
	}
	if filter.DateFrom != "" {
		query += " AND date >= ?"
		params = append(params, filter.DateFrom)
	}
	if filter.DateTo != "" {
		query += " AND date <= ?"
		params = append(params, filter.DateTo)
	}

	query += " ORDER BY date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txns, nil
}

// Brokers returns the distinct broker names.
func (s *TransactionStore) Brokers(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT broker FROM transactions ORDER BY broker`)
}

// Tickers returns the distinct tickers.
func (s *TransactionStore) Tickers(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, `SELECT DISTINCT ticker FROM transactions ORDER BY ticker`)
}

// Fingerprint summarizes the transaction set as count_maxid_maxupdated.
// Any add, edit or delete changes it.
func (s *TransactionStore) Fingerprint(ctx context.Context) (string, error) {
	var count int64
	var maxID int64
	var maxUpdated string
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(id), 0), COALESCE(MAX(updated_at), '') FROM transactions`,
	).Scan(&count, &maxID, &maxUpdated)
	if err != nil {
		return "", fmt.Errorf("failed to compute fingerprint: %w", err)
	}
	return fmt.Sprintf("%d_%d_%s", count, maxID, maxUpdated), nil
}

func (s *TransactionStore) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func scanTransaction(rows *sql.Rows) (*models.Transaction, error) {
	var txn models.Transaction
	var side string
	var fxToBase, fxOverride sql.NullFloat64
	var notes sql.NullString
	var createdAt, updatedAt string

	if err := rows.Scan(&txn.ID, &txn.Date, &txn.Ticker, &side, &txn.Price, &txn.Quantity,
		&txn.Broker, &txn.Currency, &fxToBase, &fxOverride, &notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	txn.Side = models.Side(side)
	if fxToBase.Valid {
		txn.FXRateToBase = fxToBase.Float64
	}
	if fxOverride.Valid {
		txn.FXOverride = fxOverride.Float64
	}
	if notes.Valid {
		txn.Notes = notes.String
	}
	txn.CreatedAt = parseSQLiteTime(createdAt)
	txn.UpdatedAt = parseSQLiteTime(updatedAt)
	return &txn, nil
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullableRate(rate float64) interface{} {
	if rate > 0 {
		return rate
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
