// Package models defines data structures for assetfolio
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ValidSide returns true if s is a recognised trade side.
func ValidSide(s Side) bool {
	return s == SideBuy || s == SideSell
}

// Transaction represents a single broker trade. Dates are "YYYY-MM-DD" strings
// so chronological order matches lexicographic order.
type Transaction struct {
	ID           int64     `json:"id"`
	Date         string    `json:"date"`
	Ticker       string    `json:"ticker"`
	Side         Side      `json:"side"`
	Price        float64   `json:"price"`    // native currency, per share
	Quantity     float64   `json:"quantity"` // shares
	Broker       string    `json:"broker"`
	Currency     string    `json:"currency"`
	FXRateToBase float64   `json:"fx_rate_to_base,omitempty"`  // stored rate from a prior resolution; 0 = unset
	FXOverride   float64   `json:"fx_rate_override,omitempty"` // operator-entered rate, wins over everything; 0 = unset
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// EffectiveFXRate is resolved during portfolio assembly (override > stored >
	// historical lookup). Not persisted.
	EffectiveFXRate float64 `json:"effective_fx_rate,omitempty"`
}

// Cost returns quantity × price in the native currency.
func (t *Transaction) Cost() float64 {
	return t.Quantity * t.Price
}

// CostBase returns the cost converted at the transaction's effective FX rate.
func (t *Transaction) CostBase() float64 {
	return t.Quantity * t.Price * t.EffectiveFXRate
}

// Normalize upper-cases ticker/side/currency and trims whitespace.
func (t *Transaction) Normalize() {
	t.Ticker = strings.ToUpper(strings.TrimSpace(t.Ticker))
	t.Side = Side(strings.ToUpper(strings.TrimSpace(string(t.Side))))
	t.Broker = strings.TrimSpace(t.Broker)
	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
}

// Validate rejects malformed transactions at the ingestion boundary.
// The valuation engine assumes its inputs already passed this check.
func (t *Transaction) Validate() error {
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", t.Date)
	}
	if t.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	if !ValidSide(t.Side) {
		return fmt.Errorf("invalid side %q: want BUY or SELL", t.Side)
	}
	if t.Price <= 0 {
		return fmt.Errorf("price must be positive, got %v", t.Price)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", t.Quantity)
	}
	if t.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	return nil
}

// TransactionFilter narrows a transaction query. Empty slices match everything.
type TransactionFilter struct {
	Tickers  []string
	Brokers  []string
	Sides    []Side
	DateFrom string
	DateTo   string
}

// SortTransactions orders transactions ascending by date, ties broken by
// row id (insertion order). Replay order depends on this.
func SortTransactions(txns []*Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if txns[i].Date != txns[j].Date {
			return txns[i].Date < txns[j].Date
		}
		return txns[i].ID < txns[j].ID
	})
}
