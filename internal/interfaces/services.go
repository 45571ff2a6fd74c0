package interfaces

import (
	"context"

	"github.com/jktan/assetfolio/internal/models"
)

// PositionOptions filters a portfolio computation.
type PositionOptions struct {
	Brokers          []string
	Tickers          []string
	IncludeDividends bool
}

// PortfolioService assembles valued positions from raw transactions.
type PortfolioService interface {
	// Positions returns the full set of valued positions for the filter.
	// Results are cached per (filter, transaction fingerprint, calendar day).
	Positions(ctx context.Context, opts PositionOptions) ([]*models.Position, error)

	// Invalidate drops all cached snapshots and derived series. Call after
	// any transaction mutation.
	Invalidate(ctx context.Context) error
}

// SeriesOptions configures time-series reconstruction.
type SeriesOptions struct {
	Frequency string // "W" weekly (default) or "M" monthly grid
}

// PerformanceService derives return metrics from assembled positions.
type PerformanceService interface {
	// PortfolioXIRR returns the money-weighted annual return as a decimal
	// (0.10 = 10%), or nil when underdetermined or unsolvable.
	PortfolioXIRR(ctx context.Context, positions []*models.Position) *float64

	// BenchmarkXIRR replays the same base-currency buy/sell flows into the
	// benchmark instrument. Nil contract as PortfolioXIRR.
	BenchmarkXIRR(ctx context.Context, positions []*models.Position, benchmark string) (*float64, error)

	// InvestmentSeries is the cumulative net-invested curve.
	InvestmentSeries(positions []*models.Position) []models.SeriesPoint

	// ValueSeries reconstructs historical portfolio market value on a date grid
	// using historical closes and historical FX rates.
	ValueSeries(ctx context.Context, positions []*models.Position, opts SeriesOptions) ([]models.SeriesPoint, error)

	// BenchmarkSeries reconstructs the behaviour-matched benchmark value on the
	// same grid.
	BenchmarkSeries(ctx context.Context, positions []*models.Position, benchmark string, opts SeriesOptions) ([]models.SeriesPoint, error)

	// DividendYearSummary aggregates net base-currency dividends by year.
	DividendYearSummary(positions []*models.Position) map[int]float64
}
