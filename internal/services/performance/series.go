package performance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jktan/assetfolio/internal/interfaces"
	"github.com/jktan/assetfolio/internal/models"
)

// InvestmentSeries is the cumulative net-invested curve in the base currency:
// buys add their cost, sells subtract their proceeds, one point per trade date.
func (s *Service) InvestmentSeries(positions []*models.Position) []models.SeriesPoint {
	trades := sortedTrades(positions)
	if len(trades) == 0 {
		return []models.SeriesPoint{}
	}

	var points []models.SeriesPoint
	var running float64
	for _, txn := range trades {
		amountBase := txn.Price * txn.Quantity * txn.EffectiveFXRate
		switch txn.Side {
		case models.SideBuy:
			running += amountBase
		case models.SideSell:
			running -= amountBase
		}
		if n := len(points); n > 0 && points[n-1].Date == txn.Date {
			points[n-1].Value = running
			continue
		}
		points = append(points, models.SeriesPoint{Date: txn.Date, Value: running})
	}
	return points
}

// ValueSeries reconstructs the portfolio's historical market value on a
// weekly or monthly grid, using historical closes and historical FX rates.
// Results are cached against the transaction fingerprint.
func (s *Service) ValueSeries(ctx context.Context, positions []*models.Position, opts interfaces.SeriesOptions) ([]models.SeriesPoint, error) {
	trades := sortedTrades(positions)
	if len(trades) == 0 {
		return []models.SeriesPoint{}, nil
	}

	cacheKey := s.seriesKey("value", positions, opts)
	fingerprint, err := s.storage.Transactions().Fingerprint(ctx)
	if err == nil {
		if cached, ok, cerr := s.storage.SeriesCache().Get(ctx, cacheKey, fingerprint); cerr == nil && ok {
			return cached, nil
		}
	}

	grid := dateGrid(trades[0].Date, s.today(), opts.Frequency)

	// One history fetch per ticker, one FX prefetch per currency.
	histories := make(map[string][]models.ClosePrice, len(positions))
	prefetched := make(map[string]bool)
	for _, pos := range positions {
		closes, herr := s.market.HistoricalCloses(ctx, pos.Ticker, trades[0].Date, "")
		if herr != nil {
			s.logger.Warn().Err(herr).Str("ticker", pos.Ticker).Msg("No price history, excluding from value series")
			continue
		}
		histories[pos.Ticker] = closes
		if !prefetched[pos.Currency] {
			s.fx.Prefetch(ctx, pos.Currency, s.config.BaseCurrency, trades[0].Date, s.today())
			prefetched[pos.Currency] = true
		}
	}

	points := make([]models.SeriesPoint, 0, len(grid))
	for _, date := range grid {
		var total float64
		for _, pos := range positions {
			closes, ok := histories[pos.Ticker]
			if !ok {
				continue
			}
			shares := sharesHeldOn(pos.Transactions, date)
			if shares <= 0 {
				continue
			}
			closePrice, ok := closeOnOrBefore(closes, date)
			if !ok || closePrice <= 0 {
				continue
			}
			fxRate, _ := s.fx.Rate(ctx, pos.Currency, s.config.BaseCurrency, date)
			total += shares * closePrice * fxRate
		}
		points = append(points, models.SeriesPoint{Date: date, Value: total})
	}

	if fingerprint != "" {
		if err := s.storage.SeriesCache().Put(ctx, cacheKey, fingerprint, points); err != nil {
			s.logger.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache value series")
		}
	}
	return points, nil
}

// BenchmarkSeries reconstructs the behaviour-matched benchmark value on the
// same grid as ValueSeries: every trade's base-currency amount buys or sells
// benchmark units at that date's close, and the unit balance is valued at
// each grid date.
func (s *Service) BenchmarkSeries(ctx context.Context, positions []*models.Position, benchmark string, opts interfaces.SeriesOptions) ([]models.SeriesPoint, error) {
	trades := sortedTrades(positions)
	if len(trades) == 0 {
		return []models.SeriesPoint{}, nil
	}

	cacheKey := s.seriesKey("benchmark:"+benchmark, positions, opts)
	fingerprint, err := s.storage.Transactions().Fingerprint(ctx)
	if err == nil {
		if cached, ok, cerr := s.storage.SeriesCache().Get(ctx, cacheKey, fingerprint); cerr == nil && ok {
			return cached, nil
		}
	}

	sim, err := s.simulateBenchmark(ctx, trades, benchmark)
	if err != nil {
		return nil, err
	}

	grid := dateGrid(trades[0].Date, s.today(), opts.Frequency)
	points := make([]models.SeriesPoint, 0, len(grid))
	for _, date := range grid {
		units := sim.unitsOn(date)
		var value float64
		if units > 0 {
			if closePrice, ok := closeOnOrBefore(sim.closes, date); ok && closePrice > 0 {
				fxRate, _ := s.fx.Rate(ctx, sim.currency, s.config.BaseCurrency, date)
				value = units * closePrice * fxRate
			}
		}
		points = append(points, models.SeriesPoint{Date: date, Value: value})
	}

	if fingerprint != "" {
		if err := s.storage.SeriesCache().Put(ctx, cacheKey, fingerprint, points); err != nil {
			s.logger.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache benchmark series")
		}
	}
	return points, nil
}

// sharesHeldOn replays buys and sells dated on or before date as a plain sum.
// A negative mid-replay balance is allowed; grid valuation skips <= 0 results.
func sharesHeldOn(txns []*models.Transaction, date string) float64 {
	var shares float64
	for _, txn := range txns {
		if txn.Date > date {
			break
		}
		switch txn.Side {
		case models.SideBuy:
			shares += txn.Quantity
		case models.SideSell:
			shares -= txn.Quantity
		}
	}
	return shares
}

// dateGrid builds an ascending date grid from start to end, stepping weekly
// ("W", default) or monthly ("M"), always ending exactly at end.
func dateGrid(start, end, frequency string) []string {
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return nil
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil || to.Before(from) {
		return nil
	}

	step := func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }
	if strings.EqualFold(frequency, "M") {
		step = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	}

	var grid []string
	for t := from; !t.After(to); t = step(t) {
		grid = append(grid, t.Format("2006-01-02"))
	}
	if n := len(grid); n == 0 || grid[n-1] != end {
		grid = append(grid, end)
	}
	return grid
}

func (s *Service) seriesKey(kind string, positions []*models.Position, opts interfaces.SeriesOptions) string {
	tickers := make([]string, 0, len(positions))
	for _, pos := range positions {
		tickers = append(tickers, pos.Ticker)
	}
	freq := opts.Frequency
	if freq == "" {
		freq = "W"
	}
	return fmt.Sprintf("%s:%s:%s", kind, strings.ToUpper(freq), strings.Join(tickers, ","))
}
