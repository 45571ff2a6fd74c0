package performance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
	"github.com/jktan/assetfolio/internal/models"
)

// FXRates is the slice of the FX resolver the performance engine needs.
type FXRates interface {
	Rate(ctx context.Context, fromCurrency, toCurrency, date string) (float64, bool)
	LiveRate(ctx context.Context, fromCurrency, toCurrency string) (float64, bool)
	Prefetch(ctx context.Context, fromCurrency, toCurrency, start, end string)
}

// Service implements interfaces.PerformanceService.
type Service struct {
	market  interfaces.MarketDataClient
	fx      FXRates
	storage interfaces.StorageManager
	config  *common.Config
	logger  *common.Logger

	now func() time.Time
}

// NewService creates the performance engine.
func NewService(market interfaces.MarketDataClient, fxRates FXRates, storage interfaces.StorageManager, config *common.Config, logger *common.Logger) *Service {
	return &Service{
		market:  market,
		fx:      fxRates,
		storage: storage,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// PortfolioXIRR returns the money-weighted annual return across all positions
// as a decimal, or nil when underdetermined or unsolvable. Flows are the
// base-currency trades, each net dividend as an inflow on its ex-date, and the
// current market value as a terminal inflow.
func (s *Service) PortfolioXIRR(_ context.Context, positions []*models.Position) *float64 {
	flows := tradeFlows(positions)
	flows = append(flows, dividendFlows(positions)...)

	var terminal float64
	for _, pos := range positions {
		terminal += pos.MarketValueBase()
	}
	if terminal > 0 {
		flows = append(flows, cashFlow{date: s.now(), amount: terminal})
	}

	rate, ok := xirr(flows)
	if !ok {
		return nil
	}
	return &rate
}

// BenchmarkXIRR replays the same base-currency buy/sell amounts into the
// benchmark instrument and solves for its return. Simulated sells are capped
// at the units accumulated so far, so an early sell cannot short the benchmark.
func (s *Service) BenchmarkXIRR(ctx context.Context, positions []*models.Position, benchmark string) (*float64, error) {
	trades := sortedTrades(positions)
	if len(trades) == 0 {
		return nil, nil
	}

	sim, err := s.simulateBenchmark(ctx, trades, benchmark)
	if err != nil {
		return nil, err
	}

	flows := sim.flows
	terminal, err := s.benchmarkTerminalValue(ctx, benchmark, sim)
	if err != nil {
		return nil, err
	}
	if terminal > 0 {
		flows = append(flows, cashFlow{date: s.now(), amount: terminal})
	}

	rate, ok := xirr(flows)
	if !ok {
		return nil, nil
	}
	return &rate, nil
}

// DividendYearSummary aggregates net base-currency dividends by calendar year.
func (s *Service) DividendYearSummary(positions []*models.Position) map[int]float64 {
	summary := make(map[int]float64)
	for _, pos := range positions {
		for _, r := range pos.DividendRecords {
			summary[r.Year] += r.NetBase
		}
	}
	return summary
}

// --- benchmark simulation ---

type benchmarkSim struct {
	units    float64
	currency string
	closes   []models.ClosePrice
	flows    []cashFlow

	// events is the dated unit delta of every simulated trade, for replaying
	// the unit balance at arbitrary past dates.
	events []unitEvent
}

type unitEvent struct {
	date  string
	delta float64
}

// unitsOn returns the simulated unit balance as of date.
func (sim *benchmarkSim) unitsOn(date string) float64 {
	var units float64
	for _, ev := range sim.events {
		if ev.date > date {
			break
		}
		units += ev.delta
	}
	return units
}

// simulateBenchmark replays base-currency trade amounts into benchmark units
// using the historical close and FX rate of each trade date.
func (s *Service) simulateBenchmark(ctx context.Context, trades []*models.Transaction, benchmark string) (*benchmarkSim, error) {
	currency := s.benchmarkCurrency(ctx, benchmark)

	firstDate := trades[0].Date
	closes, err := s.market.HistoricalCloses(ctx, benchmark, firstDate, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark history for %s: %w", benchmark, err)
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("no benchmark history for %s", benchmark)
	}

	s.fx.Prefetch(ctx, currency, s.config.BaseCurrency, firstDate, s.today())

	sim := &benchmarkSim{currency: currency, closes: closes}
	for _, txn := range trades {
		date, err := time.Parse("2006-01-02", txn.Date)
		if err != nil {
			continue
		}
		closePrice, ok := closeOnOrBefore(closes, txn.Date)
		if !ok || closePrice <= 0 {
			continue
		}
		fxRate, _ := s.fx.Rate(ctx, currency, s.config.BaseCurrency, txn.Date)
		unitPrice := closePrice * fxRate
		if unitPrice <= 0 {
			continue
		}

		amountBase := txn.Price * txn.Quantity * txn.EffectiveFXRate
		switch txn.Side {
		case models.SideBuy:
			buyUnits := amountBase / unitPrice
			sim.units += buyUnits
			sim.events = append(sim.events, unitEvent{date: txn.Date, delta: buyUnits})
			sim.flows = append(sim.flows, cashFlow{date: date, amount: -amountBase})
		case models.SideSell:
			sellUnits := amountBase / unitPrice
			if sellUnits > sim.units {
				sellUnits = sim.units
			}
			if sellUnits <= 0 {
				continue
			}
			sim.units -= sellUnits
			sim.events = append(sim.events, unitEvent{date: txn.Date, delta: -sellUnits})
			sim.flows = append(sim.flows, cashFlow{date: date, amount: sellUnits * unitPrice})
		}
	}
	return sim, nil
}

func (s *Service) benchmarkTerminalValue(ctx context.Context, benchmark string, sim *benchmarkSim) (float64, error) {
	if sim.units <= 0 {
		return 0, nil
	}
	quote, err := s.market.Price(ctx, benchmark)
	if err != nil || quote == nil {
		return 0, fmt.Errorf("failed to price benchmark %s: %w", benchmark, err)
	}
	liveFX, _ := s.fx.LiveRate(ctx, sim.currency, s.config.BaseCurrency)
	return sim.units * quote.Price * liveFX, nil
}

// benchmarkCurrency resolves the benchmark's native currency: suffix
// convention first, then cached metadata, then the metadata endpoint,
// defaulting to USD.
func (s *Service) benchmarkCurrency(ctx context.Context, benchmark string) string {
	if currency, _, ok := models.InferFromSuffix(benchmark); ok {
		return currency
	}
	if meta, ok, err := s.storage.MetadataCache().Get(ctx, benchmark); err == nil && ok && meta.Currency != "" {
		return meta.Currency
	}
	if meta, err := s.market.Metadata(ctx, benchmark); err == nil && meta != nil && meta.Currency != "" {
		return meta.Currency
	}
	return "USD"
}

// --- shared helpers ---

// tradeFlows converts every position's trades into dated base-currency flows,
// sorted ascending. Buys are outflows, sells inflows.
func tradeFlows(positions []*models.Position) []cashFlow {
	var flows []cashFlow
	for _, txn := range sortedTrades(positions) {
		date, err := time.Parse("2006-01-02", txn.Date)
		if err != nil {
			continue
		}
		amountBase := txn.Price * txn.Quantity * txn.EffectiveFXRate
		switch txn.Side {
		case models.SideBuy:
			flows = append(flows, cashFlow{date: date, amount: -amountBase})
		case models.SideSell:
			flows = append(flows, cashFlow{date: date, amount: amountBase})
		}
	}
	return flows
}

// dividendFlows converts every credited dividend into a positive flow on its
// ex-date.
func dividendFlows(positions []*models.Position) []cashFlow {
	var flows []cashFlow
	for _, pos := range positions {
		for _, rec := range pos.DividendRecords {
			if rec.NetBase <= 0 {
				continue
			}
			date, err := time.Parse("2006-01-02", rec.ExDate)
			if err != nil {
				continue
			}
			flows = append(flows, cashFlow{date: date, amount: rec.NetBase})
		}
	}
	return flows
}

// sortedTrades flattens and date-orders the transactions of all positions.
func sortedTrades(positions []*models.Position) []*models.Transaction {
	var trades []*models.Transaction
	for _, pos := range positions {
		trades = append(trades, pos.Transactions...)
	}
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Date != trades[j].Date {
			return trades[i].Date < trades[j].Date
		}
		return trades[i].ID < trades[j].ID
	})
	return trades
}

// closeOnOrBefore returns the last close dated on or before target.
// Closes are ascending by date.
func closeOnOrBefore(closes []models.ClosePrice, target string) (float64, bool) {
	idx := sort.Search(len(closes), func(i int) bool {
		return closes[i].Date > target
	})
	if idx == 0 {
		return 0, false
	}
	return closes[idx-1].Close, true
}

func (s *Service) today() string {
	return s.now().Format("2006-01-02")
}
