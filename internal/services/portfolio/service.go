// Package portfolio assembles valued positions from raw broker transactions:
// average-cost replay, dividend credit, live pricing and base-currency
// conversion, with a day-scoped snapshot cache in front.
package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
	"github.com/jktan/assetfolio/internal/models"
)

const (
	snapshotKeyPrefix = "snapshot:"

	// livePriceTTL bounds staleness of cached live quotes.
	livePriceTTL = 5 * time.Minute
)

// FXService resolves historical, live and per-transaction FX rates. The bool
// reports whether the rate is genuine or a 1.0 degrade.
type FXService interface {
	Rate(ctx context.Context, fromCurrency, toCurrency, date string) (float64, bool)
	LiveRate(ctx context.Context, fromCurrency, toCurrency string) (float64, bool)
	EffectiveRate(ctx context.Context, txn *models.Transaction, baseCurrency string) (float64, bool)
}

// DividendCalculator replays dividend history for one ticker.
type DividendCalculator interface {
	Calculate(ctx context.Context, ticker, currency, country string, txns []*models.Transaction) ([]models.DividendRecord, bool, error)
}

// Service implements interfaces.PortfolioService.
type Service struct {
	storage   interfaces.StorageManager
	market    interfaces.MarketDataClient
	fx        FXService
	dividends DividendCalculator
	config    *common.Config
	logger    *common.Logger

	now func() time.Time
}

// NewService creates the portfolio assembler.
func NewService(storage interfaces.StorageManager, market interfaces.MarketDataClient, fxService FXService, dividends DividendCalculator, config *common.Config, logger *common.Logger) *Service {
	return &Service{
		storage:   storage,
		market:    market,
		fx:        fxService,
		dividends: dividends,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Positions returns the valued positions for the filter, sorted by ticker.
// Snapshots are cached per (filter, transaction fingerprint, calendar day);
// live prices and live FX still refresh inside a day via their own TTLs, so
// the cache only pins the replayed state, which the fingerprint guards.
func (s *Service) Positions(ctx context.Context, opts interfaces.PositionOptions) ([]*models.Position, error) {
	txns, err := s.storage.Transactions().List(ctx, models.TransactionFilter{
		Tickers: opts.Tickers,
		Brokers: opts.Brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 {
		return []*models.Position{}, nil
	}

	fingerprint, err := s.storage.Transactions().Fingerprint(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint transactions: %w", err)
	}

	cacheKey := s.snapshotKey(opts, fingerprint)
	if cached, ok := s.readSnapshot(ctx, cacheKey); ok {
		s.logger.Debug().Str("key", cacheKey).Msg("Portfolio snapshot cache hit")
		return cached, nil
	}

	positions, err := s.assemble(ctx, txns, opts)
	if err != nil {
		return nil, err
	}

	s.writeSnapshot(ctx, cacheKey, positions)
	return positions, nil
}

// Invalidate drops all cached snapshots and derived series.
func (s *Service) Invalidate(ctx context.Context) error {
	removed, err := s.storage.KV().DeletePrefix(ctx, snapshotKeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to drop snapshots: %w", err)
	}
	purged, err := s.storage.SeriesCache().Purge(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge series cache: %w", err)
	}
	s.logger.Info().
		Int64("snapshots", removed).
		Int64("series", purged).
		Msg("Portfolio caches invalidated")
	return nil
}

func (s *Service) assemble(ctx context.Context, txns []*models.Transaction, opts interfaces.PositionOptions) ([]*models.Position, error) {
	baseCurrency := s.config.BaseCurrency

	grouped := groupByTicker(txns)
	positions := make([]*models.Position, 0, len(grouped))
	for ticker, group := range grouped {
		meta := s.lookupMetadata(ctx, ticker)

		pos := &models.Position{
			Ticker:   ticker,
			Name:     meta.Name,
			Currency: meta.Currency,
			Country:  meta.Country,
		}

		for _, txn := range group {
			rate, ok := s.fx.EffectiveRate(ctx, txn, baseCurrency)
			if !ok {
				pos.FXDegraded = true
			}
			txn.EffectiveFXRate = rate
		}

		Accumulate(pos, group)

		if opts.IncludeDividends {
			records, degraded, err := s.dividends.Calculate(ctx, ticker, meta.Currency, meta.Country, group)
			if err != nil {
				// Dividend failures never break valuation.
				s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Dividend replay failed, continuing without")
			} else {
				pos.DividendRecords = records
				for _, r := range records {
					pos.DividendsNetBase += r.NetBase
				}
				if degraded {
					pos.FXDegraded = true
				}
			}
		}

		positions = append(positions, pos)
	}

	s.attachLivePrices(ctx, positions)
	s.attachLiveFX(ctx, positions, baseCurrency)

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Ticker < positions[j].Ticker
	})
	return positions, nil
}

// lookupMetadata resolves currency/country/name for a ticker: cached metadata
// first, then the suffix convention (no network), then the metadata endpoint.
// Unresolvable tickers default to USD/US and are not cached.
func (s *Service) lookupMetadata(ctx context.Context, ticker string) *models.TickerMetadata {
	if meta, ok, err := s.storage.MetadataCache().Get(ctx, ticker); err == nil && ok {
		return meta
	}

	if currency, country, ok := models.InferFromSuffix(ticker); ok {
		meta := &models.TickerMetadata{Ticker: ticker, Currency: currency, Country: country}
		if err := s.storage.MetadataCache().Put(ctx, meta); err != nil {
			s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache ticker metadata")
		}
		return meta
	}

	meta, err := s.market.Metadata(ctx, ticker)
	if err != nil || meta == nil || meta.Currency == "" {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Metadata unresolvable, assuming USD/US")
		return &models.TickerMetadata{Ticker: ticker, Currency: "USD", Country: "US"}
	}
	if meta.Country == "" {
		meta.Country = models.CountryForExchange(meta.Exchange)
	}
	if meta.Country == "" {
		meta.Country = "US"
	}
	if err := s.storage.MetadataCache().Put(ctx, meta); err != nil {
		s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache ticker metadata")
	}
	return meta
}

// attachLivePrices sets LivePrice on every position: TTL cache, then one batch
// request, then per-ticker fallback for anything the batch missed. A position
// whose price cannot be found keeps LivePrice 0.
func (s *Service) attachLivePrices(ctx context.Context, positions []*models.Position) {
	var missing []string
	byTicker := make(map[string]*models.Position, len(positions))
	for _, pos := range positions {
		byTicker[pos.Ticker] = pos
		if quote, ok, err := s.storage.PriceCache().Get(ctx, pos.Ticker, livePriceTTL); err == nil && ok {
			pos.LivePrice = quote.Price
			continue
		}
		missing = append(missing, pos.Ticker)
	}
	if len(missing) == 0 {
		return
	}

	quotes, err := s.market.PriceBatch(ctx, missing)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Batch price lookup failed")
		quotes = nil
	}
	for _, ticker := range missing {
		quote := quotes[ticker]
		if quote == nil {
			quote, err = s.market.Price(ctx, ticker)
			if err != nil || quote == nil {
				s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Price unavailable")
				continue
			}
		}
		byTicker[ticker].LivePrice = quote.Price
		if err := s.storage.PriceCache().Put(ctx, quote); err != nil {
			s.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache price")
		}
	}
}

// attachLiveFX resolves one live rate per distinct native currency and fans it
// out to the positions priced in that currency.
func (s *Service) attachLiveFX(ctx context.Context, positions []*models.Position, baseCurrency string) {
	rates := make(map[string]float64)
	degraded := make(map[string]bool)
	for _, pos := range positions {
		currency := pos.Currency
		if _, ok := rates[currency]; !ok {
			rate, genuine := s.fx.LiveRate(ctx, currency, baseCurrency)
			rates[currency] = rate
			degraded[currency] = !genuine
		}
		pos.LiveFXRate = rates[currency]
		if degraded[currency] {
			pos.FXDegraded = true
		}
	}
}

// snapshotKey builds the day-scoped cache key. The fingerprint component makes
// explicit invalidation a safety net rather than a correctness requirement.
func (s *Service) snapshotKey(opts interfaces.PositionOptions, fingerprint string) string {
	filter := fmt.Sprintf("t=%s|b=%s|d=%t",
		strings.Join(opts.Tickers, ","),
		strings.Join(opts.Brokers, ","),
		opts.IncludeDividends,
	)
	return snapshotKeyPrefix + fingerprint + ":" + s.now().Format("2006-01-02") + ":" + filter
}

func (s *Service) readSnapshot(ctx context.Context, key string) ([]*models.Position, bool) {
	raw, ok, err := s.storage.KV().Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var positions []*models.Position
	if err := json.Unmarshal([]byte(raw), &positions); err != nil {
		s.logger.Warn().Err(err).Msg("Corrupt snapshot cache entry, recomputing")
		return nil, false
	}
	return positions, true
}

func (s *Service) writeSnapshot(ctx context.Context, key string, positions []*models.Position) {
	raw, err := json.Marshal(positions)
	if err != nil {
		return
	}
	if err := s.storage.KV().Set(ctx, key, string(raw)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store portfolio snapshot")
	}
}

func groupByTicker(txns []*models.Transaction) map[string][]*models.Transaction {
	grouped := make(map[string][]*models.Transaction)
	for _, txn := range txns {
		grouped[txn.Ticker] = append(grouped[txn.Ticker], txn)
	}
	return grouped
}
