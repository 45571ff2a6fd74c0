// Package interfaces defines service contracts for assetfolio
package interfaces

import (
	"context"

	"github.com/jktan/assetfolio/internal/models"
)

// MarketDataClient provides access to the external market data API.
type MarketDataClient interface {
	// Price retrieves the current price for one ticker.
	Price(ctx context.Context, ticker string) (*models.PriceQuote, error)

	// PriceBatch retrieves current prices for many tickers in one round trip.
	PriceBatch(ctx context.Context, tickers []string) (map[string]*models.PriceQuote, error)

	// HistoricalCloses retrieves daily closes between from and to (inclusive),
	// ascending by date. An empty "to" means today.
	HistoricalCloses(ctx context.Context, ticker, from, to string) ([]models.ClosePrice, error)

	// Dividends retrieves the ex-date dividend history from a start date,
	// ascending by ex-date.
	Dividends(ctx context.Context, ticker, from string) ([]models.DividendEvent, error)

	// Metadata retrieves instrument metadata (currency, country, exchange, name).
	Metadata(ctx context.Context, ticker string) (*models.TickerMetadata, error)
}

// FXQuoteClient provides access to the external FX rate source.
type FXQuoteClient interface {
	// HistoricalRates retrieves daily rates for a currency pair between from
	// and to (inclusive), ascending by date.
	HistoricalRates(ctx context.Context, fromCurrency, toCurrency, from, to string) ([]models.ClosePrice, error)

	// LiveRate retrieves the current rate for a currency pair.
	LiveRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error)
}
