// Package dividend replays ex-date dividend history against holdings to
// compute net base-currency dividend income per position.
package dividend

import (
	"context"
	"time"

	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
	"github.com/jktan/assetfolio/internal/models"
)

// RateSource resolves a historical FX rate. The second return reports whether
// the rate is genuine or a 1.0 degrade.
type RateSource interface {
	Rate(ctx context.Context, fromCurrency, toCurrency, date string) (float64, bool)
}

// Calculator computes dividend income for a position by replaying each
// ex-date against the share count held on that date. Withholding tax is
// applied by the instrument's country, and the net amount converts to the
// base currency at the ex-date FX rate.
type Calculator struct {
	client interfaces.MarketDataClient
	rates  RateSource
	config *common.Config
	logger *common.Logger
}

// NewCalculator creates a dividend calculator.
func NewCalculator(client interfaces.MarketDataClient, rates RateSource, config *common.Config, logger *common.Logger) *Calculator {
	return &Calculator{
		client: client,
		rates:  rates,
		config: config,
		logger: logger,
	}
}

// Calculate replays the dividend history for one ticker. Transactions must be
// sorted ascending by date. The bool reports whether any FX lookup degraded.
func (c *Calculator) Calculate(ctx context.Context, ticker, currency, country string, txns []*models.Transaction) ([]models.DividendRecord, bool, error) {
	if len(txns) == 0 {
		return nil, false, nil
	}

	from := c.fetchStart(txns[0].Date)
	events, err := c.client.Dividends(ctx, ticker, from)
	if err != nil {
		return nil, false, err
	}
	if len(events) == 0 {
		return nil, false, nil
	}

	baseCurrency := c.config.BaseCurrency
	whtRate := c.config.Dividends.WHTRate(country)

	var records []models.DividendRecord
	var degraded bool
	for _, ev := range events {
		if ev.PerShare <= 0 {
			continue
		}
		shares := SharesHeldOn(txns, ev.ExDate)
		if shares <= 0 {
			continue
		}

		gross := ev.PerShare * shares
		tax := gross * whtRate
		net := gross - tax

		fxRate, ok := c.rates.Rate(ctx, currency, baseCurrency, ev.ExDate)
		if !ok {
			degraded = true
		}

		records = append(records, models.DividendRecord{
			ExDate:      ev.ExDate,
			PerShare:    ev.PerShare,
			SharesHeld:  shares,
			GrossNative: gross,
			WHTRate:     whtRate,
			TaxNative:   tax,
			NetNative:   net,
			FXRate:      fxRate,
			NetBase:     net * fxRate,
			Currency:    currency,
			Year:        yearOf(ev.ExDate),
		})
	}

	c.logger.Debug().
		Str("ticker", ticker).
		Int("events", len(events)).
		Int("credited", len(records)).
		Msg("Dividend replay complete")
	return records, degraded, nil
}

// SharesHeldOn replays buys and sells dated on or before date and returns the
// resulting share count. The running balance is a plain sum and may dip
// negative mid-replay; callers skip ex-dates where the result is <= 0. Each
// ex-date replays independently from the full history, so out-of-order
// computation cannot drift.
func SharesHeldOn(txns []*models.Transaction, date string) float64 {
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

// NetBaseTotal sums the net base-currency amounts of a record set.
func NetBaseTotal(records []models.DividendRecord) float64 {
	var total float64
	for _, r := range records {
		total += r.NetBase
	}
	return total
}

// fetchStart bounds the dividend fetch window: the first transaction date,
// clamped to the configured number of years back.
func (c *Calculator) fetchStart(firstTxnDate string) string {
	yearsBack := c.config.Dividends.YearsBack
	if yearsBack <= 0 {
		return firstTxnDate
	}
	floor := time.Now().AddDate(-yearsBack, 0, 0).Format("2006-01-02")
	if firstTxnDate > floor {
		return firstTxnDate
	}
	return floor
}

func yearOf(date string) int {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0
	}
	return t.Year()
}
