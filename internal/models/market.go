package models

import "strings"

// PriceQuote is a live price observation for a ticker.
type PriceQuote struct {
	Ticker   string  `json:"ticker"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// TickerMetadata describes a listed instrument. Cached indefinitely once the
// currency is known since it rarely changes.
type TickerMetadata struct {
	Ticker   string `json:"ticker"`
	Currency string `json:"currency"`
	Country  string `json:"country"`
	Exchange string `json:"exchange"`
	Name     string `json:"name"`
	Sector   string `json:"sector,omitempty"`
}

// ClosePrice is a single daily close observation. Dates are "YYYY-MM-DD".
type ClosePrice struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// DividendEvent is one declared dividend: ex-date and amount per share,
// in the instrument's native currency.
type DividendEvent struct {
	ExDate   string  `json:"ex_date"`
	PerShare float64 `json:"per_share"`
}

// SeriesPoint is one point of a (date, value) time series.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// exchangeToCountry maps exchange codes to ISO country codes for
// withholding tax purposes.
var exchangeToCountry = map[string]string{
	// US exchanges
	"NMS": "US", "NYQ": "US", "NGM": "US", "NCM": "US", "ASE": "US",
	"BTS": "US", "PCX": "US",
	"SES": "SG",
	"HKG": "HK",
	"LSE": "GB",
	"ASX": "AU",
	"TOR": "CA", "VAN": "CA",
	"JPX": "JP",
}

// suffixInfo maps ticker suffix conventions to (currency, country).
var suffixInfo = []struct {
	suffix   string
	currency string
	country  string
}{
	{".SI", "SGD", "SG"},
	{".HK", "HKD", "HK"},
	{".L", "GBP", "GB"},
	{".AX", "AUD", "AU"},
	{".TO", "CAD", "CA"},
	{".T", "JPY", "JP"},
}

// CountryForExchange returns the ISO country for an exchange code, or "" when unknown.
func CountryForExchange(exchange string) string {
	return exchangeToCountry[strings.ToUpper(exchange)]
}

// InferFromSuffix resolves currency and country from a ticker's suffix
// convention. Returns ok=false for suffix-less (assumed US) tickers.
func InferFromSuffix(ticker string) (currency, country string, ok bool) {
	upper := strings.ToUpper(ticker)
	for _, s := range suffixInfo {
		if strings.HasSuffix(upper, s.suffix) {
			return s.currency, s.country, true
		}
	}
	return "USD", "US", false
}
