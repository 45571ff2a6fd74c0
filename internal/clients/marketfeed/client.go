// Package marketfeed provides a client for the market data and FX quote API.
package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	DefaultBaseURL   = "https://marketfeed.example.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements interfaces.MarketDataClient and interfaces.FXQuoteClient.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new market feed client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketfeed API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("marketfeed API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

type quoteResponse struct {
	Ticker   string      `json:"ticker"`
	Price    flexFloat64 `json:"price"`
	Currency string      `json:"currency"`
}

// Price retrieves the current price for one ticker.
func (c *Client) Price(ctx context.Context, ticker string) (*models.PriceQuote, error) {
	var q quoteResponse
	if err := c.get(ctx, fmt.Sprintf("/quote/%s", url.PathEscape(ticker)), nil, &q); err != nil {
		return nil, err
	}
	return &models.PriceQuote{
		Ticker:   strings.ToUpper(ticker),
		Price:    float64(q.Price),
		Currency: q.Currency,
	}, nil
}

// PriceBatch retrieves current prices for many tickers in one round trip.
func (c *Client) PriceBatch(ctx context.Context, tickers []string) (map[string]*models.PriceQuote, error) {
	if len(tickers) == 0 {
		return map[string]*models.PriceQuote{}, nil
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(tickers, ","))

	var quotes []quoteResponse
	if err := c.get(ctx, "/quote", params, &quotes); err != nil {
		return nil, err
	}

	result := make(map[string]*models.PriceQuote, len(quotes))
	for _, q := range quotes {
		ticker := strings.ToUpper(q.Ticker)
		result[ticker] = &models.PriceQuote{
			Ticker:   ticker,
			Price:    float64(q.Price),
			Currency: q.Currency,
		}
	}
	return result, nil
}

type closeBarResponse struct {
	Date  string      `json:"date"`
	Close flexFloat64 `json:"close"`
}

// HistoricalCloses retrieves daily closes for a ticker, ascending by date.
func (c *Client) HistoricalCloses(ctx context.Context, ticker, from, to string) ([]models.ClosePrice, error) {
	params := url.Values{}
	params.Set("order", "a")
	if from != "" {
		params.Set("from", from)
	}
	if to != "" {
		params.Set("to", to)
	}

	var bars []closeBarResponse
	if err := c.get(ctx, fmt.Sprintf("/eod/%s", url.PathEscape(ticker)), params, &bars); err != nil {
		return nil, err
	}

	closes := make([]models.ClosePrice, 0, len(bars))
	for _, b := range bars {
		closes = append(closes, models.ClosePrice{Date: b.Date, Close: float64(b.Close)})
	}
	return closes, nil
}

type dividendResponse struct {
	Date  string      `json:"date"` // ex-dividend date
	Value flexFloat64 `json:"value"`
}

// Dividends retrieves ex-date dividend history from a start date, ascending.
func (c *Client) Dividends(ctx context.Context, ticker, from string) ([]models.DividendEvent, error) {
	params := url.Values{}
	if from != "" {
		params.Set("from", from)
	}

	var divs []dividendResponse
	if err := c.get(ctx, fmt.Sprintf("/div/%s", url.PathEscape(ticker)), params, &divs); err != nil {
		return nil, err
	}

	events := make([]models.DividendEvent, 0, len(divs))
	for _, d := range divs {
		events = append(events, models.DividendEvent{ExDate: d.Date, PerShare: float64(d.Value)})
	}
	return events, nil
}

type metadataResponse struct {
	Ticker   string `json:"ticker"`
	Currency string `json:"currency"`
	Country  string `json:"country"`
	Exchange string `json:"exchange"`
	Name     string `json:"name"`
	Sector   string `json:"sector"`
}

// Metadata retrieves instrument metadata for a ticker.
func (c *Client) Metadata(ctx context.Context, ticker string) (*models.TickerMetadata, error) {
	var m metadataResponse
	if err := c.get(ctx, fmt.Sprintf("/meta/%s", url.PathEscape(ticker)), nil, &m); err != nil {
		return nil, err
	}

	country := m.Country
	if country == "" {
		country = models.CountryForExchange(m.Exchange)
	}
	name := m.Name
	if name == "" {
		name = strings.ToUpper(ticker)
	}

	return &models.TickerMetadata{
		Ticker:   strings.ToUpper(ticker),
		Currency: strings.ToUpper(m.Currency),
		Country:  country,
		Exchange: m.Exchange,
		Name:     name,
		Sector:   m.Sector,
	}, nil
}

// HistoricalRates retrieves daily FX rates for a pair, ascending by date.
// Pairs are addressed in the "USDSGD" forex convention.
func (c *Client) HistoricalRates(ctx context.Context, fromCurrency, toCurrency, from, to string) ([]models.ClosePrice, error) {
	pair := strings.ToUpper(fromCurrency) + strings.ToUpper(toCurrency)
	params := url.Values{}
	params.Set("order", "a")
	if from != "" {
		params.Set("from", from)
	}
	if to != "" {
		params.Set("to", to)
	}

	var bars []closeBarResponse
	if err := c.get(ctx, fmt.Sprintf("/fx/%s/history", pair), params, &bars); err != nil {
		return nil, err
	}

	rates := make([]models.ClosePrice, 0, len(bars))
	for _, b := range bars {
		rates = append(rates, models.ClosePrice{Date: b.Date, Close: float64(b.Close)})
	}
	return rates, nil
}

type liveRateResponse struct {
	Pair string      `json:"pair"`
	Rate flexFloat64 `json:"rate"`
}

// LiveRate retrieves the current rate for a currency pair.
func (c *Client) LiveRate(ctx context.Context, fromCurrency, toCurrency string) (float64, error) {
	pair := strings.ToUpper(fromCurrency) + strings.ToUpper(toCurrency)

	var r liveRateResponse
	if err := c.get(ctx, fmt.Sprintf("/fx/%s/live", pair), nil, &r); err != nil {
		return 0, err
	}
	if r.Rate <= 0 {
		return 0, fmt.Errorf("marketfeed returned non-positive rate %v for %s", float64(r.Rate), pair)
	}
	return float64(r.Rate), nil
}
