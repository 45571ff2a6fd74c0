// Package fx resolves currency-pair rates for historical dates and for now,
// with caching and triangulation through USD.
package fx

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
	"github.com/jktan/assetfolio/internal/models"
)

const (
	// anchorCurrency is the intermediate leg for triangulated pairs.
	anchorCurrency = "USD"

	// DefaultLiveTTL bounds staleness of live rates.
	DefaultLiveTTL = 5 * time.Minute

	// fetchWindowAfter/fetchWindowBefore size the historical fetch window:
	// a few days forward first, widened a week back when markets were closed.
	fetchWindowAfter  = 5
	fetchWindowBefore = 7
)

// Resolver answers "what is 1 unit of currency A worth in currency B on date D
// (or now)". Historical observations are cached permanently; live rates are
// cached for a short TTL. Lookups degrade to 1.0 rather than fail — the
// second return value reports whether the rate is genuine.
type Resolver struct {
	cache  interfaces.RateCacheStore
	quotes interfaces.FXQuoteClient
	logger *common.Logger

	liveTTL time.Duration
	now     func() time.Time

	mu   sync.Mutex
	live map[string]liveEntry
}

type liveEntry struct {
	rate      float64
	fetchedAt time.Time
}

// ResolverOption configures the resolver.
type ResolverOption func(*Resolver)

// WithLiveTTL sets the live rate cache TTL.
func WithLiveTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.liveTTL = ttl
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a resolver over a rate cache and an FX quote source.
func NewResolver(cache interfaces.RateCacheStore, quotes interfaces.FXQuoteClient, logger *common.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:   cache,
		quotes:  quotes,
		logger:  logger,
		liveTTL: DefaultLiveTTL,
		now:     time.Now,
		live:    make(map[string]liveEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rate resolves the rate for one unit of fromCurrency in toCurrency on a
// historical date ("YYYY-MM-DD"). Returns (1.0, false) when fully
// unresolvable — callers should surface the degrade, not trust the figure.
func (r *Resolver) Rate(ctx context.Context, fromCurrency, toCurrency, date string) (float64, bool) {
	from := strings.ToUpper(fromCurrency)
	to := strings.ToUpper(toCurrency)

	if from == to {
		return 1.0, true
	}

	if rate, ok, err := r.cache.GetRate(ctx, date, from, to); err == nil && ok {
		return rate, true
	}

	if rate, ok := r.fetchHistorical(ctx, from, to, date); ok {
		if err := r.cache.PutRate(ctx, date, from, to, rate); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to cache fx rate")
		}
		return rate, true
	}

	// Triangulate through the anchor when no direct pair exists.
	if from != anchorCurrency && to != anchorCurrency {
		r1, ok1 := r.Rate(ctx, from, anchorCurrency, date)
		r2, ok2 := r.Rate(ctx, anchorCurrency, to, date)
		if ok1 && ok2 {
			rate := r1 * r2
			if err := r.cache.PutRate(ctx, date, from, to, rate); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to cache triangulated fx rate")
			}
			return rate, true
		}
	}

	r.logger.Warn().
		Str("from", from).
		Str("to", to).
		Str("date", date).
		Msg("FX rate unresolvable, degrading to 1.0")
	return 1.0, false
}

// LiveRate resolves the current rate with a short-TTL cache. Same degrade
// contract as Rate.
func (r *Resolver) LiveRate(ctx context.Context, fromCurrency, toCurrency string) (float64, bool) {
	from := strings.ToUpper(fromCurrency)
	to := strings.ToUpper(toCurrency)

	if from == to {
		return 1.0, true
	}

	pair := from + to
	r.mu.Lock()
	if entry, ok := r.live[pair]; ok && r.now().Sub(entry.fetchedAt) < r.liveTTL {
		r.mu.Unlock()
		return entry.rate, true
	}
	r.mu.Unlock()

	rate, err := r.quotes.LiveRate(ctx, from, to)
	if err == nil && rate > 0 {
		r.storeLive(pair, rate)
		return rate, true
	}

	if from != anchorCurrency && to != anchorCurrency {
		r1, ok1 := r.LiveRate(ctx, from, anchorCurrency)
		r2, ok2 := r.LiveRate(ctx, anchorCurrency, to)
		if ok1 && ok2 {
			rate := r1 * r2
			r.storeLive(pair, rate)
			return rate, true
		}
	}

	r.logger.Warn().
		Str("from", from).
		Str("to", to).
		Msg("Live FX rate unresolvable, degrading to 1.0")
	return 1.0, false
}

// EffectiveRate resolves the FX rate for a transaction: operator override
// wins, then a previously stored per-transaction rate, then a historical
// lookup for the transaction date.
func (r *Resolver) EffectiveRate(ctx context.Context, txn *models.Transaction, baseCurrency string) (float64, bool) {
	if txn.FXOverride > 0 {
		return txn.FXOverride, true
	}
	if txn.FXRateToBase > 0 {
		return txn.FXRateToBase, true
	}

	currency := txn.Currency
	if currency == "" {
		currency = "USD"
	}
	return r.Rate(ctx, currency, baseCurrency, txn.Date)
}

// Prefetch bulk-loads and caches rates for a date range, warming the cache
// ahead of time-series reconstruction.
func (r *Resolver) Prefetch(ctx context.Context, fromCurrency, toCurrency, start, end string) {
	from := strings.ToUpper(fromCurrency)
	to := strings.ToUpper(toCurrency)
	if from == to {
		return
	}

	rates, err := r.quotes.HistoricalRates(ctx, from, to, start, end)
	if err != nil {
		r.logger.Warn().Err(err).Str("pair", from+to).Msg("FX prefetch failed")
		return
	}
	for _, obs := range rates {
		if obs.Close <= 0 {
			continue
		}
		if err := r.cache.PutRate(ctx, obs.Date, from, to, obs.Close); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to cache prefetched fx rate")
			continue
		}
	}
}

// fetchHistorical pulls a small window around date from the quote source and
// picks the closest observation on or before date — never a future rate.
// Falls back to the earliest observation when the window only has later dates.
func (r *Resolver) fetchHistorical(ctx context.Context, from, to, date string) (float64, bool) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, false
	}

	start := date
	end := day.AddDate(0, 0, fetchWindowAfter).Format("2006-01-02")

	rates, err := r.quotes.HistoricalRates(ctx, from, to, start, end)
	if err != nil || len(rates) == 0 {
		// Widen the window backwards: the date may fall on a weekend or holiday.
		start = day.AddDate(0, 0, -fetchWindowBefore).Format("2006-01-02")
		rates, err = r.quotes.HistoricalRates(ctx, from, to, start, end)
		if err != nil || len(rates) == 0 {
			return 0, false
		}
	}

	if rate, ok := closestOnOrBefore(rates, date); ok {
		return rate, true
	}
	if rates[0].Close > 0 {
		return rates[0].Close, true
	}
	return 0, false
}

// closestOnOrBefore returns the last observation dated on or before target.
// Observations are ascending by date.
func closestOnOrBefore(rates []models.ClosePrice, target string) (float64, bool) {
	var best float64
	var found bool
	for _, obs := range rates {
		if obs.Date > target {
			break
		}
		if obs.Close > 0 {
			best = obs.Close
			found = true
		}
	}
	return best, found
}

func (r *Resolver) storeLive(pair string, rate float64) {
	r.mu.Lock()
	r.live[pair] = liveEntry{rate: rate, fetchedAt: r.now()}
	r.mu.Unlock()
}
