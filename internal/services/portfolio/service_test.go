package portfolio

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
	"github.com/jktan/assetfolio/internal/models"
)

// --- In-memory storage manager ---

type memTxStore struct {
	txns        []*models.Transaction
	fingerprint string
}

func (s *memTxStore) Insert(_ context.Context, txn *models.Transaction) (int64, error) {
	s.txns = append(s.txns, txn)
	return int64(len(s.txns)), nil
}

func (s *memTxStore) Upsert(_ context.Context, txn *models.Transaction) (int64, bool, error) {
	s.txns = append(s.txns, txn)
	return int64(len(s.txns)), true, nil
}

func (s *memTxStore) Update(context.Context, int64, *models.Transaction) error { return nil }
func (s *memTxStore) Delete(context.Context, int64) error                      { return nil }
func (s *memTxStore) DeleteAll(context.Context) (int64, error)                 { return 0, nil }

func (s *memTxStore) List(context.Context, models.TransactionFilter) ([]*models.Transaction, error) {
	out := make([]*models.Transaction, len(s.txns))
	copy(out, s.txns)
	models.SortTransactions(out)
	return out, nil
}

func (s *memTxStore) Brokers(context.Context) ([]string, error) { return nil, nil }
func (s *memTxStore) Tickers(context.Context) ([]string, error) { return nil, nil }

func (s *memTxStore) Fingerprint(context.Context) (string, error) {
	if s.fingerprint == "" {
		return fmt.Sprintf("%d_0_x", len(s.txns)), nil
	}
	return s.fingerprint, nil
}

type memMetaCache struct {
	metas map[string]*models.TickerMetadata
}

func (c *memMetaCache) Get(_ context.Context, ticker string) (*models.TickerMetadata, bool, error) {
	meta, ok := c.metas[ticker]
	return meta, ok, nil
}

func (c *memMetaCache) Put(_ context.Context, meta *models.TickerMetadata) error {
	c.metas[meta.Ticker] = meta
	return nil
}

type memPriceCache struct {
	quotes map[string]*models.PriceQuote
}

func (c *memPriceCache) Get(_ context.Context, ticker string, _ time.Duration) (*models.PriceQuote, bool, error) {
	q, ok := c.quotes[ticker]
	return q, ok, nil
}

func (c *memPriceCache) Put(_ context.Context, quote *models.PriceQuote) error {
	c.quotes[quote.Ticker] = quote
	return nil
}

type memSeriesCache struct {
	purges int
}

func (c *memSeriesCache) Get(context.Context, string, string) ([]models.SeriesPoint, bool, error) {
	return nil, false, nil
}
func (c *memSeriesCache) Put(context.Context, string, string, []models.SeriesPoint) error {
	return nil
}
func (c *memSeriesCache) Purge(context.Context) (int64, error) {
	c.purges++
	return 0, nil
}

type memKV struct {
	data          map[string]string
	prefixDeletes int
}

func (s *memKV) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memKV) Set(_ context.Context, key, value string) error {
	s.data[key] = value
	return nil
}

func (s *memKV) Delete(_ context.Context, key string) error {
	delete(s.data, key)
	return nil
}

func (s *memKV) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	s.prefixDeletes++
	var n int64
	for k := range s.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

type memRateCache struct{}

func (memRateCache) GetRate(context.Context, string, string, string) (float64, bool, error) {
	return 0, false, nil
}
func (memRateCache) PutRate(context.Context, string, string, string, float64) error { return nil }

type memStorage struct {
	tx     *memTxStore
	meta   *memMetaCache
	price  *memPriceCache
	series *memSeriesCache
	kv     *memKV
}

func newMemStorage() *memStorage {
	return &memStorage{
		tx:     &memTxStore{},
		meta:   &memMetaCache{metas: make(map[string]*models.TickerMetadata)},
		price:  &memPriceCache{quotes: make(map[string]*models.PriceQuote)},
		series: &memSeriesCache{},
		kv:     &memKV{data: make(map[string]string)},
	}
}

func (m *memStorage) Transactions() interfaces.TransactionStore    { return m.tx }
func (m *memStorage) RateCache() interfaces.RateCacheStore         { return memRateCache{} }
func (m *memStorage) MetadataCache() interfaces.MetadataCacheStore { return m.meta }
func (m *memStorage) PriceCache() interfaces.PriceCacheStore       { return m.price }
func (m *memStorage) SeriesCache() interfaces.SeriesCacheStore     { return m.series }
func (m *memStorage) KV() interfaces.KVStore                       { return m.kv }
func (m *memStorage) Close() error                                 { return nil }

// --- Market / FX / dividend mocks ---

type stubMarket struct {
	prices     map[string]float64
	metas      map[string]*models.TickerMetadata
	batchCalls int
	priceCalls int
}

func (m *stubMarket) Price(_ context.Context, ticker string) (*models.PriceQuote, error) {
	m.priceCalls++
	price, ok := m.prices[ticker]
	if !ok {
		return nil, fmt.Errorf("unknown ticker %s", ticker)
	}
	return &models.PriceQuote{Ticker: ticker, Price: price}, nil
}

func (m *stubMarket) PriceBatch(_ context.Context, tickers []string) (map[string]*models.PriceQuote, error) {
	m.batchCalls++
	out := make(map[string]*models.PriceQuote)
	for _, t := range tickers {
		if price, ok := m.prices[t]; ok {
			out[t] = &models.PriceQuote{Ticker: t, Price: price}
		}
	}
	return out, nil
}

func (m *stubMarket) HistoricalCloses(context.Context, string, string, string) ([]models.ClosePrice, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *stubMarket) Dividends(context.Context, string, string) ([]models.DividendEvent, error) {
	return nil, nil
}

func (m *stubMarket) Metadata(_ context.Context, ticker string) (*models.TickerMetadata, error) {
	meta, ok := m.metas[ticker]
	if !ok {
		return nil, fmt.Errorf("no metadata for %s", ticker)
	}
	return meta, nil
}

type stubFX struct {
	liveRates map[string]float64
	liveOK    bool
}

func (f *stubFX) Rate(_ context.Context, from, to, _ string) (float64, bool) {
	if from == to {
		return 1.0, true
	}
	return 1.0, false
}

func (f *stubFX) LiveRate(_ context.Context, from, to string) (float64, bool) {
	if from == to {
		return 1.0, true
	}
	if rate, ok := f.liveRates[from+to]; ok {
		return rate, f.liveOK
	}
	return 1.0, false
}

func (f *stubFX) EffectiveRate(ctx context.Context, txn *models.Transaction, base string) (float64, bool) {
	if txn.FXOverride > 0 {
		return txn.FXOverride, true
	}
	if txn.FXRateToBase > 0 {
		return txn.FXRateToBase, true
	}
	return f.Rate(ctx, txn.Currency, base, txn.Date)
}

type stubDividends struct {
	records map[string][]models.DividendRecord
	err     error
}

func (d *stubDividends) Calculate(_ context.Context, ticker, _, _ string, _ []*models.Transaction) ([]models.DividendRecord, bool, error) {
	if d.err != nil {
		return nil, false, d.err
	}
	return d.records[ticker], false, nil
}

func newTestService(storage *memStorage, market *stubMarket, fxs *stubFX, div *stubDividends) *Service {
	svc := NewService(storage, market, fxs, div, common.NewDefaultConfig(), common.NewSilentLogger())
	svc.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }
	return svc
}

// --- Tests ---

func TestPositions_SingleBuyValuation(t *testing.T) {
	storage := newMemStorage()
	storage.tx.txns = []*models.Transaction{{
		ID: 1, Date: "2024-01-15", Ticker: "AAPL", Side: models.SideBuy,
		Price: 100, Quantity: 10, Broker: "IBKR", Currency: "USD", FXRateToBase: 1.35,
	}}
	market := &stubMarket{
		prices: map[string]float64{"AAPL": 150},
		metas:  map[string]*models.TickerMetadata{"AAPL": {Ticker: "AAPL", Currency: "USD", Exchange: "NMS", Name: "Apple Inc"}},
	}
	fxs := &stubFX{liveRates: map[string]float64{"USDSGD": 1.34}, liveOK: true}
	svc := newTestService(storage, market, fxs, &stubDividends{})

	positions, err := svc.Positions(context.Background(), interfaces.PositionOptions{})
	require.NoError(t, err)
	require.Len(t, positions, 1)

	pos := positions[0]
	assert.Equal(t, "AAPL", pos.Ticker)
	assert.Equal(t, "USD", pos.Currency)
	assert.Equal(t, "US", pos.Country)
	assert.Equal(t, 10.0, pos.Shares)
	assert.Equal(t, 150.0, pos.LivePrice)
	assert.Equal(t, 1.34, pos.LiveFXRate)
	assert.False(t, pos.FXDegraded)

	assert.InDelta(t, 1350.0, 10*100*1.35, 1e-9) // cost at the stored transaction rate
	assert.InDelta(t, 2010.0, pos.MarketValueBase(), 1e-9)
	assert.InDelta(t, 670.0, pos.UnrealizedPNLBase(), 1e-9)
}

func TestPositions_SuffixMetadataSkipsClient(t *testing.T) {
	storage := newMemStorage()
	storage.tx.txns = []*models.Transaction{{
		ID: 1, Date: "2024-01-15", Ticker: "D05.SI", Side: models.SideBuy,
		Price: 30, Quantity: 100, Broker: "DBS", Currency: "SGD",
	}}
	market := &stubMarket{prices: map[string]float64{"D05.SI": 35}}
	svc := newTestService(storage, market, &stubFX{liveOK: true}, &stubDividends{})

	positions, err := svc.Positions(context.Background(), interfaces.PositionOptions{})
	require.NoError(t, err)
	require.Len(t, positions, 1)

	assert.Equal(t, "SGD", positions[0].Currency)
	assert.Equal(t, "SG", positions[0].Country)
	// SGD -> SGD base needs no live FX and no metadata endpoint call
	assert.Equal(t, 1.0, positions[0].LiveFXRate)
	assert.False(t, positions[0].FXDegraded)
}

func TestPositions_SnapshotCacheHit(t *testing.T) {
	storage := newMemStorage()
	storage.tx.txns = []*models.Transaction{{
		ID: 1, Date: "2024-01-15", Ticker: "AAPL", Side: models.SideBuy,
		Price: 100, Quantity: 10, Broker: "IBKR", Currency: "USD", FXRateToBase: 1.35,
	}}
	market := &stubMarket{
		prices: map[string]float64{"AAPL": 150},
		metas:  map[string]*models.TickerMetadata{"AAPL": {Ticker: "AAPL", Currency: "USD", Exchange: "NMS"}},
	}
	fxs := &stubFX{liveRates: map[string]float64{"USDSGD": 1.34}, liveOK: true}
	svc := newTestService(storage, market, fxs, &stubDividends{})

	first, err := svc.Positions(context.Background(), interfaces.PositionOptions{})
	require.NoError(t, err)
	batchCalls := market.batchCalls

	second, err := svc.Positions(context.Background(), interfaces.PositionOptions{})
	require.NoError(t, err)
	assert.Equal(t, batchCalls, market.batchCalls, "cache hit must not refetch prices")
	assert.Equal(t, first[0].MarketValueBase(), second[0].MarketValueBase())
}

func TestPositions_FingerprintChangeBypassesCache(t *testing.T) {
	storage := newMemStorage()
	storage.tx.txns = []*models.Transaction{{
		ID: 1, Date: "2024-01-15", Ticker: "AAPL", Side: models.SideBuy,
		Price: 100, Quantity: 10, Broker: "IBKR", Currency: "USD", FXRateToBase: 1.35,
	}}
	market := &stubMarket{
		prices: map[string]float64{"AAPL": 150},
		metas:  map[string]*models.TickerMetadata{"AAPL": {Ticker: "AAPL", Currency: "USD", Exchange: "NMS"}},
	}
	svc := newTestService(storage, market, &stubFX{liveOK: true}, &stubDividends{})

	_, err := svc.Positions(context.Background(), interfaces.PositionOptions{})
	require.NoError(t, err)
	require.Len(t, storageSnapshotKeys(storage), 1)

	// Mutate the set and drop the cached price so the recompute is observable
	// through the price fetch as well as the new snapshot key.
	storage.tx.fingerprint = "2_2_y"
	storage.price.quotes = make(map[string]*models.PriceQuote)
	batchCalls := market.batchCalls

	_, err = svc.Positions(context.Background(), interfaces.PositionOptions{})
	require.NoError(t, err)
	assert.Greater(t, market.batchCalls, batchCalls, "changed fingerprint must recompute")
	assert.Len(t, storageSnapshotKeys(storage), 2, "each fingerprint gets its own snapshot")
}

func TestPositions_DividendFailureIsIsolated(t *testing.T) {
	storage := newMemStorage()
	storage.tx.txns = []*models.Transaction{{
		ID: 1, Date: "2024-01-15", Ticker: "AAPL", Side: models.SideBuy,
		Price: 100, Quantity: 10, Broker: "IBKR", Currency: "USD", FXRateToBase: 1.35,
	}}
	market := &stubMarket{
		prices: map[string]float64{"AAPL": 150},
		metas:  map[string]*models.TickerMetadata{"AAPL": {Ticker: "AAPL", Currency: "USD", Exchange: "NMS"}},
	}
	div := &stubDividends{err: fmt.Errorf("upstream down")}
	svc := newTestService(storage, market, &stubFX{liveOK: true}, div)

	positions, err := svc.Positions(context.Background(), interfaces.PositionOptions{IncludeDividends: true})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 0.0, positions[0].DividendsNetBase)
	assert.Equal(t, 10.0, positions[0].Shares)
}

func TestPositions_FXDegradeSurfaces(t *testing.T) {
	storage := newMemStorage()
	storage.tx.txns = []*models.Transaction{{
		ID: 1, Date: "2024-01-15", Ticker: "AAPL", Side: models.SideBuy,
		Price: 100, Quantity: 10, Broker: "IBKR", Currency: "USD",
	}}
	market := &stubMarket{
		prices: map[string]float64{"AAPL": 150},
		metas:  map[string]*models.TickerMetadata{"AAPL": {Ticker: "AAPL", Currency: "USD", Exchange: "NMS"}},
	}
	// No stored txn rate and no live rate available: everything degrades to 1.0
	svc := newTestService(storage, market, &stubFX{}, &stubDividends{})

	positions, err := svc.Positions(context.Background(), interfaces.PositionOptions{})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].FXDegraded)
	assert.Equal(t, 1.0, positions[0].LiveFXRate)
}

func TestPositions_EmptyPortfolio(t *testing.T) {
	svc := newTestService(newMemStorage(), &stubMarket{}, &stubFX{}, &stubDividends{})

	positions, err := svc.Positions(context.Background(), interfaces.PositionOptions{})
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestInvalidate_DropsSnapshotsAndSeries(t *testing.T) {
	storage := newMemStorage()
	storage.kv.data["snapshot:1_1_x:2026-08-31:t=|b=|d=false"] = "[]"
	storage.kv.data["other:key"] = "keep"
	svc := newTestService(storage, &stubMarket{}, &stubFX{}, &stubDividends{})

	require.NoError(t, svc.Invalidate(context.Background()))

	_, ok := storage.kv.data["other:key"]
	assert.True(t, ok, "non-snapshot keys survive")
	assert.Equal(t, 1, storage.kv.prefixDeletes)
	assert.Equal(t, 1, storage.series.purges)
	assert.Empty(t, storageSnapshotKeys(storage))
}

func storageSnapshotKeys(storage *memStorage) []string {
	var keys []string
	for k := range storage.kv.data {
		if len(k) >= len(snapshotKeyPrefix) && k[:len(snapshotKeyPrefix)] == snapshotKeyPrefix {
			keys = append(keys, k)
		}
	}
	return keys
}
