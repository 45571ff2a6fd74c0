package sqlite

import (
	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
)

// Manager implements interfaces.StorageManager over one SQLite database.
type Manager struct {
	store *Store

	transactions  *TransactionStore
	rateCache     *RateCache
	metadataCache *MetadataCache
	priceCache    *PriceCache
	seriesCache   *SeriesCache
	kv            *KV
}

// NewManager opens the database and wires all repositories.
func NewManager(logger *common.Logger, dir string) (*Manager, error) {
	store, err := NewStore(logger, dir)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:         store,
		transactions:  NewTransactionStore(store),
		rateCache:     NewRateCache(store),
		metadataCache: NewMetadataCache(store),
		priceCache:    NewPriceCache(store),
		seriesCache:   NewSeriesCache(store),
		kv:            NewKV(store),
	}, nil
}

func (m *Manager) Transactions() interfaces.TransactionStore    { return m.transactions }
func (m *Manager) RateCache() interfaces.RateCacheStore         { return m.rateCache }
func (m *Manager) MetadataCache() interfaces.MetadataCacheStore { return m.metadataCache }
func (m *Manager) PriceCache() interfaces.PriceCacheStore       { return m.priceCache }
func (m *Manager) SeriesCache() interfaces.SeriesCacheStore     { return m.seriesCache }
func (m *Manager) KV() interfaces.KVStore                       { return m.kv }

// Close closes the underlying database.
func (m *Manager) Close() error {
	return m.store.Close()
}
