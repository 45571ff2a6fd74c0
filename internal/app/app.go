// Package app wires configuration, storage, clients and services into one
// shared core used by cmd/folio-server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jktan/assetfolio/internal/clients/marketfeed"
	"github.com/jktan/assetfolio/internal/common"
	"github.com/jktan/assetfolio/internal/interfaces"
	"github.com/jktan/assetfolio/internal/services/dividend"
	"github.com/jktan/assetfolio/internal/services/fx"
	"github.com/jktan/assetfolio/internal/services/performance"
	"github.com/jktan/assetfolio/internal/services/portfolio"
	"github.com/jktan/assetfolio/internal/storage/sqlite"
)

// App holds all initialized services and clients.
type App struct {
	Config             *common.Config
	Logger             *common.Logger
	Storage            interfaces.StorageManager
	MarketClient       interfaces.MarketDataClient
	FXResolver         *fx.Resolver
	PortfolioService   interfaces.PortfolioService
	PerformanceService interfaces.PerformanceService
	StartupTime        time.Time

	scheduler *scheduler
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients and services. configPath may be empty,
// in which case FOLIO_CONFIG, then the binary directory, then the development
// default are tried.
func NewApp(configPath string) (*App, error) {
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := sqlite.NewManager(logger, config.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if config.Clients.MarketFeed.APIKey == "" {
		logger.Warn().Msg("Market feed API key not configured - live data will be unavailable")
	}

	marketClient := marketfeed.NewClient(config.Clients.MarketFeed.APIKey,
		marketfeed.WithBaseURL(config.Clients.MarketFeed.BaseURL),
		marketfeed.WithRateLimit(config.Clients.MarketFeed.RateLimit),
		marketfeed.WithTimeout(config.Clients.MarketFeed.GetTimeout()),
		marketfeed.WithLogger(logger),
	)

	fxResolver := fx.NewResolver(storageManager.RateCache(), marketClient, logger)
	dividendCalc := dividend.NewCalculator(marketClient, fxResolver, config, logger)
	portfolioService := portfolio.NewService(storageManager, marketClient, fxResolver, dividendCalc, config, logger)
	performanceService := performance.NewService(marketClient, fxResolver, storageManager, config, logger)

	a := &App{
		Config:             config,
		Logger:             logger,
		Storage:            storageManager,
		MarketClient:       marketClient,
		FXResolver:         fxResolver,
		PortfolioService:   portfolioService,
		PerformanceService: performanceService,
		StartupTime:        time.Now(),
	}

	logger.Info().
		Str("environment", config.Environment).
		Str("base_currency", config.BaseCurrency).
		Str("storage", config.Storage.Path).
		Msg("Application initialized")

	return a, nil
}

// StartScheduler launches the background maintenance jobs.
func (a *App) StartScheduler() {
	a.scheduler = newScheduler(a.PortfolioService, a.Logger)
	a.scheduler.start()
}

// Invalidate drops all derived caches. Exposed for transaction mutations.
func (a *App) Invalidate(ctx context.Context) error {
	return a.PortfolioService.Invalidate(ctx)
}

// Close stops background jobs and closes storage.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.stop()
	}
	if err := a.Storage.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
	}
}
