// Package common provides shared utilities for assetfolio
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for assetfolio
type Config struct {
	Environment  string          `toml:"environment"`
	BaseCurrency string          `toml:"base_currency"` // Reporting currency all values are converted to (default "SGD")
	Server       ServerConfig    `toml:"server"`
	Storage      StorageConfig   `toml:"storage"`
	Clients      ClientsConfig   `toml:"clients"`
	Dividends    DividendConfig  `toml:"dividends"`
	Benchmark    BenchmarkConfig `toml:"benchmark"`
	Logging      LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the SQLite database location.
type StorageConfig struct {
	Path string `toml:"path"` // directory; the database file lives inside it
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	MarketFeed MarketFeedConfig `toml:"marketfeed"`
}

// MarketFeedConfig holds market data API configuration
type MarketFeedConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *MarketFeedConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// DividendConfig holds withholding tax rates and the dividend lookback window.
type DividendConfig struct {
	YearsBack      int                `toml:"years_back"`
	WithholdingTax map[string]float64 `toml:"withholding_tax"` // ISO country code -> rate
	DefaultWHTRate float64            `toml:"default_wht_rate"`
}

// WHTRate returns the withholding tax rate for a country, falling back to the default.
func (c *DividendConfig) WHTRate(country string) float64 {
	if rate, ok := c.WithholdingTax[strings.ToUpper(country)]; ok {
		return rate
	}
	return c.DefaultWHTRate
}

// BenchmarkConfig holds the benchmark instrument used for behaviour-matched comparison.
type BenchmarkConfig struct {
	Ticker  string            `toml:"ticker"`
	Catalog map[string]string `toml:"catalog"` // ticker -> display name
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment:  "development",
		BaseCurrency: "SGD",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Path: "data",
		},
		Clients: ClientsConfig{
			MarketFeed: MarketFeedConfig{
				BaseURL:   "https://marketfeed.example.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
		},
		Dividends: DividendConfig{
			YearsBack: 3,
			WithholdingTax: map[string]float64{
				"US": 0.30,
				"SG": 0.00,
				"HK": 0.00,
				"GB": 0.00,
				"AU": 0.30,
				"CA": 0.25,
				"JP": 0.15,
			},
			DefaultWHTRate: 0.30,
		},
		Benchmark: BenchmarkConfig{
			Ticker: "VOO",
			Catalog: map[string]string{
				"VOO":    "S&P 500 (VOO)",
				"QQQ":    "Nasdaq 100 (QQQ)",
				"ES3.SI": "STI ETF (ES3.SI)",
				"IWDA.L": "MSCI World (IWDA)",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	validateBaseCurrency(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FOLIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FOLIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("FOLIO_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if bc := os.Getenv("FOLIO_BASE_CURRENCY"); bc != "" {
		config.BaseCurrency = strings.ToUpper(bc)
	}

	if b := os.Getenv("FOLIO_BENCHMARK"); b != "" {
		config.Benchmark.Ticker = strings.ToUpper(b)
	}

	if key := os.Getenv("MARKETFEED_API_KEY"); key != "" {
		config.Clients.MarketFeed.APIKey = key
	}
	if u := os.Getenv("MARKETFEED_BASE_URL"); u != "" {
		config.Clients.MarketFeed.BaseURL = u
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// validateBaseCurrency normalizes the base currency to an upper-case 3-letter code,
// defaulting to SGD when malformed.
func validateBaseCurrency(config *Config) {
	bc := strings.ToUpper(strings.TrimSpace(config.BaseCurrency))
	if len(bc) != 3 {
		bc = "SGD"
	}
	config.BaseCurrency = bc
}
