package common

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_DefaultBaseCurrency(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.BaseCurrency != "SGD" {
		t.Errorf("BaseCurrency default = %q, want %q", cfg.BaseCurrency, "SGD")
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("FOLIO_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_BaseCurrencyEnvOverride(t *testing.T) {
	t.Setenv("FOLIO_BASE_CURRENCY", "usd")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)
	validateBaseCurrency(cfg)

	if cfg.BaseCurrency != "USD" {
		t.Errorf("BaseCurrency = %q, want USD", cfg.BaseCurrency)
	}
}

func TestConfig_MalformedBaseCurrencyFallsBack(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.BaseCurrency = "DOLLARS"
	validateBaseCurrency(cfg)

	if cfg.BaseCurrency != "SGD" {
		t.Errorf("BaseCurrency = %q, want SGD fallback", cfg.BaseCurrency)
	}
}

func TestConfig_WHTRateLookup(t *testing.T) {
	cfg := NewDefaultConfig()

	cases := []struct {
		country string
		want    float64
	}{
		{"US", 0.30},
		{"us", 0.30},
		{"SG", 0.00},
		{"JP", 0.15},
		{"ZZ", 0.30}, // unmapped -> default
	}
	for _, tc := range cases {
		if got := cfg.Dividends.WHTRate(tc.country); got != tc.want {
			t.Errorf("WHTRate(%q) = %v, want %v", tc.country, got, tc.want)
		}
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
base_currency = "USD"

[server]
port = 7070

[benchmark]
ticker = "QQQ"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.BaseCurrency != "USD" {
		t.Errorf("BaseCurrency = %q, want USD", cfg.BaseCurrency)
	}
	if cfg.Benchmark.Ticker != "QQQ" {
		t.Errorf("Benchmark.Ticker = %q, want QQQ", cfg.Benchmark.Ticker)
	}
}

func TestLoadConfig_MissingFileIsSkipped(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadConfig with missing file: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}
