package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
server:
  listen_addr: ":9000"
  production: true
schedule:
  interval: 2m
stores:
  - id: main
    name: Main Store
    url: "https://shop.example.com/"
    consumer_key: ck_123
    consumer_secret: cs_456
    currency: EUR
    timeout: 10s
    scrape_interval: 90s
`
	cfg := loadFromString(t, yaml)

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if !cfg.Server.Production {
		t.Error("production: got false")
	}
	if len(cfg.Stores) != 1 {
		t.Fatalf("stores: got %d, want 1", len(cfg.Stores))
	}
	s := cfg.Stores[0]
	if s.URL != "https://shop.example.com" {
		t.Errorf("url should lose its trailing slash, got %q", s.URL)
	}
	if s.Currency != "EUR" {
		t.Errorf("currency: got %q", s.Currency)
	}
	if s.Timeout != 10*time.Second {
		t.Errorf("timeout: got %v", s.Timeout)
	}
	if s.ScrapeInterval != 90*time.Second {
		t.Errorf("scrape_interval: got %v", s.ScrapeInterval)
	}
	if got := cfg.CycleInterval(); got != 2*time.Minute {
		t.Errorf("CycleInterval: got %v, want 2m", got)
	}
}

func TestLoad_StoreDefaults(t *testing.T) {
	yaml := `
stores:
  - id: main
    url: "https://shop.example.com"
    consumer_key: ck
    consumer_secret: cs
`
	cfg := loadFromString(t, yaml)
	s := cfg.Stores[0]

	if !s.Enabled {
		t.Error("enabled should default to true")
	}
	if s.Timeout != DefaultTimeout {
		t.Errorf("default timeout: got %v, want %v", s.Timeout, DefaultTimeout)
	}
	if s.ScrapeInterval != DefaultScrapeInterval {
		t.Errorf("default scrape_interval: got %v, want %v", s.ScrapeInterval, DefaultScrapeInterval)
	}
	if s.MaxRetries != DefaultMaxRetries {
		t.Errorf("default max_retries: got %d, want %d", s.MaxRetries, DefaultMaxRetries)
	}
	if s.AuthMode != AuthBasic {
		t.Errorf("default auth_mode: got %q, want %q", s.AuthMode, AuthBasic)
	}
	if s.Currency != DefaultCurrency {
		t.Errorf("default currency: got %q", s.Currency)
	}
	if s.DisplayName() != "main" {
		t.Errorf("DisplayName should fall back to id, got %q", s.DisplayName())
	}
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("default listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if got := cfg.CycleInterval(); got != DefaultScrapeInterval {
		t.Errorf("CycleInterval: got %v, want %v", got, DefaultScrapeInterval)
	}
}

func TestLoad_CredentialsFromEnv(t *testing.T) {
	t.Setenv("TEST_STORE_CK", "ck_env")
	t.Setenv("TEST_STORE_CS", "cs_env")

	yaml := `
stores:
  - id: main
    url: "https://shop.example.com"
    consumer_key_env: TEST_STORE_CK
    consumer_secret_env: TEST_STORE_CS
`
	cfg := loadFromString(t, yaml)
	if cfg.Stores[0].ConsumerKey != "ck_env" {
		t.Errorf("consumer key: got %q", cfg.Stores[0].ConsumerKey)
	}
	if cfg.Stores[0].ConsumerSecret != "cs_env" {
		t.Errorf("consumer secret: got %q", cfg.Stores[0].ConsumerSecret)
	}
}

func TestLoad_CollectsAllProblems(t *testing.T) {
	yaml := `
stores:
  - id: a
    url: "shop.example.com"
    consumer_key: ck
    consumer_secret: cs
  - id: b
    url: "https://b.example.com"
    consumer_secret: cs
    scrape_interval: 30s
  - id: c
    url: "https://c.example.com"
    consumer_key: ck
    consumer_secret: cs
    timeout: 1s
`
	_, err := loadStringErr(t, yaml)
	if err == nil {
		t.Fatal("expected error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error should be a *ValidationError, got %T: %v", err, err)
	}
	if len(verr.Problems) != 3 {
		t.Fatalf("problems: got %d, want 3 (%v)", len(verr.Problems), verr)
	}

	msg := err.Error()
	for _, want := range []string{"url", "consumer_key", "scrape_interval", "timeout"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q should mention %q", msg, want)
		}
	}
}

func TestLoad_DuplicateIDs(t *testing.T) {
	yaml := `
stores:
  - id: main
    url: "https://a.example.com"
    consumer_key: ck
    consumer_secret: cs
  - id: main
    url: "https://b.example.com"
    consumer_key: ck
    consumer_secret: cs
`
	_, err := loadStringErr(t, yaml)
	if err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoad_NoStores(t *testing.T) {
	_, err := loadStringErr(t, "server:\n  production: true\n")
	if err == nil {
		t.Fatal("expected error for empty store list")
	}
}

func TestLoad_UnknownAuthMode(t *testing.T) {
	yaml := `
stores:
  - id: main
    url: "https://a.example.com"
    consumer_key: ck
    consumer_secret: cs
    auth_mode: oauth1
`
	_, err := loadStringErr(t, yaml)
	if err == nil || !strings.Contains(err.Error(), "auth_mode") {
		t.Fatalf("expected auth_mode error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnabledStoresAndCycleInterval(t *testing.T) {
	yaml := `
stores:
  - id: a
    url: "https://a.example.com"
    consumer_key: ck
    consumer_secret: cs
    scrape_interval: 10m
  - id: b
    url: "https://b.example.com"
    consumer_key: ck
    consumer_secret: cs
    enabled: false
    scrape_interval: 1m
  - id: c
    url: "https://c.example.com"
    consumer_key: ck
    consumer_secret: cs
    scrape_interval: 3m
`
	cfg := loadFromString(t, yaml)

	enabled := cfg.EnabledStores()
	if len(enabled) != 2 || enabled[0].ID != "a" || enabled[1].ID != "c" {
		t.Fatalf("EnabledStores: got %+v", enabled)
	}
	// b is disabled, so its 1m interval does not count.
	if got := cfg.CycleInterval(); got != 3*time.Minute {
		t.Errorf("CycleInterval: got %v, want 3m", got)
	}
}

func TestSameStores(t *testing.T) {
	base := `
stores:
  - id: a
    url: "https://a.example.com"
    consumer_key: ck
    consumer_secret: cs
`
	a := loadFromString(t, base)
	b := loadFromString(t, base)
	if !SameStores(a, b) {
		t.Error("identical store lists should compare equal")
	}
	c := loadFromString(t, strings.Replace(base, "a.example.com", "z.example.com", 1))
	if SameStores(a, c) {
		t.Error("different urls should not compare equal")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
