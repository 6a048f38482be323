package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultListenAddr     = ":9464"
	DefaultWSInterval     = 5 * time.Second
	DefaultStatusTTL      = 30 * time.Minute
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultScrapeInterval = 5 * time.Minute
	DefaultCurrency       = "USD"
)

// Lower bounds enforced on every store.
const (
	MinScrapeInterval = 60 * time.Second
	MinTimeout        = 5 * time.Second
)

// Auth modes understood by the store client.
const (
	AuthBasic = "basic"
	AuthQuery = "query"
)

var schemePrefix = regexp.MustCompile(`^https?://`)

func init() {
	// Report field names as they appear in the YAML file.
	validation.ErrorTag = "yaml"
}

// Config is the top-level exporter configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Schedule ScheduleConfig `yaml:"schedule"`

	// Stores is the ordered list of store back-ends to poll.
	Stores []Store `yaml:"stores"`
}

// ServerConfig holds the operator-facing listener settings.
type ServerConfig struct {
	// ListenAddr is the HTTP address for /metrics, /health and /api/v1.
	ListenAddr string `yaml:"listen_addr"`

	// GRPCAddr is the address of the grpc.health.v1 service. Empty disables it.
	GRPCAddr string `yaml:"grpc_addr"`

	// Production suppresses internal error detail on the scrape endpoint.
	Production bool `yaml:"production"`

	// RuntimeMetrics adds Go runtime and process collectors to /metrics.
	RuntimeMetrics bool `yaml:"runtime_metrics"`

	// WSInterval controls how often the status stream pushes to clients.
	WSInterval time.Duration `yaml:"ws_interval"`

	// StatusTTL is how long a store's last cycle result stays visible.
	StatusTTL time.Duration `yaml:"status_ttl"`
}

// ScheduleConfig controls the recurring collection cycle.
type ScheduleConfig struct {
	// Interval between cycles. Zero means the smallest scrape_interval of
	// the enabled stores.
	Interval time.Duration `yaml:"interval"`

	// MaxConcurrency bounds how many stores are collected at once.
	// Zero means no limit.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// Store describes one store back-end. Values are built once by Load and
// never mutated afterwards.
type Store struct {
	// ID is a unique identifier, used as the store_id label.
	ID string `yaml:"id"`

	// Name is the human-readable store name, used as the store_name label.
	Name string `yaml:"name"`

	// URL is the base URL of the store, e.g. https://shop.example.com.
	URL string `yaml:"url"`

	// ConsumerKey and ConsumerSecret are the REST API credentials. Either the
	// literal value or the *_env variant naming an environment variable.
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerKeyEnv    string `yaml:"consumer_key_env"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	ConsumerSecretEnv string `yaml:"consumer_secret_env"`

	// Currency is the ISO 4217 code reported alongside revenue series.
	Currency string `yaml:"currency"`

	// Enabled stores take part in collection cycles.
	Enabled bool `yaml:"enabled"`

	// Timeout bounds every HTTP call made against this store.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries bounds the startup connection probe attempts.
	MaxRetries int `yaml:"max_retries"`

	// ScrapeInterval is the preferred collection interval for this store.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// AuthMode is one of: basic | query.
	AuthMode string `yaml:"auth_mode"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig holds per-store TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for staging stores with self-signed certificates.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// UnmarshalYAML applies per-store defaults before decoding so that omitted
// fields keep their default values.
func (s *Store) UnmarshalYAML(n *yaml.Node) error {
	type plain Store
	p := plain{
		Currency:       DefaultCurrency,
		Enabled:        true,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		ScrapeInterval: DefaultScrapeInterval,
		AuthMode:       AuthBasic,
	}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*s = Store(p)
	return nil
}

// DisplayName returns Name, falling back to ID.
func (s Store) DisplayName() string {
	if s.Name == "" {
		return s.ID
	}
	return s.Name
}

// Validate checks one store's fields.
func (s Store) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required),
		validation.Field(&s.URL,
			validation.Required,
			validation.Match(schemePrefix).Error("must start with http:// or https://")),
		validation.Field(&s.ConsumerKey, validation.Required),
		validation.Field(&s.ConsumerSecret, validation.Required),
		validation.Field(&s.ScrapeInterval,
			validation.Required,
			validation.Min(MinScrapeInterval).Error("must be at least 60s")),
		validation.Field(&s.Timeout,
			validation.Required,
			validation.Min(MinTimeout).Error("must be at least 5s")),
		validation.Field(&s.MaxRetries, validation.Min(0)),
		validation.Field(&s.AuthMode, validation.In(AuthBasic, AuthQuery)),
	)
}

// resolve fills credentials from the environment where *_env is set.
func (s *Store) resolve() {
	if s.ConsumerKey == "" && s.ConsumerKeyEnv != "" {
		s.ConsumerKey = os.Getenv(s.ConsumerKeyEnv)
	}
	if s.ConsumerSecret == "" && s.ConsumerSecretEnv != "" {
		s.ConsumerSecret = os.Getenv(s.ConsumerSecretEnv)
	}
	s.URL = strings.TrimRight(s.URL, "/")
}

// EnabledStores returns the enabled stores in configuration order.
func (c *Config) EnabledStores() []Store {
	out := make([]Store, 0, len(c.Stores))
	for _, s := range c.Stores {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// CycleInterval returns Schedule.Interval, or the smallest scrape interval
// among the enabled stores when it is unset.
func (c *Config) CycleInterval() time.Duration {
	if c.Schedule.Interval > 0 {
		return c.Schedule.Interval
	}
	var shortest time.Duration
	for _, s := range c.EnabledStores() {
		if shortest == 0 || s.ScrapeInterval < shortest {
			shortest = s.ScrapeInterval
		}
	}
	if shortest == 0 {
		return DefaultScrapeInterval
	}
	return shortest
}

// SameStores reports whether two configs describe the same store list.
func SameStores(a, b *Config) bool {
	return slices.Equal(a.Stores, b.Stores)
}

// ValidationError collects every configuration problem found by Load.
// It is fatal at startup.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("%d problem(s): %s", len(e.Problems), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Problems }

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults; credentials given via
// *_env are resolved from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	for i := range cfg.Stores {
		cfg.Stores[i].resolve()
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			WSInterval: DefaultWSInterval,
			StatusTTL:  DefaultStatusTTL,
		},
	}
}

// validate checks every constraint and reports all violations at once.
func validate(cfg *Config) error {
	var problems []error
	if cfg.Server.ListenAddr == "" {
		problems = append(problems, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.WSInterval <= 0 {
		problems = append(problems, errors.New("server.ws_interval must be positive"))
	}
	if cfg.Server.StatusTTL <= 0 {
		problems = append(problems, errors.New("server.status_ttl must be positive"))
	}
	if cfg.Schedule.Interval < 0 {
		problems = append(problems, errors.New("schedule.interval must not be negative"))
	}
	if cfg.Schedule.MaxConcurrency < 0 {
		problems = append(problems, errors.New("schedule.max_concurrency must not be negative"))
	}
	if len(cfg.Stores) == 0 {
		problems = append(problems, errors.New("stores: at least one store is required"))
	}

	seen := make(map[string]bool, len(cfg.Stores))
	for i, s := range cfg.Stores {
		if err := s.Validate(); err != nil {
			problems = append(problems, fmt.Errorf("stores[%d] %q: %w", i, s.ID, err))
		}
		if s.ID != "" && seen[s.ID] {
			problems = append(problems, fmt.Errorf("stores[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
