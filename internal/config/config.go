// ABOUTME: Configuration loading and parsing for the fitness portal
// ABOUTME: YAML or TOML files with .env loading, ${VAR} expansion, and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "FITPORTAL_CONFIG"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config represents the complete portal configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Bootstrap BootstrapConfig `yaml:"bootstrap" toml:"bootstrap"`
	Analytics AnalyticsConfig `yaml:"analytics" toml:"analytics"`
	Checkout  CheckoutConfig  `yaml:"checkout" toml:"checkout"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// DatabaseConfig selects and locates the record store
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"` // sqlite
	URL    string `yaml:"url" toml:"url"`   // postgres
}

// AuthConfig holds identity provider configuration
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret" toml:"jwt_secret"`
	BcryptCost        int           `yaml:"bcrypt_cost" toml:"bcrypt_cost"`
	MinPasswordLength int           `yaml:"min_password_length" toml:"min_password_length"`
	SessionFile       string        `yaml:"session_file" toml:"session_file"`
	SessionTTL        time.Duration `yaml:"-" toml:"-"`

	SessionTTLRaw string `yaml:"session_ttl" toml:"session_ttl"`
}

// StoreConfig tunes transaction conflict retries
type StoreConfig struct {
	TransactMaxAttempts int           `yaml:"transact_max_attempts" toml:"transact_max_attempts"`
	TransactBackoff     time.Duration `yaml:"-" toml:"-"`

	TransactBackoffRaw string `yaml:"transact_backoff" toml:"transact_backoff"`
}

// BootstrapConfig holds first-start seeding configuration
type BootstrapConfig struct {
	Enabled     bool            `yaml:"enabled" toml:"enabled"`
	MaxAttempts int             `yaml:"max_attempts" toml:"max_attempts"`
	Backoff     time.Duration   `yaml:"-" toml:"-"`
	Accounts    []AccountConfig `yaml:"accounts" toml:"accounts"`

	BackoffRaw string `yaml:"backoff" toml:"backoff"`
}

// AccountConfig is one seed account
type AccountConfig struct {
	Email       string `yaml:"email" toml:"email"`
	Password    string `yaml:"password" toml:"password"`
	Role        string `yaml:"role" toml:"role"`
	DisplayName string `yaml:"display_name" toml:"display_name"`
}

// AnalyticsConfig holds analytics configuration
type AnalyticsConfig struct {
	DedupeWindow time.Duration `yaml:"-" toml:"-"`

	DedupeWindowRaw string `yaml:"dedupe_window" toml:"dedupe_window"`
}

// CheckoutConfig holds the external payment page location
type CheckoutConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config, or in the working directory, is loaded first
// without overriding variables already set. Environment variables in the
// format ${VAR_NAME} are expanded. Files ending in .toml are parsed as TOML,
// anything else as YAML.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a config with every optional field at its default.
// Raw duration strings are set so a partial file keeps the defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: DriverSQLite, Path: filepath.Join(DataDir(), "portal.db")},
		Auth: AuthConfig{
			BcryptCost:        10,
			MinPasswordLength: 6,
			SessionFile:       filepath.Join(DataDir(), "session.jwt"),
			SessionTTL:        7 * 24 * time.Hour,
			SessionTTLRaw:     "168h",
		},
		Store: StoreConfig{
			TransactMaxAttempts: 25,
			TransactBackoff:     2 * time.Millisecond,
			TransactBackoffRaw:  "2ms",
		},
		Bootstrap: BootstrapConfig{
			MaxAttempts: 3,
			Backoff:     time.Second,
			BackoffRaw:  "1s",
		},
		Analytics: AnalyticsConfig{DedupeWindow: 30 * time.Minute, DedupeWindowRaw: "30m"},
		Checkout:  CheckoutConfig{BaseURL: "https://example.com/checkout"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Addr: "127.0.0.1:9090", Path: "/metrics"},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// loadDotEnv loads .env from the config's directory and the working
// directory. Missing files are ignored.
func loadDotEnv(configPath string) error {
	candidates := []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"}
	seen := map[string]bool{}
	for _, p := range candidates {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", abs, err)
		}
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q must be one of sqlite, postgres, memory", c.Database.Driver)
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("auth.bcrypt_cost must be between 4 and 14, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("auth.min_password_length must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}

	if c.Store.TransactMaxAttempts < 1 {
		return fmt.Errorf("store.transact_max_attempts must be at least 1")
	}

	if c.Bootstrap.Enabled {
		if c.Bootstrap.MaxAttempts < 1 {
			return fmt.Errorf("bootstrap.max_attempts must be at least 1")
		}
		if len(c.Bootstrap.Accounts) == 0 {
			return fmt.Errorf("bootstrap.accounts is required when bootstrap is enabled")
		}
		for i, a := range c.Bootstrap.Accounts {
			if a.Email == "" || a.Password == "" {
				return fmt.Errorf("bootstrap.accounts[%d] needs an email and password", i)
			}
		}
	}

	u, err := url.Parse(c.Checkout.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("checkout.base_url must be an absolute http(s) URL")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			return fmt.Errorf("metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.session_ttl", cfg.Auth.SessionTTLRaw, &cfg.Auth.SessionTTL},
		{"store.transact_backoff", cfg.Store.TransactBackoffRaw, &cfg.Store.TransactBackoff},
		{"bootstrap.backoff", cfg.Bootstrap.BackoffRaw, &cfg.Bootstrap.Backoff},
		{"analytics.dedupe_window", cfg.Analytics.DedupeWindowRaw, &cfg.Analytics.DedupeWindow},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Path returns the config file location: $FITPORTAL_CONFIG, or
// $XDG_CONFIG_HOME/fitportal/portal.yaml.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "fitportal", "portal.yaml")
}

// DataDir returns $XDG_DATA_HOME/fitportal.
func DataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "fitportal")
}

func xdgDir(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}
