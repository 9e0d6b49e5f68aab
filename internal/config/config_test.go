// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, .env and env var expansion, durations, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "portal.yaml", `
database:
  driver: sqlite
  path: "./test.db"

auth:
  jwt_secret: "`+testSecret+`"
  bcrypt_cost: 4
  min_password_length: 8
  session_ttl: "24h"
  session_file: "./session.jwt"

store:
  transact_max_attempts: 10
  transact_backoff: "5ms"

bootstrap:
  enabled: true
  max_attempts: 5
  backoff: "250ms"
  accounts:
    - email: admin@example.com
      password: secret123
      role: admin
      display_name: Admin
    - email: coach@example.com
      password: secret456
      role: trainer

analytics:
  dedupe_window: "10m"

checkout:
  base_url: "https://pay.example.com/checkout"

logging:
  level: debug
  format: json

metrics:
  enabled: true
  addr: ":9100"
  path: /metrics
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "./test.db", cfg.Database.Path)

	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 4, cfg.Auth.BcryptCost)
	assert.Equal(t, 8, cfg.Auth.MinPasswordLength)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "./session.jwt", cfg.Auth.SessionFile)

	assert.Equal(t, 10, cfg.Store.TransactMaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.Store.TransactBackoff)

	assert.True(t, cfg.Bootstrap.Enabled)
	assert.Equal(t, 5, cfg.Bootstrap.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Bootstrap.Backoff)
	require.Len(t, cfg.Bootstrap.Accounts, 2)
	assert.Equal(t, AccountConfig{Email: "admin@example.com", Password: "secret123", Role: "admin", DisplayName: "Admin"}, cfg.Bootstrap.Accounts[0])
	assert.Equal(t, "trainer", cfg.Bootstrap.Accounts[1].Role)

	assert.Equal(t, 10*time.Minute, cfg.Analytics.DedupeWindow)
	assert.Equal(t, "https://pay.example.com/checkout", cfg.Checkout.BaseURL)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)
	assert.Equal(t, MetricsConfig{Enabled: true, Addr: ":9100", Path: "/metrics"}, cfg.Metrics)
}

func TestLoad_MinimalConfigUsesDefaults(t *testing.T) {
	path := writeConfig(t, "portal.yaml", `
database:
  driver: memory
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, def.Auth.BcryptCost, cfg.Auth.BcryptCost)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 25, cfg.Store.TransactMaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Analytics.DedupeWindow)
	assert.False(t, cfg.Bootstrap.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "portal.toml", `
[database]
driver = "postgres"
url = "postgres://portal@localhost/portal"

[auth]
jwt_secret = "`+testSecret+`"
session_ttl = "1h"

[bootstrap]
enabled = true

[[bootstrap.accounts]]
email = "admin@example.com"
password = "secret123"
role = "admin"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://portal@localhost/portal", cfg.Database.URL)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	require.Len(t, cfg.Bootstrap.Accounts, 1)
	assert.Equal(t, "admin", cfg.Bootstrap.Accounts[0].Role)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("FITPORTAL_TEST_SECRET", testSecret)
	t.Setenv("FITPORTAL_TEST_DB", "/var/lib/fitportal/test.db")

	path := writeConfig(t, "portal.yaml", `
database:
  path: "${FITPORTAL_TEST_DB}"
auth:
  jwt_secret: "${FITPORTAL_TEST_SECRET}"
checkout:
  base_url: "https://example.com/${FITPORTAL_TEST_UNSET_VAR}checkout"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/fitportal/test.db", cfg.Database.Path)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, "https://example.com/checkout", cfg.Checkout.BaseURL, "unset vars expand to empty")
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "FITPORTAL_DOTENV_TEST_SECRET"
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"="+testSecret+"\n"), 0600))
	path := filepath.Join(dir, "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: memory
auth:
  jwt_secret: "${`+key+`}"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	const key = "FITPORTAL_DOTENV_OVERRIDE_TEST"
	t.Setenv(key, testSecret)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=short\n"), 0600))
	path := filepath.Join(dir, "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: memory\nauth:\n  jwt_secret: \"${"+key+"}\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "portal.yaml", `
auth:
  jwt_secret: "`+testSecret+`"
  session_ttl: "forever"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.session_ttl")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")

	path := writeConfig(t, "portal.yaml", "database: [unclosed")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")

	path = writeConfig(t, "portal.toml", "[database\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func validConfig() *Config {
	cfg := Default()
	cfg.Auth.JWTSecret = testSecret
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with secret", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, "database.url"},
		{"memory needs nothing", func(c *Config) { c.Database = DatabaseConfig{Driver: DriverMemory} }, ""},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"bcrypt cost low", func(c *Config) { c.Auth.BcryptCost = 3 }, "auth.bcrypt_cost"},
		{"bcrypt cost high", func(c *Config) { c.Auth.BcryptCost = 15 }, "auth.bcrypt_cost"},
		{"zero password length", func(c *Config) { c.Auth.MinPasswordLength = 0 }, "auth.min_password_length"},
		{"zero session ttl", func(c *Config) { c.Auth.SessionTTL = 0 }, "auth.session_ttl"},
		{"zero transact attempts", func(c *Config) { c.Store.TransactMaxAttempts = 0 }, "store.transact_max_attempts"},
		{"bootstrap without accounts", func(c *Config) { c.Bootstrap.Enabled = true }, "bootstrap.accounts"},
		{"bootstrap account without password", func(c *Config) {
			c.Bootstrap.Enabled = true
			c.Bootstrap.Accounts = []AccountConfig{{Email: "a@example.com"}}
		}, "bootstrap.accounts[0]"},
		{"disabled bootstrap ignores accounts", func(c *Config) {
			c.Bootstrap.Accounts = []AccountConfig{{Email: "a@example.com"}}
		}, ""},
		{"relative checkout url", func(c *Config) { c.Checkout.BaseURL = "/checkout" }, "checkout.base_url"},
		{"non-http checkout url", func(c *Config) { c.Checkout.BaseURL = "ftp://example.com/x" }, "checkout.base_url"},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
		{"metrics bad path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" }, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/fitportal.yaml")
	assert.Equal(t, "/etc/fitportal.yaml", Path())

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "fitportal", "portal.yaml"), Path())
}

func TestWriteStarter(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "portal.yaml")

	require.NoError(t, WriteStarter(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := Load(path)
	require.NoError(t, err, "starter config must load as written")
	assert.Len(t, cfg.Auth.JWTSecret, 64)
	assert.False(t, cfg.Bootstrap.Enabled)

	err = WriteStarter(path)
	require.Error(t, err, "existing config is never overwritten")
}

func TestStarter_FreshSecretEachTime(t *testing.T) {
	a, err := Starter()
	require.NoError(t, err)
	b, err := Starter()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
