// ABOUTME: Composition root wiring store, auth, session, and domain services
// ABOUTME: Every dependency is built from config and passed explicitly

package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/admin"
	"github.com/2389/fitportal/internal/analytics"
	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/auth"
	"github.com/2389/fitportal/internal/config"
	"github.com/2389/fitportal/internal/content"
	"github.com/2389/fitportal/internal/guard"
	"github.com/2389/fitportal/internal/metrics"
	"github.com/2389/fitportal/internal/progress"
	"github.com/2389/fitportal/internal/retry"
	"github.com/2389/fitportal/internal/session"
	"github.com/2389/fitportal/internal/store"
)

// App holds the portal's components.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store     store.RecordStore
	Provider  *auth.LocalProvider
	Session   *session.Store
	Content   *content.Service
	Progress  *progress.Service
	Analytics *analytics.Service
	Admin     *admin.Service
	Router    *guard.Router

	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	bootstrapper *session.Bootstrapper
}

// Option adjusts App construction.
type Option func(*appOptions)

type appOptions struct {
	store store.RecordStore
}

// WithStore uses s instead of opening the configured database.
func WithStore(s store.RecordStore) Option {
	return func(o *appOptions) { o.store = s }
}

// New builds an App from cfg. Call Start before using the session.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	raw := o.store
	if raw == nil {
		var err error
		raw, err = initStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	records := store.RecordStore(metrics.InstrumentStore(raw, m))

	provider, err := auth.NewLocalProvider(records, auth.LocalOptions{
		Secret:            []byte(cfg.Auth.JWTSecret),
		BcryptCost:        cfg.Auth.BcryptCost,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		SessionTTL:        cfg.Auth.SessionTTL,
		SessionFile:       cfg.Auth.SessionFile,
		Logger:            logger.With("component", "auth"),
	})
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("creating auth provider: %w", err)
	}

	accounts, err := seedAccounts(cfg.Bootstrap)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger.With("component", "portal"),
		Store:    records,
		Provider: provider,
		Session: session.New(provider, records, session.Options{
			Logger: logger.With("component", "session"),
			Hooks:  m.SessionHooks(),
		}),
		Content:  content.NewService(records, logger.With("component", "content")),
		Progress: progress.NewService(records, logger.With("component", "progress")),
		Analytics: analytics.NewService(records, analytics.Options{
			DedupeWindow: cfg.Analytics.DedupeWindow,
			Logger:       logger.With("component", "analytics"),
		}),
		Admin:    admin.NewService(records, provider, logger.With("component", "admin")),
		Router:   guard.NewRouter(guard.DefaultRoutes()...),
		Metrics:  m,
		Registry: reg,
		bootstrapper: session.NewBootstrapper(provider, records, accounts, session.BootstrapOptions{
			Policy: retry.Policy{
				MaxAttempts: cfg.Bootstrap.MaxAttempts,
				Backoff:     retry.Linear(cfg.Bootstrap.Backoff),
			},
			Logger: logger.With("component", "bootstrap"),
		}),
	}
	return app, nil
}

// initStore opens the configured record store.
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.RecordStore, error) {
	policy := transactPolicy(cfg.Store)
	storeLogger := logger.With("component", "store")

	var (
		s   store.RecordStore
		err error
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		s, err = store.NewPostgresStore(ctx, cfg.Database.URL, storeLogger, policy)
	case config.DriverMemory:
		s, err = store.NewSQLiteStore(":memory:", store.WithSQLiteLogger(storeLogger), store.WithSQLiteTransactPolicy(policy))
	default:
		s, err = store.NewSQLiteStore(cfg.Database.Path, store.WithSQLiteLogger(storeLogger), store.WithSQLiteTransactPolicy(policy))
	}
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func transactPolicy(cfg config.StoreConfig) retry.Policy {
	policy := store.DefaultTransactPolicy()
	if cfg.TransactMaxAttempts > 0 {
		policy.MaxAttempts = cfg.TransactMaxAttempts
	}
	if cfg.TransactBackoff > 0 {
		base := cfg.TransactBackoff
		policy.Backoff = retry.Exponential(base, 50*base, base)
	}
	return policy
}

// seedAccounts converts configured bootstrap accounts. A disabled
// bootstrap seeds nothing.
func seedAccounts(cfg config.BootstrapConfig) ([]session.SeedAccount, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	accounts := make([]session.SeedAccount, 0, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		role := access.RoleUser
		if a.Role != "" {
			r, err := access.ParseRole(a.Role)
			if err != nil {
				return nil, fmt.Errorf("bootstrap.accounts[%d]: %w", i, err)
			}
			role = r
		}
		accounts = append(accounts, session.SeedAccount{
			Email:       a.Email,
			Password:    a.Password,
			Role:        role,
			DisplayName: a.DisplayName,
		})
	}
	return accounts, nil
}

// Start begins session tracking. When bootstrap is enabled the seed
// runs first; a failed seed is logged and does not stop the portal.
func (a *App) Start(ctx context.Context) error {
	if a.Config.Bootstrap.Enabled {
		if _, err := a.Seed(ctx); err != nil {
			a.Logger.Error("bootstrap failed, continuing without seed accounts", "error", err)
		}
	}
	return a.Session.Start(ctx)
}

// Seed runs bootstrap once. It reports whether accounts were created.
func (a *App) Seed(ctx context.Context) (bool, error) {
	if !a.Config.Bootstrap.Enabled {
		return false, errors.New("bootstrap is disabled in config")
	}
	return a.bootstrapper.Run(ctx)
}

// Close stops the session and releases the store.
func (a *App) Close() error {
	a.Session.Close()
	a.Analytics.Close()
	return a.Store.Close()
}

var packagePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// CheckoutURL returns the external checkout page for a training package.
func (a *App) CheckoutURL(pkg string) (string, error) {
	return checkoutURL(a.Config.Checkout.BaseURL, pkg)
}

func checkoutURL(base, pkg string) (string, error) {
	if !packagePattern.MatchString(pkg) {
		return "", apperr.Validation("package", "must be a lowercase slug")
	}
	u, err := url.JoinPath(base, pkg)
	if err != nil {
		return "", fmt.Errorf("building checkout url: %w", err)
	}
	return u, nil
}

// pingTimeout bounds readiness checks.
const pingTimeout = 2 * time.Second
