// ABOUTME: Idempotent seed-account bootstrap guarded by a transactional claim
// ABOUTME: Skips a populated users collection unless it is resuming a failed run

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/auth"
	"github.com/2389/fitportal/internal/retry"
	"github.com/2389/fitportal/internal/store"
)

// Bootstrap marker location.
const (
	SystemCollection = "system"
	BootstrapMarker  = "bootstrap"
)

// DefaultClaimTTL is how long a running claim blocks other bootstrappers.
const DefaultClaimTTL = 5 * time.Minute

// Bootstrap marker states.
const (
	stateRunning = "running"
	stateFailed  = "failed"
	stateDone    = "done"
)

var errAlreadyDone = errors.New("bootstrap not needed")

// SeedAccount is an account created at first start.
type SeedAccount struct {
	Email       string
	Password    string
	Role        access.Role
	DisplayName string
}

// BootstrapOptions configures a Bootstrapper.
type BootstrapOptions struct {
	// Policy defaults to 3 attempts with a linear 1s backoff.
	Policy   retry.Policy
	ClaimTTL time.Duration
	Logger   *slog.Logger
}

// DefaultBootstrapPolicy is the retry policy used when none is configured.
func DefaultBootstrapPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Backoff: retry.Linear(time.Second)}
}

// Bootstrapper creates seed accounts in an empty store.
type Bootstrapper struct {
	provider auth.Provider
	records  store.RecordStore
	accounts []SeedAccount
	policy   retry.Policy
	claimTTL time.Duration
	logger   *slog.Logger
}

// NewBootstrapper returns a Bootstrapper for accounts.
func NewBootstrapper(provider auth.Provider, records store.RecordStore, accounts []SeedAccount, opts BootstrapOptions) *Bootstrapper {
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = DefaultBootstrapPolicy()
	}
	ttl := opts.ClaimTTL
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		provider: provider,
		records:  records,
		accounts: accounts,
		policy:   policy,
		claimTTL: ttl,
		logger:   logger.With("component", "bootstrap"),
	}
}

// Run seeds the accounts unless the store is already populated or another
// bootstrapper holds the claim. It reports whether this call seeded.
func (b *Bootstrapper) Run(ctx context.Context) (bool, error) {
	for i, acct := range b.accounts {
		if acct.Email == "" || acct.Password == "" {
			return false, apperr.Validation(fmt.Sprintf("accounts[%d]", i), "needs email and password")
		}
		if acct.Role != "" && !acct.Role.Valid() {
			return false, apperr.Validation(fmt.Sprintf("accounts[%d].role", i), fmt.Sprintf("unknown role %q", acct.Role))
		}
	}

	policy := b.policy
	policy.Retryable = func(err error) bool { return !errors.Is(err, errAlreadyDone) }

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		err := b.attempt(ctx)
		if err != nil && !errors.Is(err, errAlreadyDone) {
			b.logger.Warn("bootstrap attempt failed", "attempt", attempt, "max_attempts", policy.MaxAttempts, "error", err)
		}
		return err
	})
	switch {
	case err == nil:
		b.logger.Info("bootstrap complete", "accounts", len(b.accounts))
		return true, nil
	case errors.Is(err, errAlreadyDone):
		b.logger.Debug("bootstrap skipped")
		return false, nil
	default:
		b.logger.Error("bootstrap failed", "error", err)
		return false, err
	}
}

func (b *Bootstrapper) attempt(ctx context.Context) error {
	marker, err := b.records.GetOne(ctx, SystemCollection, BootstrapMarker)
	if err != nil {
		return fmt.Errorf("reading bootstrap claim: %w", err)
	}
	// A failed or abandoned run may have seeded some accounts already; it
	// resumes instead of reading the partial users collection as done.
	if !b.reclaimable(marker) {
		existing, err := b.records.GetAll(ctx, UsersCollection, store.NewQuery().Limit(1))
		if err != nil {
			return fmt.Errorf("checking users: %w", err)
		}
		if len(existing) > 0 {
			return errAlreadyDone
		}
	}

	if err := b.claim(ctx); err != nil {
		return err
	}

	if err := b.seed(ctx); err != nil {
		failErr := b.records.Update(ctx, SystemCollection, BootstrapMarker, store.Fields{
			"state":    stateFailed,
			"failedAt": time.Now().UTC(),
		})
		if failErr != nil {
			b.logger.Error("marking bootstrap claim failed", "error", failErr)
		}
		return err
	}

	err = b.records.Update(ctx, SystemCollection, BootstrapMarker, store.Fields{
		"state":       stateDone,
		"completedAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("completing bootstrap claim: %w", err)
	}
	return nil
}

// claim writes the running marker unless a live or completed one exists.
func (b *Bootstrapper) claim(ctx context.Context) error {
	return b.records.Transact(ctx, func(tx store.Tx) error {
		marker, err := tx.Get(SystemCollection, BootstrapMarker)
		if err != nil {
			return err
		}
		if marker != nil {
			if !b.reclaimable(marker) {
				return errAlreadyDone
			}
			b.logger.Warn("reclaiming bootstrap claim", "state", marker.String("state"))
		}
		return tx.Put(SystemCollection, BootstrapMarker, store.Fields{
			"state":     stateRunning,
			"startedAt": time.Now().UTC(),
		})
	})
}

// reclaimable reports whether marker belongs to a run that failed or
// outlived the claim TTL.
func (b *Bootstrapper) reclaimable(marker *store.Record) bool {
	if marker == nil {
		return false
	}
	switch marker.String("state") {
	case stateFailed:
		return true
	case stateRunning:
		started, ok := marker.Time("startedAt")
		return ok && time.Since(started) > b.claimTTL
	}
	return false
}

func (b *Bootstrapper) seed(ctx context.Context) error {
	for _, acct := range b.accounts {
		id, err := b.ensureIdentity(ctx, acct)
		if err != nil {
			return fmt.Errorf("seeding %s: %w", acct.Email, err)
		}
		role := acct.Role
		if role == "" {
			role = access.RoleUser
		}
		if err := b.records.Put(ctx, UsersCollection, id.UID, NewPrincipalFields(id.Email, role, acct.DisplayName)); err != nil {
			return fmt.Errorf("seeding %s: %w", acct.Email, err)
		}
		b.logger.Info("seed account ready", "uid", id.UID, "role", role)
	}
	return nil
}

// ensureIdentity creates the identity, reusing one left by an earlier run.
func (b *Bootstrapper) ensureIdentity(ctx context.Context, acct SeedAccount) (*auth.Identity, error) {
	id, err := b.provider.CreateUser(ctx, acct.Email, acct.Password)
	if err == nil {
		return id, nil
	}
	if !errors.Is(auth.TranslateError(err), apperr.ErrDuplicateEmail) {
		return nil, auth.TranslateError(err)
	}
	id, err = b.provider.LookupEmail(ctx, acct.Email)
	if err != nil {
		return nil, auth.TranslateError(err)
	}
	return id, nil
}
