// ABOUTME: Local email/password provider backed by a RecordStore
// ABOUTME: bcrypt hashes, JWT sessions, optional session file, sign-in throttling

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/store"
)

// Collections owned by the local provider.
const (
	IdentityCollection   = "auth_identities"
	EmailIndexCollection = "auth_emails"
)

// Defaults for LocalOptions.
const (
	DefaultMinPasswordLength = 6
	DefaultSessionTTL        = 7 * 24 * time.Hour
	DefaultMaxFailedSignIns  = 5
	DefaultLockout           = 30 * time.Second
)

// LocalOptions configures a LocalProvider.
type LocalOptions struct {
	Secret            []byte
	BcryptCost        int
	MinPasswordLength int
	SessionTTL        time.Duration
	// SessionFile persists the session token between processes when set.
	SessionFile string
	// MaxFailedSignIns wrong passwords in a row lock the email for Lockout.
	MaxFailedSignIns int
	Lockout          time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

type failureState struct {
	count int
	until time.Time
}

// LocalProvider implements Provider on top of a RecordStore.
type LocalProvider struct {
	store  store.RecordStore
	tokens *JWTVerifier
	opts   LocalOptions
	logger *slog.Logger

	// emitMu serialises state changes with their emission.
	emitMu  sync.Mutex
	started bool

	mu       sync.Mutex
	current  *Identity
	failures map[string]*failureState

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      int
}

type listenerEntry struct {
	id int
	fn Listener
}

// NewLocalProvider validates opts and returns a provider over s.
func NewLocalProvider(s store.RecordStore, opts LocalOptions) (*LocalProvider, error) {
	tokens, err := NewJWTVerifier(opts.Secret)
	if err != nil {
		return nil, err
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.BcryptCost < bcrypt.MinCost || opts.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", opts.BcryptCost)
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = DefaultMinPasswordLength
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.MaxFailedSignIns <= 0 {
		opts.MaxFailedSignIns = DefaultMaxFailedSignIns
	}
	if opts.Lockout <= 0 {
		opts.Lockout = DefaultLockout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalProvider{
		store:    s,
		tokens:   tokens,
		opts:     opts,
		logger:   logger.With("component", "auth"),
		failures: make(map[string]*failureState),
	}, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(email string) error {
	if email == "" {
		return providerErr(CodeInvalidEmail, nil, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return providerErr(CodeInvalidEmail, err, "malformed email %q", email)
	}
	return nil
}

// storeErr converts a record store failure into a provider error.
func storeErr(op string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, apperr.ErrNetwork) {
		return providerErr(CodeNetworkRequestFailed, err, "%s", op)
	}
	return providerErr(CodeInternalError, err, "%s", op)
}

// CreateUser registers an identity. The email index and identity record
// are written in one transaction so two sign-ups cannot claim one email.
func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (*Identity, error) {
	email = NormalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return nil, err
	}
	if len(password) < p.opts.MinPasswordLength {
		return nil, providerErr(CodeWeakPassword, nil, "password must be at least %d characters", p.opts.MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.opts.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, providerErr(CodeWeakPassword, err, "password too long")
	}
	if err != nil {
		return nil, providerErr(CodeInternalError, err, "hashing password")
	}

	uid := uuid.New().String()
	err = p.store.Transact(ctx, func(tx store.Tx) error {
		existing, err := tx.Get(EmailIndexCollection, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return providerErr(CodeEmailAlreadyInUse, nil, "%s", email)
		}
		if err := tx.Put(EmailIndexCollection, email, store.Fields{"uid": uid}); err != nil {
			return err
		}
		return tx.Put(IdentityCollection, uid, store.Fields{
			"email":        email,
			"passwordHash": string(hash),
			"disabled":     false,
		})
	})
	if err != nil {
		return nil, storeErr("creating identity", err)
	}

	p.logger.Info("identity created", "uid", uid)
	return &Identity{UID: uid, Email: email}, nil
}

// SignIn checks credentials and makes the identity current.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	email = NormalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return nil, err
	}
	if p.lockedOut(email) {
		return nil, providerErr(CodeTooManyRequests, nil, "too many failed sign-ins for %s", email)
	}

	rec, err := p.identityByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if rec.Bool("disabled") {
		return nil, providerErr(CodeUserDisabled, nil, "%s", email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.String("passwordHash")), []byte(password)); err != nil {
		p.recordFailure(email)
		return nil, providerErr(CodeWrongPassword, nil, "%s", email)
	}
	p.clearFailures(email)

	id := &Identity{UID: rec.ID, Email: email}
	token, err := p.tokens.Generate(id.UID, id.Email, p.opts.SessionTTL)
	if err != nil {
		return nil, providerErr(CodeInternalError, err, "signing session")
	}

	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.persist(token)
	p.setCurrent(id)
	p.emit(id)
	return id, nil
}

// SignOut clears the current session and emits nil. It is a no-op when
// already signed out.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.signOutLocked()
	return nil
}

func (p *LocalProvider) signOutLocked() {
	if p.CurrentUser() == nil {
		return
	}
	p.persist("")
	p.setCurrent(nil)
	p.emit(nil)
}

// CurrentUser returns a copy of the signed-in identity or nil.
func (p *LocalProvider) CurrentUser() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	id := *p.current
	return &id
}

func (p *LocalProvider) setCurrent(id *Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = id
}

// OnAuthStateChanged registers fn. Listeners must not call back into the
// provider's state-changing methods.
func (p *LocalProvider) OnAuthStateChanged(fn Listener) func() {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()

	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			p.listenersMu.Lock()
			defer p.listenersMu.Unlock()
			for i, l := range p.listeners {
				if l.id == id {
					p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (p *LocalProvider) emit(id *Identity) {
	p.listenersMu.Lock()
	snapshot := make([]listenerEntry, len(p.listeners))
	copy(snapshot, p.listeners)
	p.listenersMu.Unlock()

	for _, l := range snapshot {
		var arg *Identity
		if id != nil {
			cp := *id
			arg = &cp
		}
		l.fn(arg)
	}
}

// Start restores a persisted session, if valid, and emits the initial
// state. Later calls do nothing.
func (p *LocalProvider) Start(ctx context.Context) error {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	if p.started {
		return nil
	}
	p.started = true

	id := p.restore(ctx)
	p.setCurrent(id)
	p.emit(id)
	return nil
}

func (p *LocalProvider) restore(ctx context.Context) *Identity {
	if p.opts.SessionFile == "" {
		return nil
	}
	data, err := os.ReadFile(p.opts.SessionFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("reading session file", "path", p.opts.SessionFile, "error", err)
		}
		return nil
	}
	claims, err := p.tokens.Verify(strings.TrimSpace(string(data)))
	if err != nil {
		p.logger.Info("discarding stored session", "reason", err)
		p.persist("")
		return nil
	}
	rec, err := p.store.GetOne(ctx, IdentityCollection, claims.UID)
	if err != nil {
		p.logger.Warn("restoring session", "error", err)
		return nil
	}
	if rec == nil || rec.Bool("disabled") {
		p.persist("")
		return nil
	}
	return &Identity{UID: rec.ID, Email: rec.String("email")}
}

// persist writes the session token, or removes the file for an empty token.
func (p *LocalProvider) persist(token string) {
	path := p.opts.SessionFile
	if path == "" {
		return
	}
	if token == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("removing session file", "path", path, "error", err)
		}
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		p.logger.Warn("creating session directory", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		p.logger.Warn("writing session file", "path", path, "error", err)
	}
}

// SetDisabled blocks or unblocks sign-in for uid. Disabling the signed-in
// identity signs it out.
func (p *LocalProvider) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	err := p.store.Update(ctx, IdentityCollection, uid, store.Fields{"disabled": disabled})
	if errors.Is(err, apperr.ErrNotFound) {
		return providerErr(CodeUserNotFound, nil, "uid %s", uid)
	}
	if err != nil {
		return storeErr("updating identity", err)
	}

	if disabled {
		p.emitMu.Lock()
		defer p.emitMu.Unlock()
		if cur := p.CurrentUser(); cur != nil && cur.UID == uid {
			p.signOutLocked()
		}
	}
	return nil
}

// LookupEmail returns the identity registered for email.
func (p *LocalProvider) LookupEmail(ctx context.Context, email string) (*Identity, error) {
	email = NormalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return nil, err
	}
	rec, err := p.identityByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return &Identity{UID: rec.ID, Email: rec.String("email")}, nil
}

func (p *LocalProvider) identityByEmail(ctx context.Context, email string) (*store.Record, error) {
	idx, err := p.store.GetOne(ctx, EmailIndexCollection, email)
	if err != nil {
		return nil, storeErr("reading email index", err)
	}
	if idx == nil {
		return nil, providerErr(CodeUserNotFound, nil, "%s", email)
	}
	rec, err := p.store.GetOne(ctx, IdentityCollection, idx.String("uid"))
	if err != nil {
		return nil, storeErr("reading identity", err)
	}
	if rec == nil {
		return nil, providerErr(CodeUserNotFound, nil, "%s", email)
	}
	return rec, nil
}

func (p *LocalProvider) lockedOut(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.failures[email]
	if !ok || f.until.IsZero() {
		return false
	}
	if p.opts.Now().Before(f.until) {
		return true
	}
	delete(p.failures, email)
	return false
}

func (p *LocalProvider) recordFailure(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.failures[email]
	if !ok {
		f = &failureState{}
		p.failures[email] = f
	}
	f.count++
	if f.count >= p.opts.MaxFailedSignIns {
		f.until = p.opts.Now().Add(p.opts.Lockout)
		p.logger.Warn("sign-in locked", "email", email, "failures", f.count)
	}
}

func (p *LocalProvider) clearFailures(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, email)
}
