// ABOUTME: Session store tracking the current principal behind an auth provider
// ABOUTME: Ordered subscriber delivery from one dispatcher goroutine over an unbounded queue

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/auth"
	"github.com/2389/fitportal/internal/store"
)

// Transition states reported to Hooks.OnTransition.
const (
	StateSignedIn   = "signed_in"
	StateSignedOut  = "signed_out"
	StateUnresolved = "unresolved" // identity present but no loadable principal
)

// Hooks observe session activity. Either field may be nil.
type Hooks struct {
	// OnTransition runs on the dispatcher goroutine for every transition.
	OnTransition func(state string)
	// OnAttempt runs after SignUp, Login, and Logout with the returned error.
	OnAttempt func(op string, err error)
}

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	Hooks  Hooks
}

type subscriber struct {
	id int
	fn func(*access.Principal)
}

// Store tracks the current principal and notifies subscribers of every
// provider transition in emission order.
type Store struct {
	provider auth.Provider
	records  store.RecordStore
	logger   *slog.Logger
	hooks    Hooks

	mu       sync.RWMutex
	current  *access.Principal
	resolved bool

	subsMu sync.Mutex
	subs   []subscriber
	nextID int

	queueMu sync.Mutex
	queue   []*auth.Identity
	signal  chan struct{}

	startOnce     sync.Once
	started       atomic.Bool
	closeOnce     sync.Once
	done          chan struct{}
	stopped       chan struct{}
	unsubProvider func()
}

// New creates a Store. Call Start to begin tracking provider state.
func New(provider auth.Provider, records store.RecordStore, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		provider: provider,
		records:  records,
		logger:   logger.With("component", "session"),
		hooks:    opts.Hooks,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start subscribes to the provider, starts the dispatcher, and asks the
// provider to emit its initial state. Principal loads use a context
// detached from ctx's cancellation; Close stops the dispatcher.
func (s *Store) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		s.started.Store(true)
		s.unsubProvider = s.provider.OnAuthStateChanged(s.enqueue)
		go s.dispatch(context.WithoutCancel(ctx))
		err = s.provider.Start(ctx)
	})
	return auth.TranslateError(err)
}

// Close stops the dispatcher and waits for it to exit. Queued transitions
// not yet delivered are dropped. Start has no effect after Close.
func (s *Store) Close() {
	// Waits for an in-progress Start and blocks later ones.
	s.startOnce.Do(func() {})
	s.closeOnce.Do(func() {
		if s.unsubProvider != nil {
			s.unsubProvider()
		}
		close(s.done)
	})
	if s.started.Load() {
		<-s.stopped
	}
}

// enqueue is the provider listener. It never blocks.
func (s *Store) enqueue(id *auth.Identity) {
	s.queueMu.Lock()
	s.queue = append(s.queue, id)
	s.queueMu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Store) dequeue() ([]*auth.Identity, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	batch := s.queue
	s.queue = nil
	return batch, true
}

func (s *Store) dispatch(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			batch, ok := s.dequeue()
			if !ok {
				break
			}
			for _, id := range batch {
				select {
				case <-s.done:
					return
				default:
				}
				s.deliver(s.resolve(ctx, id))
			}
		}
	}
}

// resolve loads the principal for a transition. Load failures resolve to
// anonymous and are logged.
func (s *Store) resolve(ctx context.Context, id *auth.Identity) *access.Principal {
	if id == nil {
		s.transitionHook(StateSignedOut)
		return nil
	}
	p, err := LoadPrincipal(ctx, s.records, id.UID, s.logger)
	if err != nil {
		s.logger.Error("loading principal for session", "uid", id.UID, "error", err)
		s.transitionHook(StateUnresolved)
		return nil
	}
	if p == nil {
		s.logger.Warn("no principal record for signed-in identity", "uid", id.UID)
		s.transitionHook(StateUnresolved)
		return nil
	}
	s.transitionHook(StateSignedIn)
	return p
}

func (s *Store) transitionHook(state string) {
	if s.hooks.OnTransition != nil {
		s.hooks.OnTransition(state)
	}
}

func (s *Store) deliver(p *access.Principal) {
	s.mu.Lock()
	s.current = p
	s.resolved = true
	s.mu.Unlock()

	s.subsMu.Lock()
	targets := make([]subscriber, len(s.subs))
	copy(targets, s.subs)
	s.subsMu.Unlock()

	for _, sub := range targets {
		sub.fn(p)
	}
}

// Subscribe registers fn for every transition processed after this call.
// fn runs on the dispatcher goroutine and must not block for long.
func (s *Store) Subscribe(fn func(*access.Principal)) (unsubscribe func()) {
	s.subsMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Current returns the most recently resolved principal. It may lag an
// in-flight transition.
func (s *Store) Current() *access.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Snapshot returns the current principal and whether any transition has
// been resolved yet.
func (s *Store) Snapshot() (*access.Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.resolved
}

// SignUp creates an identity, provisions its users record with the user
// role, and signs in.
func (s *Store) SignUp(ctx context.Context, email, password string) (p *access.Principal, err error) {
	defer func() { s.attemptHook("signup", err) }()

	id, err := s.provider.CreateUser(ctx, email, password)
	if err != nil {
		return nil, auth.TranslateError(err)
	}

	if err := s.records.Put(ctx, UsersCollection, id.UID, NewPrincipalFields(id.Email, access.RoleUser, "")); err != nil {
		s.logger.Error("provisioning principal record", "uid", id.UID, "error", err)
		return nil, apperr.Ensure(err, apperr.KindNetwork)
	}

	if _, err := s.provider.SignIn(ctx, email, password); err != nil {
		return nil, auth.TranslateError(err)
	}

	p, err = LoadPrincipal(ctx, s.records, id.UID, s.logger)
	if err != nil {
		return nil, apperr.Ensure(err, apperr.KindNetwork)
	}
	if p == nil {
		return nil, apperr.NotFound("user")
	}
	s.logger.Info("signed up", "uid", p.ID)
	return p, nil
}

// Login authenticates, loads the principal record, and stamps lastLoginAt.
// An identity without a principal record is signed out again and reported
// as NotFound.
func (s *Store) Login(ctx context.Context, email, password string) (p *access.Principal, err error) {
	defer func() { s.attemptHook("login", err) }()

	id, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, auth.TranslateError(err)
	}

	p, err = LoadPrincipal(ctx, s.records, id.UID, s.logger)
	if err == nil && p == nil {
		err = apperr.NotFound("user")
	}
	if err == nil {
		ts := time.Now().UTC()
		err = s.records.Update(ctx, UsersCollection, id.UID, store.Fields{FieldLastLoginAt: ts})
		p.LastLoginAt = ts.Truncate(time.Millisecond)
	}
	if err != nil {
		if signOutErr := s.provider.SignOut(ctx); signOutErr != nil {
			s.logger.Warn("signing out after failed login", "error", signOutErr)
		}
		return nil, apperr.Ensure(err, apperr.KindNetwork)
	}

	s.logger.Info("logged in", "uid", p.ID, "role", p.Role)
	return p, nil
}

// Logout stamps lastLogoutAt and signs out. It is a no-op when no one is
// signed in.
func (s *Store) Logout(ctx context.Context) (err error) {
	defer func() { s.attemptHook("logout", err) }()

	id := s.provider.CurrentUser()
	if id == nil {
		return nil
	}

	err = s.records.Update(ctx, UsersCollection, id.UID, store.Fields{FieldLastLogoutAt: time.Now().UTC()})
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Warn("recording logout time", "uid", id.UID, "error", err)
	}

	if err := s.provider.SignOut(ctx); err != nil {
		return auth.TranslateError(err)
	}
	s.logger.Info("logged out", "uid", id.UID)
	return nil
}

func (s *Store) attemptHook(op string, err error) {
	if s.hooks.OnAttempt != nil {
		s.hooks.OnAttempt(op, err)
	}
}
