// ABOUTME: Tests for the session store
// ABOUTME: Covers transition ordering, sign-up/login/logout flows, and resolution failures

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/apperr"
	"github.com/2389/fitportal/internal/auth"
	"github.com/2389/fitportal/internal/store"
)

var testSecret = []byte("session-test-secret-0123456789abcdef")

type observed struct {
	mu  sync.Mutex
	got []*access.Principal
}

func (o *observed) record(p *access.Principal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, p)
}

func (o *observed) ids() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.got))
	for i, p := range o.got {
		if p != nil {
			out[i] = p.ID
		}
	}
	return out
}

func (o *observed) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.got)
}

func newLocalSession(t *testing.T) (*Store, *auth.LocalProvider, *store.MockStore) {
	t.Helper()
	records := store.NewMockStore()
	provider, err := auth.NewLocalProvider(records, auth.LocalOptions{Secret: testSecret, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	s := New(provider, records, Options{})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)
	return s, provider, records
}

func TestStore_TransitionOrder(t *testing.T) {
	ctx := context.Background()
	records := store.NewMockStore()
	require.NoError(t, records.Put(ctx, UsersCollection, "A", NewPrincipalFields("a@example.com", access.RoleUser, "")))
	require.NoError(t, records.Put(ctx, UsersCollection, "B", NewPrincipalFields("b@example.com", access.RoleAdmin, "")))

	provider := &fakeProvider{}
	s := New(provider, records, Options{})
	obs := &observed{}
	s.Subscribe(obs.record)

	p, resolved := s.Snapshot()
	assert.Nil(t, p)
	assert.False(t, resolved)

	require.NoError(t, s.Start(ctx)) // emits nil
	provider.emit(&auth.Identity{UID: "A"})
	provider.emit(nil)
	provider.emit(&auth.Identity{UID: "B"})
	defer s.Close()

	require.Eventually(t, func() bool { return obs.len() >= 4 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []string{"", "A", "", "B"}, obs.ids())
	assert.Equal(t, "B", s.Current().ID)
	assert.Equal(t, access.RoleAdmin, s.Current().Role)

	_, resolved = s.Snapshot()
	assert.True(t, resolved)
}

func TestStore_ManyTransitionsKeepOrder(t *testing.T) {
	ctx := context.Background()
	records := store.NewMockStore()
	require.NoError(t, records.Put(ctx, UsersCollection, "A", NewPrincipalFields("a@example.com", access.RoleUser, "")))

	provider := &fakeProvider{}
	s := New(provider, records, Options{})
	obs := &observed{}
	s.Subscribe(obs.record)
	require.NoError(t, s.Start(ctx))
	defer s.Close()

	want := []string{""}
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			provider.emit(&auth.Identity{UID: "A"})
			want = append(want, "A")
		} else {
			provider.emit(nil)
			want = append(want, "")
		}
	}

	require.Eventually(t, func() bool { return obs.len() >= len(want) }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, obs.ids())
}

func TestStore_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	s := New(provider, store.NewMockStore(), Options{})
	first, second := &observed{}, &observed{}
	unsubscribe := s.Subscribe(first.record)
	s.Subscribe(second.record)

	require.NoError(t, s.Start(ctx))
	defer s.Close()
	require.Eventually(t, func() bool { return second.len() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	provider.emit(nil)

	require.Eventually(t, func() bool { return second.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, first.len())
}

func TestStore_ResolutionFailures(t *testing.T) {
	ctx := context.Background()
	records := store.NewMockStore()
	require.NoError(t, records.Put(ctx, UsersCollection, "odd", store.Fields{"email": "odd@example.com", "role": "superuser"}))

	var (
		mu     sync.Mutex
		states []string
	)
	provider := &fakeProvider{}
	s := New(provider, records, Options{Hooks: Hooks{OnTransition: func(state string) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, state)
	}}})
	obs := &observed{}
	s.Subscribe(obs.record)
	require.NoError(t, s.Start(ctx))
	defer s.Close()

	// Unknown stored role degrades to user
	provider.emit(&auth.Identity{UID: "odd"})
	require.Eventually(t, func() bool { return obs.len() == 2 }, time.Second, 5*time.Millisecond)
	require.NotNil(t, s.Current())
	assert.Equal(t, access.RoleUser, s.Current().Role)

	// Missing record resolves to anonymous
	provider.emit(&auth.Identity{UID: "ghost"})
	require.Eventually(t, func() bool { return obs.len() == 3 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, s.Current())

	// Store failure resolves to anonymous
	records.InjectError(errors.New("unreachable"))
	provider.emit(&auth.Identity{UID: "odd"})
	require.Eventually(t, func() bool { return obs.len() == 4 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, s.Current())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{StateSignedOut, StateSignedIn, StateUnresolved, StateUnresolved}, states)
}

func TestStore_SignUpThenLogin(t *testing.T) {
	ctx := context.Background()
	s, _, records := newLocalSession(t)

	created, err := s.SignUp(ctx, "Member@Example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", created.Email)
	assert.Equal(t, access.RoleUser, created.Role)
	assert.Equal(t, "member", created.DisplayName)

	require.NoError(t, s.Logout(ctx))

	loggedIn, err := s.Login(ctx, "member@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, loggedIn.ID)
	assert.False(t, loggedIn.LastLoginAt.IsZero())

	rec, err := records.GetOne(ctx, UsersCollection, created.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Has(FieldLastLoginAt))
	assert.True(t, rec.Has(FieldLastLogoutAt))

	require.Eventually(t, func() bool {
		p := s.Current()
		return p != nil && p.ID == created.ID
	}, time.Second, 5*time.Millisecond)
}

func TestStore_SignUpErrors(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newLocalSession(t)

	_, err := s.SignUp(ctx, "member@example.com", "secret123")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"duplicate", "member@example.com", "secret123", apperr.ErrDuplicateEmail},
		{"weak", "other@example.com", "123", apperr.ErrWeakPassword},
		{"invalid email", "nope", "secret123", apperr.ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SignUp(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStore_LoginErrors(t *testing.T) {
	ctx := context.Background()
	s, provider, _ := newLocalSession(t)

	_, err := s.SignUp(ctx, "member@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))

	_, err = s.Login(ctx, "member@example.com", "wrong-one")
	assert.ErrorIs(t, err, apperr.ErrWrongPassword)

	_, err = s.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "No account found with this email.", apperr.Message(err))

	// Identity without a principal record
	_, err = provider.CreateUser(ctx, "orphan@example.com", "secret123")
	require.NoError(t, err)
	_, err = s.Login(ctx, "orphan@example.com", "secret123")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Nil(t, provider.CurrentUser())

	id, err := provider.LookupEmail(ctx, "member@example.com")
	require.NoError(t, err)
	require.NoError(t, provider.SetDisabled(ctx, id.UID, true))
	_, err = s.Login(ctx, "member@example.com", "secret123")
	assert.ErrorIs(t, err, apperr.ErrAccountDisabled)
}

func TestStore_LoginNetworkError(t *testing.T) {
	ctx := context.Background()
	s, _, records := newLocalSession(t)

	_, err := s.SignUp(ctx, "member@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx))

	records.InjectError(errors.New("connection reset"))
	_, err = s.Login(ctx, "member@example.com", "secret123")
	assert.ErrorIs(t, err, apperr.ErrNetwork)

	_, ok := apperr.As(err)
	assert.True(t, ok)
	var pe *auth.ProviderError
	assert.False(t, errors.As(err, &pe), "provider error must not cross the session boundary")
	assert.NotContains(t, err.Error(), "auth/")
	assert.NotContains(t, apperr.Message(err), "email index")
}

func TestStore_LogoutIdempotent(t *testing.T) {
	ctx := context.Background()
	s, provider, _ := newLocalSession(t)

	require.NoError(t, s.Logout(ctx))

	_, err := s.SignUp(ctx, "member@example.com", "secret123")
	require.NoError(t, err)
	require.NotNil(t, provider.CurrentUser())

	require.NoError(t, s.Logout(ctx))
	require.NoError(t, s.Logout(ctx))
	assert.Nil(t, provider.CurrentUser())
}

func TestStore_AttemptHook(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{signInErr: &auth.ProviderError{Code: auth.CodeWrongPassword}}

	var ops []string
	var errs []error
	s := New(provider, store.NewMockStore(), Options{Hooks: Hooks{OnAttempt: func(op string, err error) {
		ops = append(ops, op)
		errs = append(errs, err)
	}}})

	_, err := s.Login(ctx, "a@example.com", "pw")
	assert.ErrorIs(t, err, apperr.ErrWrongPassword)
	require.NoError(t, s.Logout(ctx))

	assert.Equal(t, []string{"login", "logout"}, ops)
	assert.ErrorIs(t, errs[0], apperr.ErrWrongPassword)
	assert.NoError(t, errs[1])
}

func TestStore_CloseBeforeStart(t *testing.T) {
	s := New(&fakeProvider{}, store.NewMockStore(), Options{})
	s.Close()
	s.Close()
}
