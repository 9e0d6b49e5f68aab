// ABOUTME: Scriptable auth provider used to drive session transitions in tests
// ABOUTME: Emits identities synchronously to listeners in call order

package session

import (
	"context"
	"sync"

	"github.com/2389/fitportal/internal/auth"
)

type fakeProvider struct {
	mu        sync.Mutex
	listeners []auth.Listener
	current   *auth.Identity
	initial   *auth.Identity
	signInErr error

	// createFailures calls to CreateUser fail with createErr.
	createFailures int
	createErr      error
	// failFor makes CreateUser fail for an email that many times.
	failFor map[string]int
	created map[string]bool
}

func (f *fakeProvider) emit(id *auth.Identity) {
	f.mu.Lock()
	f.current = id
	ls := append([]auth.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		l(id)
	}
}

func (f *fakeProvider) CreateUser(ctx context.Context, email, password string) (*auth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createFailures > 0 {
		f.createFailures--
		return nil, f.createErr
	}
	if f.failFor[email] > 0 {
		f.failFor[email]--
		return nil, f.createErr
	}
	if f.created == nil {
		f.created = make(map[string]bool)
	}
	if f.created[email] {
		return nil, &auth.ProviderError{Code: auth.CodeEmailAlreadyInUse}
	}
	f.created[email] = true
	return &auth.Identity{UID: "uid-" + email, Email: email}, nil
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (*auth.Identity, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	id := &auth.Identity{UID: "uid-" + email, Email: email}
	f.emit(id)
	return id, nil
}

func (f *fakeProvider) SignOut(ctx context.Context) error {
	if f.CurrentUser() != nil {
		f.emit(nil)
	}
	return nil
}

func (f *fakeProvider) CurrentUser() *auth.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeProvider) OnAuthStateChanged(fn auth.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

func (f *fakeProvider) Start(ctx context.Context) error {
	f.emit(f.initial)
	return nil
}

func (f *fakeProvider) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	return nil
}

func (f *fakeProvider) LookupEmail(ctx context.Context, email string) (*auth.Identity, error) {
	return &auth.Identity{UID: "uid-" + email, Email: email}, nil
}
