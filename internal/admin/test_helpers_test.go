// ABOUTME: Shared test helpers for admin package tests
// ABOUTME: Builds a local provider and seeds principals into a mock store

package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/fitportal/internal/access"
	"github.com/2389/fitportal/internal/auth"
	"github.com/2389/fitportal/internal/session"
	"github.com/2389/fitportal/internal/store"
)

// testSecret is a 32-byte secret that meets MinSecretLength requirement.
var testSecret = []byte("admin-token-test-secret-32bytes!")

type fixture struct {
	store    *store.MockStore
	provider *auth.LocalProvider
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMockStore()
	p, err := auth.NewLocalProvider(s, auth.LocalOptions{Secret: testSecret, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return &fixture{store: s, provider: p, svc: NewService(s, p, nil)}
}

// addPrincipal creates an identity and its users record.
func (f *fixture) addPrincipal(t *testing.T, email string, role access.Role) *access.Principal {
	t.Helper()
	ctx := context.Background()
	id, err := f.provider.CreateUser(ctx, email, "password1")
	require.NoError(t, err)
	require.NoError(t, f.store.Put(ctx, session.UsersCollection, id.UID, session.NewPrincipalFields(id.Email, role, "")))
	p, err := session.LoadPrincipal(ctx, f.store, id.UID, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}
