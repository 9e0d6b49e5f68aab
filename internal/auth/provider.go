// ABOUTME: Auth provider contract consumed by the session store
// ABOUTME: Identities, state-change listeners, and Firebase-style error codes

package auth

import (
	"context"
	"fmt"
)

// Provider error codes.
const (
	CodeNetworkRequestFailed = "auth/network-request-failed"
	CodeEmailAlreadyInUse    = "auth/email-already-in-use"
	CodeInvalidEmail         = "auth/invalid-email"
	CodeOperationNotAllowed  = "auth/operation-not-allowed"
	CodeWeakPassword         = "auth/weak-password"
	CodeUserDisabled         = "auth/user-disabled"
	CodeUserNotFound         = "auth/user-not-found"
	CodeWrongPassword        = "auth/wrong-password"
	CodeInvalidCredential    = "auth/invalid-credential"
	CodeTooManyRequests      = "auth/too-many-requests"
	CodeInternalError        = "auth/internal-error"
)

// KnownCodes lists every code a provider may report.
var KnownCodes = []string{
	CodeNetworkRequestFailed,
	CodeEmailAlreadyInUse,
	CodeInvalidEmail,
	CodeOperationNotAllowed,
	CodeWeakPassword,
	CodeUserDisabled,
	CodeUserNotFound,
	CodeWrongPassword,
	CodeInvalidCredential,
	CodeTooManyRequests,
	CodeInternalError,
}

// ProviderError is a failure reported by an auth provider.
type ProviderError struct {
	Code    string
	Message string
	cause   error
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying failure, if any.
func (e *ProviderError) Unwrap() error {
	return e.cause
}

func providerErr(code string, cause error, format string, args ...any) *ProviderError {
	return &ProviderError{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Identity is an authenticated provider account.
type Identity struct {
	UID   string
	Email string
}

// Listener receives session transitions. A nil identity means signed out.
type Listener func(*Identity)

// Provider is the auth service behind the session store.
type Provider interface {
	// CreateUser registers a new identity. It does not sign in.
	CreateUser(ctx context.Context, email, password string) (*Identity, error)
	// SignIn authenticates and makes the identity current.
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	// SignOut clears the current session. Signing out twice is not an error.
	SignOut(ctx context.Context) error
	// CurrentUser returns the signed-in identity or nil.
	CurrentUser() *Identity
	// OnAuthStateChanged registers fn for every transition after Start.
	// Listeners run synchronously in emission order.
	OnAuthStateChanged(fn Listener) (unsubscribe func())
	// Start emits the initial state to listeners.
	Start(ctx context.Context) error
	// SetDisabled blocks or unblocks future sign-ins for uid.
	SetDisabled(ctx context.Context, uid string, disabled bool) error
	// LookupEmail returns the identity registered for email.
	LookupEmail(ctx context.Context, email string) (*Identity, error)
}
