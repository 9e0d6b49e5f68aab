// ABOUTME: Tests for the error taxonomy
// ABOUTME: Covers kind matching, cause isolation, and user-facing messages

package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type driverError struct{ code string }

func (d *driverError) Error() string { return "driver: " + d.code }

func TestIs_MatchesByKind(t *testing.T) {
	err := NotFound("content item")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))

	wrapped := fmt.Errorf("loading item: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestIs_ValidationField(t *testing.T) {
	err := Validation("title", "is required")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, &Error{Kind: KindValidation, Field: "title"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation, Field: "price"}))
}

func TestCauseNotUnwrappable(t *testing.T) {
	cause := &driverError{code: "SQLITE_BUSY"}
	err := Network(cause)

	var de *driverError
	assert.False(t, errors.As(err, &de), "driver error must not cross the boundary")
	assert.Nil(t, errors.Unwrap(err))
	assert.Equal(t, cause, err.Cause())
}

func TestEnsure(t *testing.T) {
	assert.NoError(t, Ensure(nil, KindNetwork))

	known := Conflict("retries exhausted")
	assert.Same(t, known, Ensure(known, KindNetwork))

	raw := errors.New("connection refused")
	got := Ensure(raw, KindNetwork)
	assert.True(t, errors.Is(got, ErrNetwork))
	e, ok := As(got)
	require.True(t, ok)
	assert.Equal(t, raw, e.Cause())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindWrongPassword, KindOf(New(KindWrongPassword, "")))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", Network(errors.New("x")), "Network error. Please check your connection."},
		{"duplicate", New(KindDuplicateEmail, ""), "Email is already registered."},
		{"invalid email", New(KindInvalidEmail, ""), "Invalid email address."},
		{"weak", New(KindWeakPassword, ""), "Password is too weak."},
		{"disabled", New(KindAccountDisabled, ""), "This account has been disabled."},
		{"user not found", NotFound("user"), "No account found with this email."},
		{"item not found", NotFound("content item"), "Content item not found."},
		{"wrong password", New(KindWrongPassword, ""), "Invalid password."},
		{"validation", Validation("title", "is required"), "Invalid title: is required."},
		{"untyped", errors.New("boom"), "Something went wrong. Please try again."},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestError_String(t *testing.T) {
	assert.Equal(t, "validation: title is required", Validation("title", "is required").Error())
	assert.Equal(t, "conflict: retries exhausted", Conflict("retries exhausted").Error())
	assert.Equal(t, "auth_failed", New(KindAuthFailed, "").Error())
}
