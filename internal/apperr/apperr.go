// ABOUTME: Closed error taxonomy shared by stores, auth, and domain services
// ABOUTME: Kind-based matching via errors.Is, causes retained for logs only

package apperr

import (
	"errors"
	"fmt"
	"log/slog"
)

// Kind identifies a member of the error taxonomy.
type Kind int

// Error kinds.
const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindDuplicateEmail
	KindWeakPassword
	KindInvalidEmail
	KindWrongPassword
	KindAccountDisabled
	KindNetwork
	KindAuthFailed
	KindConflict
	KindPermissionDenied
)

var kindNames = map[Kind]string{
	KindValidation:       "validation",
	KindNotFound:         "not_found",
	KindDuplicateEmail:   "duplicate_email",
	KindWeakPassword:     "weak_password",
	KindInvalidEmail:     "invalid_email",
	KindWrongPassword:    "wrong_password",
	KindAccountDisabled:  "account_disabled",
	KindNetwork:          "network",
	KindAuthFailed:       "auth_failed",
	KindConflict:         "conflict",
	KindPermissionDenied: "permission_denied",
}

// String returns the snake_case name of the kind, used in logs and metric labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is matching. A sentinel matches every *Error of its Kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrDuplicateEmail   = &Error{Kind: KindDuplicateEmail}
	ErrWeakPassword     = &Error{Kind: KindWeakPassword}
	ErrInvalidEmail     = &Error{Kind: KindInvalidEmail}
	ErrWrongPassword    = &Error{Kind: KindWrongPassword}
	ErrAccountDisabled  = &Error{Kind: KindAccountDisabled}
	ErrNetwork          = &Error{Kind: KindNetwork}
	ErrAuthFailed       = &Error{Kind: KindAuthFailed}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
)

// Error is the single error type crossing service boundaries.
type Error struct {
	Kind   Kind
	Field  string // set for KindValidation
	Reason string
	cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Reason != "":
		return fmt.Sprintf("%s: %s %s", e.Kind, e.Field, e.Reason)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	default:
		return e.Kind.String()
	}
}

// Is reports whether target is an *Error of the same Kind. A target with a
// Field set only matches errors for that field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// Cause returns the underlying error for logging. errors.Unwrap does not
// reach it.
func (e *Error) Cause() error {
	return e.cause
}

// LogValue implements slog.LogValuer.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", e.Kind.String())}
	if e.Field != "" {
		attrs = append(attrs, slog.String("field", e.Field))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	return slog.GroupValue(attrs...)
}

// New creates an error of the given kind with a reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap creates an error of the given kind that retains cause for logging.
func Wrap(kind Kind, cause error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason, cause: cause}
}

// Validation reports an invalid field.
func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

// NotFound reports a missing entity.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Reason: what + " not found"}
}

// Network reports an unreachable or failing remote collaborator.
func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Reason: "remote unavailable", cause: cause}
}

// Conflict reports a transaction that could not commit after retries.
func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

// As returns err as an *Error when it is (or wraps) one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or zero when err is not part of the taxonomy.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return 0
}

// Ensure maps err into the taxonomy. Errors already in the taxonomy pass
// through unchanged; anything else becomes fallback with err kept as cause.
func Ensure(err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return &Error{Kind: fallback, cause: err}
}

var messages = map[Kind]string{
	KindNetwork:          "Network error. Please check your connection.",
	KindDuplicateEmail:   "Email is already registered.",
	KindInvalidEmail:     "Invalid email address.",
	KindWeakPassword:     "Password is too weak.",
	KindAccountDisabled:  "This account has been disabled.",
	KindNotFound:         "No account found with this email.",
	KindWrongPassword:    "Invalid password.",
	KindAuthFailed:       "Authentication failed. Please try again.",
	KindConflict:         "The record was changed by someone else. Please try again.",
	KindPermissionDenied: "You do not have permission to do that.",
}

// Message returns a human-readable sentence for err. Validation errors
// name the field; NotFound errors with a specific reason use it.
func Message(err error) string {
	if err == nil {
		return ""
	}
	e, ok := As(err)
	if !ok {
		return "Something went wrong. Please try again."
	}
	switch e.Kind {
	case KindValidation:
		if e.Field == "" {
			return "Invalid input."
		}
		return fmt.Sprintf("Invalid %s: %s.", e.Field, e.Reason)
	case KindNotFound:
		if e.Reason != "" && e.Reason != "user not found" {
			return capitalize(e.Reason) + "."
		}
	}
	if msg, ok := messages[e.Kind]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
