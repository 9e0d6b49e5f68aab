// Package apperr defines the closed error taxonomy surfaced to callers.
//
// Every error that crosses a service boundary in fitportal is an *Error
// carrying one Kind. Provider and driver errors are translated at the
// boundary where they occur (auth.TranslateError for the auth provider,
// the store implementations for database drivers) so callers never see
// third-party error types.
//
// # Matching
//
// Use errors.Is with the package sentinels:
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
//	if errors.Is(err, apperr.ErrValidation) { ... }
//
// A sentinel matches any *Error of the same Kind. Validation errors also
// carry the offending Field and a Reason.
//
// # Causes
//
// The underlying cause is kept for logging (Cause, LogValue) but is not
// exposed through Unwrap, so errors.As against driver or provider types
// never succeeds on an *Error.
//
// # Messages
//
// Message returns one human-readable sentence per Kind, suitable for
// showing to end users.
package apperr
