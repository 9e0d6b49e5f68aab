// ABOUTME: Boundary translation from provider error codes into apperr kinds
// ABOUTME: The only place provider codes are inspected

package auth

import (
	"context"
	"errors"

	"github.com/2389/fitportal/internal/apperr"
)

// TranslateError maps a provider failure into the apperr taxonomy.
// A provider code always decides the kind, even when the provider wrapped
// a taxonomy error. Bare taxonomy errors pass through; unknown codes and
// foreign errors become AuthFailed.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		if e, ok := apperr.As(err); ok {
			return e
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return apperr.Network(err)
		}
		return apperr.Wrap(apperr.KindAuthFailed, err, "unexpected provider failure")
	}

	switch pe.Code {
	case CodeNetworkRequestFailed:
		return apperr.Network(pe)
	case CodeEmailAlreadyInUse:
		return apperr.Wrap(apperr.KindDuplicateEmail, pe, "email already registered")
	case CodeInvalidEmail:
		return apperr.Wrap(apperr.KindInvalidEmail, pe, "invalid email")
	case CodeWeakPassword:
		return apperr.Wrap(apperr.KindWeakPassword, pe, "password too weak")
	case CodeUserDisabled:
		return apperr.Wrap(apperr.KindAccountDisabled, pe, "account disabled")
	case CodeUserNotFound:
		return apperr.Wrap(apperr.KindNotFound, pe, "user not found")
	case CodeWrongPassword, CodeInvalidCredential:
		return apperr.Wrap(apperr.KindWrongPassword, pe, "wrong password")
	default:
		// too-many-requests, operation-not-allowed, internal-error, unknown
		return apperr.Wrap(apperr.KindAuthFailed, pe, "provider rejected the request")
	}
}
