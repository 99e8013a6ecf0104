package service

import (
	"errors"
	"fmt"
)

// Errors returned by the services. Credential and token failures are
// deliberately coarse: callers learn that authentication failed, never why.
var (
	ErrAlreadyExists      = errors.New("already_exists")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrMFARequired        = errors.New("mfa_required")
	ErrNotFound           = errors.New("not_found")

	// ErrStoreUnavailable wraps failures of the credential store or the
	// revocation denylist. It is never retried here.
	ErrStoreUnavailable = errors.New("store_unavailable")
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
