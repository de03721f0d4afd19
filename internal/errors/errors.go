package errors

import (
	"errors"
	"fmt"
)

// Common error types for the portal
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbiddenRole      = errors.New("insufficient role for this area")

	// Token errors
	ErrNoRefreshToken   = errors.New("no refresh token")
	ErrRefreshFailed    = errors.New("token refresh failed")
	ErrPartialTokenPair = errors.New("token pair must carry both access and refresh tokens")
	ErrCorruptEntry     = errors.New("corrupt stored entry")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// API errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
