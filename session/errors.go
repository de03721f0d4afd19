package session

import (
	"fmt"

	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/internal/errors"
)

// Kind classifies why a session operation failed
type Kind int

const (
	KindUnexpected Kind = iota
	// KindCredentials is a rejected email/password; the session was not touched
	KindCredentials
	// KindForbidden is a valid login without the role the entry point requires
	KindForbidden
	// KindExpired is a 401 that could not be recovered
	KindExpired
)

func (k Kind) String() string {
	switch k {
	case KindCredentials:
		return "credentials"
	case KindForbidden:
		return "forbidden"
	case KindExpired:
		return "expired"
	default:
		return "unexpected"
	}
}

// AuthError is returned by every session operation that can fail
type AuthError struct {
	Kind Kind
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user for this failure
func (e *AuthError) Message() string {
	switch e.Kind {
	case KindCredentials:
		var apiErr *apiclient.APIError
		if errors.As(e.Err, &apiErr) && apiErr.Detail != "" {
			return apiErr.Detail
		}
		return "Failed to login. Please check your credentials."
	case KindForbidden:
		return "You do not have permission to access the admin dashboard."
	case KindExpired:
		return "Your session has expired. Please log in again."
	default:
		return "An unexpected error occurred."
	}
}

// classify maps a failure of a session affecting call onto an AuthError
func classify(err error) *AuthError {
	var authErr *AuthError
	switch {
	case errors.As(err, &authErr):
		return authErr
	case errors.Is(err, errors.ErrInvalidCredentials):
		return &AuthError{Kind: KindCredentials, Err: err}
	case errors.Is(err, errors.ErrForbiddenRole):
		return &AuthError{Kind: KindForbidden, Err: err}
	case errors.Is(err, errors.ErrSessionExpired), errors.Is(err, errors.ErrUnauthorized):
		return &AuthError{Kind: KindExpired, Err: err}
	default:
		return &AuthError{Kind: KindUnexpected, Err: err}
	}
}
