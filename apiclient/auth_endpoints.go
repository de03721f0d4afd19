package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-security-portal/internal/errors"
	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/jrsteele09/go-security-portal/users"
)

// CreateToken exchanges credentials for a token pair. Rejected credentials wrap
// errors.ErrInvalidCredentials.
func (c *Client) CreateToken(ctx context.Context, email, password string) (tokens.Pair, error) {
	var pair tokens.Pair
	_, err := c.execute(ctx, &apiRequest{
		method:  http.MethodPost,
		path:    createTokenPath,
		body:    map[string]string{"email": email, "password": password},
		respObj: &pair,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
			return tokens.Pair{}, fmt.Errorf("%w: %w", errors.ErrInvalidCredentials, apiErr)
		}
		return tokens.Pair{}, fmt.Errorf("[apiclient CreateToken] %w", err)
	}
	if !pair.Complete() {
		return tokens.Pair{}, fmt.Errorf("[apiclient CreateToken] %w", errors.ErrPartialTokenPair)
	}
	return pair, nil
}

// RefreshToken rotates the stored pair on demand. It behaves like the recovery from a 401:
// failure clears the store and returns a *SessionExpiredError.
func (c *Client) RefreshToken(ctx context.Context) (tokens.Pair, error) {
	if err := c.recoverSession(ctx, ""); err != nil {
		return tokens.Pair{}, err
	}
	pair, err := c.store.Load()
	if err != nil || pair == nil {
		return tokens.Pair{}, fmt.Errorf("[apiclient RefreshToken] %w", errors.ErrRefreshFailed)
	}
	return *pair, nil
}

// Me fetches the caller's profile
func (c *Client) Me(ctx context.Context) (*users.User, error) {
	var user users.User
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/auth/users/me/", respObj: &user}); err != nil {
		return nil, err
	}
	return &user, nil
}

// Register creates an inactive account; the backend mails an activation link
func (c *Client) Register(ctx context.Context, reg users.Registration) error {
	_, err := c.execute(ctx, &apiRequest{
		method:    http.MethodPost,
		path:      "/auth/users/",
		body:      reg,
		anonymous: true,
	})
	return err
}

func (c *Client) Activate(ctx context.Context, uid, token string) error {
	_, err := c.execute(ctx, &apiRequest{
		method:    http.MethodPost,
		path:      "/auth/users/activation/",
		body:      map[string]string{"uid": uid, "token": token},
		anonymous: true,
	})
	return err
}

// SetInitialPassword completes the invitation flow for staff accounts created by an admin
func (c *Client) SetInitialPassword(ctx context.Context, uid, token string, change users.PasswordChange) error {
	_, err := c.execute(ctx, &apiRequest{
		method:    http.MethodPost,
		path:      fmt.Sprintf("/api/set-initial-password/%s/%s/", url.PathEscape(uid), url.PathEscape(token)),
		body:      change,
		anonymous: true,
	})
	return err
}

func (c *Client) SetPassword(ctx context.Context, change users.PasswordChange) error {
	_, err := c.execute(ctx, &apiRequest{method: http.MethodPost, path: "/auth/users/set_password/", body: change})
	return err
}

// PrimeCSRF asks the backend to set its csrftoken cookie on this client
func (c *Client) PrimeCSRF(ctx context.Context) error {
	_, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/api/csrf/", anonymous: true})
	return err
}

// InitiateProfileUpdate starts an OTP confirmed change of the caller's details
func (c *Client) InitiateProfileUpdate(ctx context.Context, update users.ProfileUpdate) error {
	path := "/api/profile/update/initiate/"
	if update.UpdateType != "" {
		path = "/api/admin/profile/initiate-update/"
	}
	_, err := c.execute(ctx, &apiRequest{method: http.MethodPost, path: path, body: update})
	return err
}

// VerifyProfileUpdate confirms a pending change with the mailed OTP
func (c *Client) VerifyProfileUpdate(ctx context.Context, otp string, staff bool) error {
	path := "/api/profile/update/verify/"
	if staff {
		path = "/api/admin/profile/verify-update/"
	}
	_, err := c.execute(ctx, &apiRequest{method: http.MethodPost, path: path, body: map[string]string{"otp": otp}})
	return err
}
