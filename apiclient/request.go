package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-security-portal/internal/errors"
	"github.com/jrsteele09/go-security-portal/internal/metrics"
	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	createTokenPath  = "/auth/jwt/create/"
	refreshTokenPath = "/auth/jwt/refresh/"

	maxResponseSize = 32 << 20
)

// apiRequest describes one logical call. It survives the refresh-and-retry, so bodies are
// rebuilt from it on every attempt.
type apiRequest struct {
	method    string
	path      string // Relative to the base URL, or an absolute backend URL
	query     url.Values
	body      any
	form      *multipartForm
	respObj   any
	anonymous bool // Never attach a bearer

	retried    bool
	sentAccess string
}

type multipartFile struct {
	field    string
	fileName string
	data     []byte
}

type multipartForm struct {
	fields map[string]string
	files  []multipartFile
}

// encode writes the form and returns the writer's content type, boundary included
func (f *multipartForm) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for name, value := range f.fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.field, file.fileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// isTokenEndpoint identifies calls whose 401 means "bad credentials", never "expired access"
func isTokenEndpoint(path string) bool {
	return path == refreshTokenPath || path == createTokenPath
}

// execute sends req, recovering once from a 401, and decodes a 2xx body into req.respObj
func (c *Client) execute(ctx context.Context, req *apiRequest) (*response, error) {
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.status == http.StatusUnauthorized && !req.anonymous && !isTokenEndpoint(req.path) && !req.retried {
		req.retried = true
		if err := c.recoverSession(ctx, req.sentAccess); err != nil {
			return nil, err
		}
		if resp, err = c.roundTrip(ctx, req); err != nil {
			return nil, err
		}
	}

	if resp.status < 200 || resp.status > 299 {
		return nil, newAPIError(resp.status, resp.body)
	}
	if req.respObj != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, req.respObj); err != nil {
			return nil, fmt.Errorf("[apiclient execute] error unmarshaling %s %s response: %w", req.method, req.path, err)
		}
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, req *apiRequest) (*response, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.form != nil:
		buf, ct, err := req.form.encode()
		if err != nil {
			return nil, fmt.Errorf("[apiclient roundTrip] error encoding multipart body: %w", err)
		}
		body, contentType = buf, ct
	case req.body != nil:
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("[apiclient roundTrip] error marshaling request body: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	target, sameOrigin := c.resolve(req.path)
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	r, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("[apiclient roundTrip] error creating request %s %s: %w", req.method, req.path, err)
	}
	r.Header.Set("Accept", "application/json")
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	if sameOrigin {
		if !req.anonymous {
			req.sentAccess = c.authorize(r)
		}
		if !isSafeMethod(req.method) {
			if csrf := c.CSRFToken(); csrf != "" {
				r.Header.Set(csrfHeaderName, csrf)
			}
		}
	}

	resp, err := c.httpClient.Do(r)
	if err != nil {
		return nil, fmt.Errorf("[apiclient roundTrip] error invoking %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("[apiclient roundTrip] error reading %s %s response: %w", req.method, req.path, err)
	}
	log.Debug().Str("method", req.method).Str("path", req.path).Int("status", resp.StatusCode).Msg("api call")
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// resolve turns a request path into a URL and reports whether it points at the backend origin
func (c *Client) resolve(path string) (string, bool) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return path, false
		}
		return path, u.Scheme == c.base.Scheme && u.Host == c.base.Host
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path, true
}

// authorize sets the bearer header from the store, falling back on the default authorization.
// It returns the access token it attached.
func (c *Client) authorize(r *http.Request) string {
	pair, err := c.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read tokens for request")
	}
	if pair != nil {
		pair.OAuth2().SetAuthHeader(r)
		return pair.Access
	}
	if access := c.DefaultAuthorization(); access != "" {
		(&oauth2.Token{AccessToken: access, TokenType: "Bearer"}).SetAuthHeader(r)
		return access
	}
	return ""
}

// recoverSession makes the stored pair usable again after a 401. When another request has
// already rotated the pair since failedAccess was sent, the rotated pair is reused as is.
func (c *Client) recoverSession(ctx context.Context, failedAccess string) error {
	pair, err := c.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read tokens during refresh")
	}
	if pair == nil || pair.Refresh == "" {
		c.teardown(ctx, "no_refresh_token")
		return &SessionExpiredError{LoginPath: LoginPathFor(RoutePath(ctx)), Err: errors.ErrNoRefreshToken}
	}
	if failedAccess != "" && pair.Access != failedAccess {
		return nil
	}

	_, err, shared := c.refreshGroup.Do(pair.Refresh, func() (any, error) {
		if current, _ := c.store.Load(); current != nil && current.Refresh != pair.Refresh {
			return *current, nil
		}
		return c.refresh(context.WithoutCancel(ctx), pair.Refresh)
	})
	if shared {
		log.Debug().Msg("Joined in-flight token refresh")
	}
	if err != nil {
		return &SessionExpiredError{LoginPath: LoginPathFor(RoutePath(ctx)), Err: err}
	}
	return nil
}

// refresh exchanges the refresh token for a rotated pair, or tears the session down
func (c *Client) refresh(ctx context.Context, refreshToken string) (tokens.Pair, error) {
	var pair tokens.Pair
	resp, err := c.roundTrip(ctx, &apiRequest{
		method:    http.MethodPost,
		path:      refreshTokenPath,
		body:      map[string]string{"refresh": refreshToken},
		anonymous: true,
	})
	switch {
	case err != nil:
		err = errors.Wrapf(errors.ErrRefreshFailed, "%v", err)
	case resp.status < 200 || resp.status > 299:
		err = errors.Wrapf(errors.ErrRefreshFailed, "%v", newAPIError(resp.status, resp.body))
	default:
		if jsonErr := json.Unmarshal(resp.body, &pair); jsonErr != nil || !pair.Complete() {
			err = errors.Wrapf(errors.ErrRefreshFailed, "refresh response did not carry a token pair")
		}
	}
	if err == nil {
		if saveErr := c.store.Save(pair); saveErr != nil {
			err = errors.Wrapf(errors.ErrRefreshFailed, "%v", saveErr)
		}
	}
	if err != nil {
		log.Warn().Err(err).Msg("Token refresh failed")
		metrics.TokenRefresh("failure")
		c.teardown(ctx, "refresh_failed")
		return tokens.Pair{}, err
	}

	if user, err := tokens.ProfileFromAccess(pair.Access); err == nil {
		if err := c.store.SaveProfile(user); err != nil {
			log.Warn().Err(err).Msg("Failed to cache profile from refreshed token")
		}
	} else {
		log.Debug().Err(err).Msg("Refreshed access token carries no readable profile")
	}
	c.SetDefaultAuthorization(pair.Access)
	metrics.TokenRefresh("success")

	for _, observer := range c.observersSnapshot() {
		observer.TokensRefreshed(pair)
	}
	return pair, nil
}

// teardown clears every trace of the session and tells observers where the user should go
func (c *Client) teardown(ctx context.Context, reason string) {
	if err := c.store.Clear(); err != nil {
		log.Err(err).Msg("Failed to clear token store")
	}
	c.ClearDefaultAuthorization()
	metrics.SessionTeardown(reason)

	loginPath := LoginPathFor(RoutePath(ctx))
	log.Info().Str("reason", reason).Str("login", loginPath).Msg("Session ended")
	for _, observer := range c.observersSnapshot() {
		observer.SessionEnded(loginPath)
	}
}
