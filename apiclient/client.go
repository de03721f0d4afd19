package apiclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/jrsteele09/go-security-portal/users"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

const (
	csrfCookieName = "csrftoken"
	csrfHeaderName = "X-CSRFToken"

	defaultTimeout = 15 * time.Second
)

// TokenStore is the persistence the client reads bearer tokens from and rotates them into
type TokenStore interface {
	Load() (*tokens.Pair, error)
	Save(pair tokens.Pair) error
	Clear() error
	SaveProfile(user *users.User) error
}

// Observer is told about session changes the client makes on its own
type Observer interface {
	// TokensRefreshed fires after a rotated pair has been persisted
	TokensRefreshed(pair tokens.Pair)
	// SessionEnded fires after a 401 could not be recovered and the store was cleared
	SessionEnded(loginPath string)
}

// Client is the single request pipeline to the REST backend. It attaches the bearer token and
// the CSRF header, and recovers from one 401 per request by rotating the token pair.
type Client struct {
	baseURL    string
	base       *url.URL
	httpClient *http.Client
	store      TokenStore

	mu          sync.RWMutex
	defaultAuth string
	observers   []Observer

	refreshGroup singleflight.Group
}

type Option func(*Client)

// WithHTTPClient shares a transport between clients. Each client still keeps its own cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient.Transport = hc.Transport
		if hc.Timeout > 0 {
			c.httpClient.Timeout = hc.Timeout
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observers = append(c.observers, observer)
	}
}

// New creates a client for the backend rooted at baseURL, e.g. "http://127.0.0.1:8000"
func New(baseURL string, store TokenStore, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("[apiclient New] invalid base url %q", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("[apiclient New] cookie jar: %w", err)
	}

	c := &Client{
		baseURL:    base.String(),
		base:       base,
		httpClient: &http.Client{Jar: jar, Timeout: defaultTimeout},
		store:      store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Subscribe registers an observer after construction
func (c *Client) Subscribe(observer Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, observer)
}

// SetDefaultAuthorization sets the bearer used when the store holds no pair,
// e.g. between a login's token exchange and its persistence
func (c *Client) SetDefaultAuthorization(access string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultAuth = access
}

func (c *Client) ClearDefaultAuthorization() {
	c.SetDefaultAuthorization("")
}

// DefaultAuthorization returns the current default bearer, empty when unset
func (c *Client) DefaultAuthorization() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultAuth
}

// BaseURL is the backend root the client was created with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CSRFToken returns the backend's csrftoken cookie, if one has been set
func (c *Client) CSRFToken() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.base) {
		if cookie.Name == csrfCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) observersSnapshot() []Observer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Observer(nil), c.observers...)
}
