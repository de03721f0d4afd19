package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-security-portal/internal/errors"
	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/jrsteele09/go-security-portal/users"
	"github.com/rs/zerolog/log"
)

// State is an immutable snapshot of the session
type State struct {
	User    *users.User
	Tokens  *tokens.Pair
	Loading bool
}

// Authenticated is true once a verified user is published
func (s State) Authenticated() bool {
	return !s.Loading && s.User != nil && s.Tokens != nil
}

// Store is the token persistence the provider derives its state from
type Store interface {
	Load() (*tokens.Pair, error)
	Save(pair tokens.Pair) error
	Clear() error
	SaveProfile(user *users.User) error
}

// API is the part of the REST client the provider drives
type API interface {
	CreateToken(ctx context.Context, email, password string) (tokens.Pair, error)
	Me(ctx context.Context) (*users.User, error)
	SetDefaultAuthorization(access string)
	ClearDefaultAuthorization()
}

// Provider owns one session. State changes only through Restore, Login, Logout and FetchUser,
// plus the refresh and teardown notifications from the API client.
type Provider struct {
	store Store
	api   API

	mu    sync.RWMutex
	state State

	restoreOnce sync.Once
	restoring   atomic.Bool
	ready       chan struct{}
}

func New(store Store, api API) *Provider {
	return &Provider{
		store: store,
		api:   api,
		state: State{Loading: true},
		ready: make(chan struct{}),
	}
}

// State returns a copy of the current session
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.clone()
}

func (s State) clone() State {
	out := State{Loading: s.Loading}
	if s.User != nil {
		u := *s.User
		u.Groups = append([]string(nil), s.User.Groups...)
		out.User = &u
	}
	if s.Tokens != nil {
		t := *s.Tokens
		out.Tokens = &t
	}
	return out
}

// Ready is closed once the initial restore has finished
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Wait blocks until the initial restore has finished or ctx is done
func (p *Provider) Wait(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restore verifies persisted tokens against the backend and publishes the result. Only the
// first call does any work; Loading goes false exactly once, when it finishes.
func (p *Provider) Restore(ctx context.Context) State {
	p.restoring.Store(true)
	p.restoreOnce.Do(func() {
		user, pair := p.restore(ctx)
		p.publishRestored(user, pair)
	})
	return p.State()
}

func (p *Provider) publishRestored(user *users.User, pair *tokens.Pair) {
	p.mu.Lock()
	p.state = State{User: user, Tokens: pair, Loading: false}
	p.mu.Unlock()
	close(p.ready)
}

// settleRestore makes sure no restore publishes after it returns. A restore in flight is waited
// for and one that never started is skipped.
func (p *Provider) settleRestore(ctx context.Context) error {
	if p.restoring.Load() {
		if err := p.Wait(ctx); err != nil {
			return err
		}
	}
	p.restoreOnce.Do(func() {
		p.publishRestored(nil, nil)
	})
	return nil
}

func (p *Provider) restore(ctx context.Context) (*users.User, *tokens.Pair) {
	pair, err := p.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load stored tokens")
	}
	if pair == nil {
		return nil, nil
	}

	user, err := p.api.Me(ctx)
	if err != nil {
		log.Info().Err(err).Msg("Initial token verification failed")
		p.rollback()
		return nil, nil
	}

	// The verification may have rotated the pair
	current, err := p.store.Load()
	if err != nil || current == nil {
		p.rollback()
		return nil, nil
	}
	if err := p.store.SaveProfile(user); err != nil {
		log.Warn().Err(err).Msg("Failed to cache profile")
	}
	p.api.SetDefaultAuthorization(current.Access)
	return user, current
}

type loginConfig struct {
	requireStaff bool
}

type LoginOption func(*loginConfig)

// RequireStaff makes a non-staff login fail with KindForbidden, leaving no session behind
func RequireStaff() LoginOption {
	return func(c *loginConfig) {
		c.requireStaff = true
	}
}

// Login adopts an issued token pair: persist, authorize, fetch the profile, then publish.
// Any failure on the way rolls everything back before the error is returned.
func (p *Provider) Login(ctx context.Context, access, refresh string, opts ...LoginOption) (*users.User, error) {
	cfg := loginConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := p.settleRestore(ctx); err != nil {
		return nil, &AuthError{Kind: KindUnexpected, Err: err}
	}

	pair := tokens.Pair{Access: access, Refresh: refresh}
	if err := p.store.Save(pair); err != nil {
		p.rollback()
		return nil, &AuthError{Kind: KindUnexpected, Err: err}
	}
	p.api.SetDefaultAuthorization(access)

	user, err := p.api.Me(ctx)
	if err != nil {
		p.rollback()
		return nil, classify(err)
	}
	if cfg.requireStaff && !user.IsStaff {
		p.rollback()
		return nil, &AuthError{Kind: KindForbidden, Err: errors.ErrForbiddenRole}
	}

	current, err := p.store.Load()
	if err != nil || current == nil {
		p.rollback()
		return nil, &AuthError{Kind: KindExpired, Err: errors.ErrSessionExpired}
	}
	if err := p.store.SaveProfile(user); err != nil {
		log.Warn().Err(err).Msg("Failed to cache profile")
	}

	p.mu.Lock()
	p.state.User = user
	p.state.Tokens = current
	p.mu.Unlock()

	log.Info().Int64("user_id", user.ID).Bool("staff", user.IsStaff).Msg("Session started")
	u := *user
	return &u, nil
}

// SignIn exchanges credentials for a token pair and logs in with it. Rejected credentials
// leave the current session untouched.
func (p *Provider) SignIn(ctx context.Context, email, password string, opts ...LoginOption) (*users.User, error) {
	if err := users.ValidateLogin(email, password); err != nil {
		return nil, &AuthError{Kind: KindCredentials, Err: err}
	}
	if err := p.settleRestore(ctx); err != nil {
		return nil, &AuthError{Kind: KindUnexpected, Err: err}
	}
	pair, err := p.api.CreateToken(ctx, email, password)
	if err != nil {
		return nil, classify(err)
	}
	return p.Login(ctx, pair.Access, pair.Refresh, opts...)
}

// Logout clears the session locally. It never fails and needs no backend. A restore still in
// flight is allowed to finish first so it cannot sign the session back in.
func (p *Provider) Logout() {
	_ = p.settleRestore(context.Background())
	p.rollback()
	log.Info().Msg("Session logged out")
}

// FetchUser refreshes the profile of an authenticated session. A failure ends the session.
func (p *Provider) FetchUser(ctx context.Context) (*users.User, error) {
	if p.State().Tokens == nil {
		return nil, &AuthError{Kind: KindExpired, Err: errors.ErrSessionNotFound}
	}

	user, err := p.api.Me(ctx)
	if err != nil {
		log.Info().Err(err).Msg("Failed to fetch user data")
		p.rollback()
		return nil, classify(err)
	}
	if err := p.store.SaveProfile(user); err != nil {
		log.Warn().Err(err).Msg("Failed to cache profile")
	}

	current, _ := p.store.Load()
	p.mu.Lock()
	p.state.User = user
	if current != nil {
		p.state.Tokens = current
	}
	p.mu.Unlock()

	u := *user
	return &u, nil
}

// TokensRefreshed swaps in a rotated pair. It never creates a session on its own.
func (p *Provider) TokensRefreshed(pair tokens.Pair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Tokens != nil {
		p.state.Tokens = &pair
	}
}

// SessionEnded resets the published state after the API client tore the session down
func (p *Provider) SessionEnded(loginPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.User = nil
	p.state.Tokens = nil
}

// rollback leaves no trace of a session: store, default header and published state
func (p *Provider) rollback() {
	if err := p.store.Clear(); err != nil {
		log.Err(err).Msg("Failed to clear token store")
	}
	p.api.ClearDefaultAuthorization()

	p.mu.Lock()
	p.state.User = nil
	p.state.Tokens = nil
	p.mu.Unlock()
}
