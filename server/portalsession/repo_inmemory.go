package portalsession

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/internal/errors"
	"github.com/jrsteele09/go-security-portal/session"
	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/rs/zerolog/log"
)

// Options configures the sessions an InMemoryRepo builds
type Options struct {
	APIBaseURL     string
	APITimeout     time.Duration
	MaxAge         time.Duration
	RestoreTimeout time.Duration
	Sealer         tokens.Sealer // optional
	HTTPClient     *http.Client  // optional, shares its transport with every session client
}

// InMemoryRepo keeps live sessions in memory. Their tokens live in the configured backends,
// so a session whose id survives a restart is resumed and restored in the background.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session // sessionID -> Session
	backends TokenBackends
	opts     Options
	now      func() time.Time
}

var _ Repo = (*InMemoryRepo)(nil)

func NewInMemoryRepo(backends TokenBackends, opts Options) *InMemoryRepo {
	if opts.RestoreTimeout == 0 {
		opts.RestoreTimeout = 10 * time.Second
	}
	return &InMemoryRepo{
		sessions: make(map[string]*Session),
		backends: backends,
		opts:     opts,
		now:      time.Now,
	}
}

// Create starts a fresh, unauthenticated session
func (r *InMemoryRepo) Create() (*Session, error) {
	sess, err := r.build(uuid.NewString())
	if err != nil {
		return nil, err
	}
	// Nothing is stored under a new id, so this settles without a backend call
	sess.Provider.Restore(context.Background())

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess, nil
}

// Get returns the live session for sessionID, resuming it from the token backend when this
// process has not seen it yet. A resumed session is still loading when it is returned. An
// unknown id with no stored tokens is not found.
func (r *InMemoryRepo) Get(sessionID string) (*Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, errors.ErrSessionNotFound
	}

	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		if sess.Expired(r.now()) {
			_ = r.Delete(sessionID)
			return nil, errors.ErrSessionExpired
		}
		return sess, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		return sess, nil
	}

	sess, err := r.build(sessionID)
	if err != nil {
		return nil, err
	}
	// Only ids this portal issued and signed in have tokens stored under them
	pair, err := sess.Tokens.Load()
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Unreadable stored tokens")
		r.backends.Drop(sessionID)
		return nil, errors.ErrSessionNotFound
	}
	if pair == nil {
		return nil, errors.ErrSessionNotFound
	}
	r.sessions[sessionID] = sess

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.RestoreTimeout)
		defer cancel()
		state := sess.Provider.Restore(ctx)
		log.Debug().Str("session_id", sessionID).Bool("authenticated", state.Authenticated()).Msg("Resumed portal session")
	}()
	return sess, nil
}

// Delete forgets the session and drops its stored tokens
func (r *InMemoryRepo) Delete(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	r.backends.Drop(sessionID)
	return nil
}

// Sweep deletes expired sessions and reports how many went
func (r *InMemoryRepo) Sweep(now time.Time) int {
	r.mu.Lock()
	expired := make([]string, 0)
	for id, sess := range r.sessions {
		if sess.Expired(now) {
			expired = append(expired, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.backends.Drop(id)
	}
	return len(expired)
}

// RunSweeper sweeps every interval until ctx is done
func (r *InMemoryRepo) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now); n > 0 {
				log.Info().Int("count", n).Msg("Swept expired portal sessions")
			}
		}
	}
}

// Len is the number of live sessions
func (r *InMemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *InMemoryRepo) build(sessionID string) (*Session, error) {
	var storeOpts []tokens.Option
	if r.opts.Sealer != nil {
		storeOpts = append(storeOpts, tokens.WithSealer(r.opts.Sealer))
	}
	store := tokens.NewStore(r.backends.Namespace(sessionID), storeOpts...)

	clientOpts := []apiclient.Option{}
	if r.opts.HTTPClient != nil {
		clientOpts = append(clientOpts, apiclient.WithHTTPClient(r.opts.HTTPClient))
	}
	if r.opts.APITimeout > 0 {
		clientOpts = append(clientOpts, apiclient.WithTimeout(r.opts.APITimeout))
	}
	client, err := apiclient.New(r.opts.APIBaseURL, store, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("[portalsession build] failed to create api client: %w", err)
	}

	provider := session.New(store, client)
	client.Subscribe(provider)

	now := r.now()
	sess := &Session{
		ID:        sessionID,
		Provider:  provider,
		Client:    client,
		Tokens:    store,
		CreatedAt: now,
	}
	if r.opts.MaxAge > 0 {
		sess.ExpiresAt = now.Add(r.opts.MaxAge)
	}
	return sess, nil
}
