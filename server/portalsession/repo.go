package portalsession

import (
	"time"

	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/session"
	"github.com/jrsteele09/go-security-portal/tokens"
)

// Session is one browser's portal session: an owned provider and API client over a token
// store namespaced by the session id
type Session struct {
	ID       string
	Provider *session.Provider
	Client   *apiclient.Client
	Tokens   *tokens.Store

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session outlived its maximum age
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// TokenBackends hands out per-session token storage. memorybackend.Repo and redisbackend.Repo
// both satisfy it.
type TokenBackends interface {
	Namespace(namespace string) tokens.Backend
	Drop(namespace string)
}

type Repo interface {
	Create() (*Session, error)
	Get(sessionID string) (*Session, error)
	Delete(sessionID string) error
	Sweep(now time.Time) int
}
