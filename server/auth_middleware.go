package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/guards"
	"github.com/jrsteele09/go-security-portal/internal/metrics"
	"github.com/jrsteele09/go-security-portal/session"
	"github.com/rs/zerolog/log"
)

// RequireAuthenticated guards the client route group. Must run after SessionMiddleware.
func (s *Server) RequireAuthenticated() func(http.HandlerFunc) http.HandlerFunc {
	return s.requireGuard(guards.Authenticated)
}

// RequireStaff guards the admin route group. Must run after SessionMiddleware.
func (s *Server) RequireStaff() func(http.HandlerFunc) http.HandlerFunc {
	return s.requireGuard(guards.Staff)
}

// requireGuard decides from session state alone and never calls the backend. A session still
// restoring gets a short wait, then the placeholder page instead of a redirect.
func (s *Server) requireGuard(kind guards.Kind) func(http.HandlerFunc) http.HandlerFunc {
	placeholder := mustParsePage("pending.html")

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sess := portalSession(r)
			state := session.State{}
			if sess != nil {
				state = s.awaitRestore(r.Context(), sess.Provider)
			}

			outcome := guards.Resolve(kind, state, r.URL.RequestURI())
			metrics.GuardDecision(kind.String(), outcome.Decision.String())

			switch outcome.Decision {
			case guards.Granted:
				ctx := apiclient.WithRoutePath(r.Context(), r.URL.Path)
				next(w, r.WithContext(ctx))
			case guards.Pending:
				w.Header().Set("Cache-Control", "no-store")
				s.renderPage(w, r, placeholder, http.StatusOK, PageData{Title: "Loading"})
			default:
				log.Debug().
					Str("guard", kind.String()).
					Str("decision", outcome.Decision.String()).
					Str("path", r.URL.Path).
					Msg("Guard denied access")
				redirectSuccess(w, r, outcome.Redirect)
			}
		}
	}
}

// awaitRestore gives an in-flight restore up to the configured wait to settle
func (s *Server) awaitRestore(ctx context.Context, provider *session.Provider) session.State {
	state := provider.State()
	if !state.Loading {
		return state
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.GetRestoreWait())
	defer cancel()
	_ = provider.Wait(ctx)
	return provider.State()
}
