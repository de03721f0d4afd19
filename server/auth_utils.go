package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/guards"
	"github.com/jrsteele09/go-security-portal/internal/errors"
	"github.com/jrsteele09/go-security-portal/server/portalsession"
	"github.com/jrsteele09/go-security-portal/session"
	"github.com/rs/zerolog/log"
)

const (
	// portalSessionCookieName identifies the browser's portal session
	portalSessionCookieName = "portalSessionId"

	unexpectedErrorMessage = "An unexpected error occurred."
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the *portalsession.Session of the request
	ContextKeySession ContextKey = "portal_session"
)

func (s *Server) SetPortalSessionCookie(w http.ResponseWriter, sessionID string, r *http.Request, maxAge int) {
	isSecure := s.config.GetSecureCookies() || getScheme(r) == "https"

	http.SetCookie(w, &http.Cookie{
		Name:     portalSessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// SessionMiddleware attaches the browser's portal session, starting one when the cookie is
// missing, unknown or expired
func (s *Server) SessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sess *portalsession.Session
		if cookie, err := r.Cookie(portalSessionCookieName); err == nil && cookie.Value != "" {
			sess, err = s.sessions.Get(cookie.Value)
			if err != nil {
				log.Debug().Err(err).Msg("Discarding portal session cookie")
				sess = nil
			}
		}

		if sess == nil {
			created, err := s.sessions.Create()
			if err != nil {
				log.Err(err).Msg("Failed to create portal session")
				http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
				return
			}
			sess = created
			s.SetPortalSessionCookie(w, sess.ID, r, int(s.config.GetMaxSessionAge().Seconds()))
		}

		ctx := context.WithValue(r.Context(), ContextKeySession, sess)
		next(w, r.WithContext(ctx))
	}
}

// portalSession returns the session attached by SessionMiddleware
func portalSession(r *http.Request) *portalsession.Session {
	sess, _ := r.Context().Value(ContextKeySession).(*portalsession.Session)
	return sess
}

// apiContext is the request context tagged with the route the API call is made for
func apiContext(r *http.Request) context.Context {
	return apiclient.WithRoutePath(r.Context(), r.URL.Path)
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	redirectSuccess(w, r, withQuery(path, "error", errorMsg))
}

// redirectWithNotice redirects with a success banner
func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	redirectSuccess(w, r, withQuery(path, "notice", notice))
}

func withQuery(path, key, value string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + key + "=" + url.QueryEscape(value)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// handleAPIError turns a failed backend call into a redirect. An expired session goes to the
// login page the API client chose, keeping the current page as "next"; anything else goes
// back to fallback with the backend's message.
func handleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var expired *apiclient.SessionExpiredError
	if errors.As(err, &expired) {
		next := r.URL.RequestURI()
		if r.Method != http.MethodGet {
			next = fallback
		}
		redirectWithError(w, r, guards.LoginRedirect(expired.LoginPath, next), "Your session has expired. Please log in again.")
		return
	}

	log.Warn().Err(err).Str("path", r.URL.Path).Msg("Backend call failed")
	redirectWithError(w, r, fallback, errorMessage(err))
}

// errorMessage is the user facing text for a failed call
func errorMessage(err error) string {
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message()
	}
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" && apiErr.Status < http.StatusInternalServerError {
		return apiErr.Detail
	}
	return unexpectedErrorMessage
}

// routeWith fills the {name} segment of a route pattern
func routeWith(pattern, name, value string) string {
	return strings.Replace(pattern, "{"+name+"}", url.PathEscape(value), 1)
}
