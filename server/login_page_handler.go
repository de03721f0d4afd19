package server

import (
	"net/http"

	"github.com/jrsteele09/go-security-portal/guards"
	"github.com/jrsteele09/go-security-portal/server/portalsession"
	"github.com/jrsteele09/go-security-portal/session"
	"github.com/jrsteele09/go-security-portal/users"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	Admin  bool   // Staff entry point
	Action string // Form target
	Email  string // Preserve email on error
	Next   string // Where to go after a successful login
}

// landingPage is where a user goes after login when no "next" was requested
func landingPage(user *users.User) string {
	if user != nil && user.IsStaff {
		return RouteAdminDashboard
	}
	return RouteDashboard
}

// LoginPageUIHandler displays the login page (GET /login, GET /admin/login)
func (s *Server) LoginPageUIHandler(admin bool) http.HandlerFunc {
	loginTmpl := mustParsePage("login.html")
	action := RouteLogin
	title := "Client Login"
	if admin {
		action = RouteAdminLogin
		title = "Admin Login"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		next := guards.SafeNext(r.URL.Query().Get("next"), "")

		if sess := portalSession(r); sess != nil {
			if state := s.awaitRestore(r.Context(), sess.Provider); state.Authenticated() && (!admin || state.User.IsStaff) {
				redirectSuccess(w, r, guards.SafeNext(next, landingPage(state.User)))
				return
			}
		}

		s.renderPage(w, r, loginTmpl, http.StatusOK, PageData{
			Title: title,
			Data: LoginPageData{
				Admin:  admin,
				Action: action,
				Email:  r.URL.Query().Get("email"),
				Next:   next,
			},
		})
	}
}

// LoginSubmissionHandler processes the login form submission. The staff entry point refuses
// non-staff accounts and leaves no session behind for them.
func (s *Server) LoginSubmissionHandler(admin bool) http.HandlerFunc {
	loginPath := RouteLogin
	var opts []session.LoginOption
	if admin {
		loginPath = RouteAdminLogin
		opts = append(opts, session.RequireStaff())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		email := r.FormValue("email")
		password := r.FormValue("password")
		next := guards.SafeNext(r.FormValue("next"), "")

		// Every login gets a new session id; the one the browser arrived with is discarded
		fresh, err := s.sessions.Create()
		if err != nil {
			log.Err(err).Msg("Failed to create portal session")
			redirectWithError(w, r, loginPath, unexpectedErrorMessage)
			return
		}

		ctx := apiContext(r)
		if err := fresh.Client.PrimeCSRF(ctx); err != nil {
			log.Debug().Err(err).Msg("Failed to prime csrf cookie")
		}

		user, err := fresh.Provider.SignIn(ctx, email, password, opts...)
		if err != nil {
			log.Info().Err(err).Bool("admin", admin).Msg("Login failed")
			s.discardSession(fresh)
			s.renderLoginError(w, r, loginPath, errorMessage(err), email, next)
			return
		}

		if old := portalSession(r); old != nil {
			s.discardSession(old)
		}
		s.SetPortalSessionCookie(w, fresh.ID, r, int(s.config.GetMaxSessionAge().Seconds()))
		redirectSuccess(w, r, guards.SafeNext(next, landingPage(user)))
	}
}

// LogoutHandler ends the portal session locally. The backend keeps no session to revoke.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := RouteLogin
		if sess := portalSession(r); sess != nil {
			if state := sess.Provider.State(); state.User != nil && state.User.IsStaff {
				target = RouteAdminLogin
			}
			s.discardSession(sess)
		}
		s.SetPortalSessionCookie(w, "", r, -1) // Delete cookie
		redirectSuccess(w, r, target)
	}
}

// discardSession logs the session out and forgets it along with its stored tokens
func (s *Server) discardSession(sess *portalsession.Session) {
	sess.Provider.Logout()
	if err := s.sessions.Delete(sess.ID); err != nil {
		log.Err(err).Str("session_id", sess.ID).Msg("Failed to delete portal session")
	}
}

// renderLoginError redirects to the login page with an error message
func (s *Server) renderLoginError(w http.ResponseWriter, r *http.Request, loginPath, errorMsg, email, next string) {
	redirectURL := loginPath
	if email != "" {
		redirectURL = withQuery(redirectURL, "email", email)
	}
	if next != "" {
		redirectURL = withQuery(redirectURL, "next", next)
	}
	redirectWithError(w, r, redirectURL, errorMsg)
}
