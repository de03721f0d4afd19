package server

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-security-portal/users"
	"github.com/rs/zerolog/log"
)

// ValidatePasswordHandler checks password strength for the htmx inline hint
func (s *Server) ValidatePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		password := r.FormValue("password")
		if password == "" {
			password = r.FormValue("new_password")
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if password == "" {
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := users.ValidatePasswordStrength(password); err != nil {
			w.Header().Set("HX-Trigger", `{"passwordInvalid": ""}`)
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `<span class="text-danger">%s</span>`, html.EscapeString(err.Error()))
			return
		}

		w.Header().Set("HX-Trigger", `{"passwordValid": ""}`)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `<span class="text-success">Strong password</span>`)
	}
}

// RegisterPageData preserves the registration form on error
type RegisterPageData struct {
	Email     string
	FirstName string
	LastName  string
}

// RegisterGetHandler renders the client registration page
func (s *Server) RegisterGetHandler() http.HandlerFunc {
	tmpl := mustParsePage("register.html")
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{
			Title: "Register",
			Data: RegisterPageData{
				Email:     q.Get("email"),
				FirstName: q.Get("first_name"),
				LastName:  q.Get("last_name"),
			},
		})
	}
}

// RegisterPostHandler creates a client account; the backend mails the activation link
func (s *Server) RegisterPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		reg := users.Registration{
			Email:      strings.TrimSpace(r.FormValue("email")),
			FirstName:  strings.TrimSpace(r.FormValue("first_name")),
			LastName:   strings.TrimSpace(r.FormValue("last_name")),
			Password:   r.FormValue("password"),
			RePassword: r.FormValue("re_password"),
		}

		retry := RouteRegister
		retry = withQuery(retry, "email", reg.Email)
		retry = withQuery(retry, "first_name", reg.FirstName)
		retry = withQuery(retry, "last_name", reg.LastName)

		if err := reg.Validate(); err != nil {
			redirectWithError(w, r, retry, err.Error())
			return
		}

		sess := portalSession(r)
		if err := sess.Client.Register(apiContext(r), reg); err != nil {
			handleAPIError(w, r, err, retry)
			return
		}

		log.Info().Str("email", reg.Email).Msg("Client registered")
		redirectWithNotice(w, r, RouteLogin, "Registration successful. Please check your email to activate your account.")
	}
}

// ActivateHandler confirms the emailed activation link and reports the outcome
func (s *Server) ActivateHandler() http.HandlerFunc {
	tmpl := mustParsePage("activate.html")
	return func(w http.ResponseWriter, r *http.Request) {
		data := PageData{Title: "Account activation"}

		sess := portalSession(r)
		if err := sess.Client.Activate(apiContext(r), r.PathValue("uid"), r.PathValue("token")); err != nil {
			log.Info().Err(err).Msg("Account activation failed")
			data.Error = "Activation failed. The link may be invalid or already used."
		} else {
			data.Notice = "Your account is active. You can now log in."
		}
		s.renderPage(w, r, tmpl, http.StatusOK, data)
	}
}

// SetPasswordPageData drives the initial password form of a newly created admin
type SetPasswordPageData struct {
	Action string
}

// SetInitialPasswordGetHandler renders the initial password form from the emailed link
func (s *Server) SetInitialPasswordGetHandler() http.HandlerFunc {
	tmpl := mustParsePage("set_initial_password.html")
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{
			Title: "Set your password",
			Data:  SetPasswordPageData{Action: r.URL.Path},
		})
	}
}

// SetInitialPasswordPostHandler submits the new password together with the link's uid and token
func (s *Server) SetInitialPasswordPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		change := users.PasswordChange{
			NewPassword:   r.FormValue("new_password"),
			ReNewPassword: r.FormValue("re_new_password"),
		}
		if err := change.Validate(); err != nil {
			redirectWithError(w, r, r.URL.Path, err.Error())
			return
		}

		sess := portalSession(r)
		if err := sess.Client.SetInitialPassword(apiContext(r), r.PathValue("uid"), r.PathValue("token"), change); err != nil {
			handleAPIError(w, r, err, r.URL.Path)
			return
		}
		redirectWithNotice(w, r, RouteAdminLogin, "Password set. You can now log in.")
	}
}
