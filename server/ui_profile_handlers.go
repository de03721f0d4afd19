package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-security-portal/users"
)

// ProfilePageData drives the client and admin profile pages
type ProfilePageData struct {
	Staff          bool
	UpdateAction   string
	VerifyAction   string
	PasswordAction string
	AwaitingOTP    bool
}

func profileRoutes(staff bool) ProfilePageData {
	if staff {
		return ProfilePageData{
			Staff:          true,
			UpdateAction:   RouteAdminProfile,
			VerifyAction:   RouteAdminProfileVerify,
			PasswordAction: RouteAdminProfilePassword,
		}
	}
	return ProfilePageData{
		UpdateAction:   RouteProfile,
		VerifyAction:   RouteProfileVerifyCode,
		PasswordAction: RouteProfilePassword,
	}
}

// ProfileHandler renders the profile page, with the OTP form once a change is pending
func (s *Server) ProfileHandler(staff bool) http.HandlerFunc {
	tmpl := mustParsePage("profile.html")
	activePage := "profile"
	if staff {
		activePage = "admin-profile"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		data := profileRoutes(staff)
		data.AwaitingOTP = r.URL.Query().Get("otp") == "1"
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{Title: "Profile", ActivePage: activePage, Data: data})
	}
}

// ProfileUpdateHandler starts an OTP confirmed change of name or email
func (s *Server) ProfileUpdateHandler(staff bool) http.HandlerFunc {
	routes := profileRoutes(staff)
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		update := users.ProfileUpdate{
			FirstName: strings.TrimSpace(r.FormValue("first_name")),
			LastName:  strings.TrimSpace(r.FormValue("last_name")),
			Email:     strings.TrimSpace(r.FormValue("email")),
		}
		if update.FirstName == "" && update.LastName == "" && update.Email == "" {
			redirectWithError(w, r, routes.UpdateAction, "Nothing to update")
			return
		}
		if staff {
			update.UpdateType = "details"
		}

		if err := portalSession(r).Client.InitiateProfileUpdate(r.Context(), update); err != nil {
			handleAPIError(w, r, err, routes.UpdateAction)
			return
		}
		redirectWithNotice(w, r, routes.UpdateAction+"?otp=1", "A verification code has been sent to your email")
	}
}

// ProfileVerifyHandler confirms a pending change and reloads the session's profile
func (s *Server) ProfileVerifyHandler(staff bool) http.HandlerFunc {
	routes := profileRoutes(staff)
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		otp := strings.TrimSpace(r.FormValue("otp"))
		if err := users.ValidateOTP(otp); err != nil {
			redirectWithError(w, r, routes.UpdateAction+"?otp=1", err.Error())
			return
		}

		sess := portalSession(r)
		if err := sess.Client.VerifyProfileUpdate(r.Context(), otp, staff); err != nil {
			handleAPIError(w, r, err, routes.UpdateAction+"?otp=1")
			return
		}
		if _, err := sess.Provider.FetchUser(r.Context()); err != nil {
			handleAPIError(w, r, err, routes.UpdateAction)
			return
		}
		redirectWithNotice(w, r, routes.UpdateAction, "Profile updated successfully")
	}
}

// ProfilePasswordHandler changes the password. Clients confirm with their current password;
// staff confirm with an emailed OTP instead.
func (s *Server) ProfilePasswordHandler(staff bool) http.HandlerFunc {
	routes := profileRoutes(staff)
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		change := users.PasswordChange{
			CurrentPassword: r.FormValue("current_password"),
			NewPassword:     r.FormValue("new_password"),
			ReNewPassword:   r.FormValue("re_new_password"),
		}
		if err := change.Validate(); err != nil {
			redirectWithError(w, r, routes.UpdateAction, err.Error())
			return
		}

		client := portalSession(r).Client
		if staff {
			update := users.ProfileUpdate{Password: change.NewPassword, UpdateType: "password"}
			if err := client.InitiateProfileUpdate(r.Context(), update); err != nil {
				handleAPIError(w, r, err, routes.UpdateAction)
				return
			}
			redirectWithNotice(w, r, routes.UpdateAction+"?otp=1", "A verification code has been sent to your email")
			return
		}

		if change.CurrentPassword == "" {
			redirectWithError(w, r, routes.UpdateAction, "current password is required")
			return
		}
		if err := client.SetPassword(r.Context(), change); err != nil {
			handleAPIError(w, r, err, routes.UpdateAction)
			return
		}
		redirectWithNotice(w, r, routes.UpdateAction, "Password changed successfully")
	}
}
