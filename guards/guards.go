package guards

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-security-portal/apiclient"
	"github.com/jrsteele09/go-security-portal/session"
)

// DashboardPath is where authenticated non-staff users are sent when they reach for a staff route
const DashboardPath = "/dashboard"

type Kind int

const (
	// Authenticated admits any verified user
	Authenticated Kind = iota
	// Staff admits verified users with is_staff set
	Staff
)

func (k Kind) String() string {
	if k == Staff {
		return "staff"
	}
	return "authenticated"
}

// Decision is the guard state for one navigation. Pending is the only non-terminal state.
type Decision int

const (
	Pending Decision = iota
	DeniedUnauthenticated
	DeniedWrongRole
	Granted
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case DeniedUnauthenticated:
		return "denied_unauthenticated"
	case DeniedWrongRole:
		return "denied_wrong_role"
	default:
		return "granted"
	}
}

// Evaluate decides from session state alone
func Evaluate(kind Kind, state session.State) Decision {
	switch {
	case state.Loading:
		return Pending
	case state.User == nil || state.Tokens == nil:
		return DeniedUnauthenticated
	case kind == Staff && !state.User.IsStaff:
		return DeniedWrongRole
	default:
		return Granted
	}
}

// Outcome is a decision plus where to send the user when access is denied
type Outcome struct {
	Decision Decision
	Redirect string
}

// Resolve evaluates the guard for a request to requested (path plus query). Unauthenticated
// users go to the matching login page with requested preserved in "next".
func Resolve(kind Kind, state session.State, requested string) Outcome {
	decision := Evaluate(kind, state)
	out := Outcome{Decision: decision}
	switch decision {
	case DeniedUnauthenticated:
		login := apiclient.LoginPath
		if kind == Staff {
			login = apiclient.AdminLoginPath
		}
		out.Redirect = LoginRedirect(login, requested)
	case DeniedWrongRole:
		out.Redirect = DashboardPath
	}
	return out
}

// LoginRedirect builds the login URL carrying the return path
func LoginRedirect(loginPath, requested string) string {
	if requested == "" || !IsLocalPath(requested) {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(requested)
}

// SafeNext returns next when it is a local path, fallback otherwise
func SafeNext(next, fallback string) string {
	if next != "" && IsLocalPath(next) {
		return next
	}
	return fallback
}

// IsLocalPath rejects absolute and protocol relative URLs so "next" can't redirect off site
func IsLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}
