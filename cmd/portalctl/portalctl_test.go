package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jrsteele09/go-security-portal/apiclient/fakebackend"
	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/jrsteele09/go-security-portal/services"
	"github.com/jrsteele09/go-security-portal/users"
	"github.com/stretchr/testify/require"
)

const (
	clientEmail = "client@example.com"
	staffEmail  = "staff@example.com"
	password    = "Secret123"
)

type testFixture struct {
	backend *fakebackend.Backend
	home    string
	client  users.User
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	backend := fakebackend.New(t)
	f := &testFixture{
		backend: backend,
		home:    filepath.Join(t.TempDir(), ".secportal"),
		client:  backend.AddUser(clientEmail, password, users.User{FirstName: "Cara", LastName: "Client"}),
	}
	backend.AddUser(staffEmail, password, users.User{FirstName: "Sam", IsStaff: true})
	return f
}

// run executes one portalctl invocation, as a separate process would
func (f *testFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	full := append([]string{"portalctl", "--server", f.backend.URL(), "--home", f.home}, args...)
	err := app.RunContext(context.Background(), full)
	return out.String(), err
}

func (f *testFixture) login(t *testing.T) {
	t.Helper()
	_, err := f.run(t, "login", "--email", clientEmail, "--password", password)
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	t.Run("saves the session for later commands", func(t *testing.T) {
		f := setupTestFixture(t)
		out, err := f.run(t, "login", "--email", clientEmail, "--password", password)
		require.NoError(t, err)
		require.Contains(t, out, "You are logged in as Cara Client")

		out, err = f.run(t, "whoami")
		require.NoError(t, err)
		require.Contains(t, out, clientEmail)
	})

	t.Run("bad credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.run(t, "login", "--email", clientEmail, "--password", "wrong")
		require.Error(t, err)

		_, err = f.run(t, "whoami")
		require.ErrorContains(t, err, "not logged in")
	})

	t.Run("admin login refuses clients", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.run(t, "login", "--admin", "--email", clientEmail, "--password", password)
		require.EqualError(t, err, "You do not have permission to access the admin dashboard.")

		_, err = f.run(t, "whoami")
		require.Error(t, err)
	})

	t.Run("admin login accepts staff", func(t *testing.T) {
		f := setupTestFixture(t)
		out, err := f.run(t, "login", "--admin", "--email", staffEmail, "--password", password)
		require.NoError(t, err)
		require.Contains(t, out, "Sam")
	})

	t.Run("a failed csrf priming does not stop the login", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.Script("/api/csrf/", http.StatusServiceUnavailable)
		out, err := f.run(t, "login", "--email", clientEmail, "--password", password)
		require.NoError(t, err)
		require.Contains(t, out, "You are logged in as Cara Client")
		require.Equal(t, 1, f.backend.Calls("/api/csrf/"))
	})
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	out, err := f.run(t, "logout")
	require.NoError(t, err)
	require.Contains(t, out, "Logout was successful.")

	_, err = f.run(t, "requests", "list")
	require.ErrorContains(t, err, "not logged in")
}

func TestSessionExpiry(t *testing.T) {
	t.Run("an expired access token is refreshed on restore", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.backend.ExpireAccessTokens()

		out, err := f.run(t, "whoami", "--output", "json")
		require.NoError(t, err)
		require.Contains(t, out, `"email": "client@example.com"`)
		require.Equal(t, 1, f.backend.Calls("/auth/jwt/refresh/"))
	})

	t.Run("a revoked refresh token signs the user out", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t)
		f.backend.ExpireAccessTokens()
		f.backend.RevokeRefreshTokens()

		_, err := f.run(t, "requests", "list")
		require.ErrorContains(t, err, "not logged in")

		entries, err := os.ReadDir(f.home)
		require.NoError(t, err)
		for _, e := range entries {
			require.NotEqual(t, "authTokens.json", e.Name())
		}
	})
}

func TestServices(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.AddService(services.Service{Name: "Network penetration test", Price: 999})
	f.login(t)

	out, err := f.run(t, "services", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Network penetration test")
	require.Contains(t, out, "999.00")

	_, err = f.run(t, "services", "list", "--output", "yaml")
	require.ErrorContains(t, err, "unknown output format")
}

func TestRequests(t *testing.T) {
	t.Run("list shows the next step", func(t *testing.T) {
		f := setupTestFixture(t)
		approved := time.Now().UTC()
		f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusPendingApproval})
		f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Cloud review", Status: servicerequests.StatusAwaitingPayment, ApprovedAt: &approved})
		f.login(t)

		out, err := f.run(t, "requests", "list")
		require.NoError(t, err)
		require.Contains(t, out, "PENDING APPROVAL")
		require.Contains(t, out, "withdraw")
		require.Contains(t, out, "pay in the portal")
	})

	t.Run("withdraw", func(t *testing.T) {
		f := setupTestFixture(t)
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusPendingApproval})
		f.login(t)

		_, err := f.run(t, "requests", "withdraw")
		require.Error(t, err)

		_, err = f.run(t, "requests", "withdraw", "abc")
		require.ErrorContains(t, err, "invalid request ID")

		_, err = f.run(t, "requests", "withdraw", itoa(req.ID))
		require.NoError(t, err)
		got, _ := f.backend.Request(req.ID)
		require.Equal(t, servicerequests.StatusWithdrawn, got.Status)

		_, err = f.run(t, "requests", "withdraw", itoa(req.ID))
		require.ErrorContains(t, err, "Only requests pending approval can be withdrawn.")
	})

	t.Run("report", func(t *testing.T) {
		f := setupTestFixture(t)
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusInProgress})
		f.backend.AttachReport(req.ID, "findings.pdf", []byte("%PDF-1.4 findings"))
		f.login(t)

		dest := filepath.Join(t.TempDir(), "out.pdf")
		out, err := f.run(t, "requests", "report", "--out", dest, itoa(req.ID))
		require.NoError(t, err)
		require.Contains(t, out, dest)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		require.Equal(t, "%PDF-1.4 findings", string(data))
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
