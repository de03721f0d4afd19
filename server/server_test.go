package server_test

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-security-portal/apiclient/fakebackend"
	"github.com/jrsteele09/go-security-portal/internal/config"
	"github.com/jrsteele09/go-security-portal/server"
	"github.com/jrsteele09/go-security-portal/server/portalsession"
	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/jrsteele09/go-security-portal/services"
	"github.com/jrsteele09/go-security-portal/tokens/memorybackend"
	"github.com/jrsteele09/go-security-portal/users"
	"github.com/stretchr/testify/require"
)

const (
	clientEmail = "client@example.com"
	staffEmail  = "staff@example.com"
	password    = "Secret123"
)

type testFixture struct {
	backend  *fakebackend.Backend
	backends *memorybackend.Repo
	opts     portalsession.Options
	client   users.User
	staff    users.User
	service  services.Service
	ts       *httptest.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("RESTORE_WAIT", "2s")

	backend := fakebackend.New(t)
	f := &testFixture{
		backend:  backend,
		backends: memorybackend.NewRepo(),
		client:   backend.AddUser(clientEmail, password, users.User{FirstName: "Cara", LastName: "Client"}),
		staff:    backend.AddUser(staffEmail, password, users.User{FirstName: "Sam", IsStaff: true, Groups: []string{string(users.GroupFullAccessAdmin)}}),
		service:  backend.AddService(services.Service{Name: "Web application test", Price: 499}),
		opts: portalsession.Options{
			APIBaseURL: backend.URL(),
			APITimeout: 5 * time.Second,
			MaxAge:     time.Hour,
		},
	}
	f.ts = f.start(t)
	return f
}

// start serves a portal over the fixture's token backends, as a fresh process would
func (f *testFixture) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := server.New(config.New(), portalsession.NewInMemoryRepo(f.backends, f.opts))
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

// browser keeps cookies and reports redirects instead of following them
func browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type response struct {
	status   int
	location string
	header   http.Header
	body     string
}

func do(t *testing.T, c *http.Client, req *http.Request) response {
	t.Helper()
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), header: resp.Header, body: string(body)}
}

func (f *testFixture) get(t *testing.T, c *http.Client, path string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.ts.URL+path, nil)
	require.NoError(t, err)
	return do(t, c, req)
}

func (f *testFixture) post(t *testing.T, c *http.Client, path string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, c, req)
}

// login signs a fresh browser in through the given login page
func (f *testFixture) login(t *testing.T, loginPath, email string) *http.Client {
	t.Helper()
	c := browser(t)
	resp := f.post(t, c, loginPath, url.Values{"email": {email}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.NotContains(t, resp.location, "error=")
	return c
}

func query(t *testing.T, location string) url.Values {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	return u.Query()
}

func TestNew(t *testing.T) {
	t.Run("requires a session repo", func(t *testing.T) {
		_, err := server.New(config.New(), nil)
		require.Error(t, err)
	})

	t.Run("registers the client and staff areas", func(t *testing.T) {
		f := setupTestFixture(t)
		srv, err := server.New(config.New(), portalsession.NewInMemoryRepo(f.backends, f.opts))
		require.NoError(t, err)
		routes := srv.Routes()
		require.Contains(t, routes, "GET /dashboard")
		require.Contains(t, routes, "POST /admin/requests/{requestId}/status")
		require.Contains(t, routes, "GET /metrics")
	})
}

func TestGuards(t *testing.T) {
	t.Run("anonymous visitors are sent to the client login with next", func(t *testing.T) {
		f := setupTestFixture(t)
		resp := f.get(t, browser(t), "/my-requests?page=2")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.Equal(t, "/login?next=%2Fmy-requests%3Fpage%3D2", resp.location)
	})

	t.Run("anonymous visitors to admin pages are sent to the admin login", func(t *testing.T) {
		f := setupTestFixture(t)
		resp := f.get(t, browser(t), "/admin/requests")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.Equal(t, "/admin/login?next=%2Fadmin%2Frequests", resp.location)
	})

	t.Run("clients are sent to their dashboard from admin pages", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)
		resp := f.get(t, c, "/admin/dashboard")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.Equal(t, "/dashboard", resp.location)
	})

	t.Run("htmx requests get an HX-Redirect", func(t *testing.T) {
		f := setupTestFixture(t)
		req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/dashboard", nil)
		require.NoError(t, err)
		req.Header.Set("HX-Request", "true")
		resp := do(t, browser(t), req)
		require.Equal(t, http.StatusNoContent, resp.status)
		require.Equal(t, "/login?next=%2Fdashboard", resp.header.Get("HX-Redirect"))
	})

	t.Run("guards never call the backend", func(t *testing.T) {
		f := setupTestFixture(t)
		f.get(t, browser(t), "/dashboard")
		f.get(t, browser(t), "/admin/dashboard")
		require.Equal(t, 0, f.backend.Calls("/api/service-requests/stats/"))
		require.Equal(t, 0, f.backend.Calls("/auth/users/me/"))
	})
}

func TestLogin(t *testing.T) {
	t.Run("client login lands on the dashboard", func(t *testing.T) {
		f := setupTestFixture(t)
		c := browser(t)
		resp := f.post(t, c, "/login", url.Values{"email": {clientEmail}, "password": {password}})
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.Equal(t, "/dashboard", resp.location)

		resp = f.get(t, c, "/dashboard")
		require.Equal(t, http.StatusOK, resp.status)
		require.Contains(t, resp.body, "Welcome, Cara")
		require.Equal(t, "no-store", resp.header.Get("Cache-Control"))
	})

	t.Run("login honours a local next and ignores an external one", func(t *testing.T) {
		f := setupTestFixture(t)
		resp := f.post(t, browser(t), "/login", url.Values{"email": {clientEmail}, "password": {password}, "next": {"/my-requests"}})
		require.Equal(t, "/my-requests", resp.location)

		resp = f.post(t, browser(t), "/login", url.Values{"email": {clientEmail}, "password": {password}, "next": {"//evil.example.com"}})
		require.Equal(t, "/dashboard", resp.location)
	})

	t.Run("bad credentials return to the form with the email kept", func(t *testing.T) {
		f := setupTestFixture(t)
		resp := f.post(t, browser(t), "/login", url.Values{"email": {clientEmail}, "password": {"wrong"}, "next": {"/my-requests"}})
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.True(t, strings.HasPrefix(resp.location, "/login?"))
		q := query(t, resp.location)
		require.Equal(t, clientEmail, q.Get("email"))
		require.Equal(t, "/my-requests", q.Get("next"))
		require.NotEmpty(t, q.Get("error"))
	})

	t.Run("admin login refuses clients and leaves no session", func(t *testing.T) {
		f := setupTestFixture(t)
		c := browser(t)
		resp := f.post(t, c, "/admin/login", url.Values{"email": {clientEmail}, "password": {password}})
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.True(t, strings.HasPrefix(resp.location, "/admin/login?"))
		require.Equal(t, "You do not have permission to access the admin dashboard.", query(t, resp.location).Get("error"))

		resp = f.get(t, c, "/dashboard")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.Equal(t, "/login?next=%2Fdashboard", resp.location)
	})

	t.Run("staff login lands on the admin dashboard", func(t *testing.T) {
		f := setupTestFixture(t)
		c := browser(t)
		resp := f.post(t, c, "/admin/login", url.Values{"email": {staffEmail}, "password": {password}})
		require.Equal(t, "/admin/dashboard", resp.location)

		resp = f.get(t, c, "/admin/dashboard")
		require.Equal(t, http.StatusOK, resp.status)
	})

	t.Run("signed in users skip the login page", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)
		resp := f.get(t, c, "/login")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.Equal(t, "/dashboard", resp.location)

		// A client may still open the staff login
		resp = f.get(t, c, "/admin/login")
		require.Equal(t, http.StatusOK, resp.status)
	})
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	c := f.login(t, "/admin/login", staffEmail)
	require.Equal(t, 1, f.backends.Len())

	resp := f.post(t, c, "/logout", nil)
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Equal(t, "/admin/login", resp.location)
	require.Equal(t, 0, f.backends.Len())

	resp = f.get(t, c, "/admin/dashboard")
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Equal(t, "/admin/login?next=%2Fadmin%2Fdashboard", resp.location)
}

// sessionID is the portal session cookie the browser holds for the test server
func (f *testFixture) sessionID(t *testing.T, c *http.Client) string {
	t.Helper()
	u, err := url.Parse(f.ts.URL)
	require.NoError(t, err)
	for _, cookie := range c.Jar.Cookies(u) {
		if cookie.Name == "portalSessionId" {
			return cookie.Value
		}
	}
	return ""
}

// plant gives a browser the session cookie another browser holds
func (f *testFixture) plant(t *testing.T, c *http.Client, sessionID string) {
	t.Helper()
	u, err := url.Parse(f.ts.URL)
	require.NoError(t, err)
	c.Jar.SetCookies(u, []*http.Cookie{{Name: "portalSessionId", Value: sessionID, Path: "/"}})
}

func TestSessionFixation(t *testing.T) {
	t.Run("login issues a new session id", func(t *testing.T) {
		f := setupTestFixture(t)
		attacker := browser(t)
		f.get(t, attacker, "/login")
		planted := f.sessionID(t, attacker)
		require.NotEmpty(t, planted)

		victim := browser(t)
		f.plant(t, victim, planted)
		resp := f.post(t, victim, "/login", url.Values{"email": {clientEmail}, "password": {password}})
		require.Equal(t, "/dashboard", resp.location)
		require.NotEqual(t, planted, f.sessionID(t, victim))
		require.Equal(t, http.StatusOK, f.get(t, victim, "/dashboard").status)

		resp = f.get(t, attacker, "/dashboard")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.Equal(t, "/login?next=%2Fdashboard", resp.location)
	})

	t.Run("a second login replaces the signed in session", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)
		first := f.sessionID(t, c)

		resp := f.post(t, c, "/admin/login", url.Values{"email": {staffEmail}, "password": {password}})
		require.Equal(t, "/admin/dashboard", resp.location)
		require.NotEqual(t, first, f.sessionID(t, c))
		require.Equal(t, 1, f.backends.Len())
	})

	t.Run("an invented session id is replaced", func(t *testing.T) {
		f := setupTestFixture(t)
		planted := "11111111-2222-3333-4444-555555555555"
		c := browser(t)
		f.plant(t, c, planted)

		resp := f.get(t, c, "/dashboard")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.NotEqual(t, planted, f.sessionID(t, c))
		require.Equal(t, 0, f.backend.Calls("/auth/users/me/"))
	})
}

func TestSessionExpiry(t *testing.T) {
	t.Run("an expired access token is refreshed transparently", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)
		f.backend.ExpireAccessTokens()

		resp := f.get(t, c, "/my-requests")
		require.Equal(t, http.StatusOK, resp.status)
		require.Equal(t, 1, f.backend.Calls("/auth/jwt/refresh/"))
	})

	t.Run("a failed refresh sends the browser back to login", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)
		f.backend.ExpireAccessTokens()
		f.backend.RevokeRefreshTokens()

		resp := f.get(t, c, "/my-requests")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.True(t, strings.HasPrefix(resp.location, "/login?next=%2Fmy-requests&"))
		require.Equal(t, "Your session has expired. Please log in again.", query(t, resp.location).Get("error"))

		resp = f.get(t, c, "/dashboard")
		require.Equal(t, "/login?next=%2Fdashboard", resp.location)
	})

	t.Run("staff pages send an expired session to the admin login", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/admin/login", staffEmail)
		f.backend.ExpireAccessTokens()
		f.backend.RevokeRefreshTokens()

		resp := f.get(t, c, "/admin/services")
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.True(t, strings.HasPrefix(resp.location, "/admin/login?next=%2Fadmin%2Fservices&"))
	})
}

func TestRestart(t *testing.T) {
	t.Run("a signed in browser survives a restart", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)

		f.ts = f.start(t)
		resp := f.get(t, c, "/dashboard")
		require.Equal(t, http.StatusOK, resp.status)
		require.Contains(t, resp.body, "Welcome, Cara")
	})

	t.Run("a slow restore shows the placeholder instead of redirecting", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)

		t.Setenv("RESTORE_WAIT", "10ms")
		f.backend.ExpireAccessTokens()
		f.backend.RefreshDelay = 300 * time.Millisecond
		f.ts = f.start(t)

		resp := f.get(t, c, "/dashboard")
		require.Equal(t, http.StatusOK, resp.status)
		require.Contains(t, resp.body, "Loading")
		require.Equal(t, "no-store", resp.header.Get("Cache-Control"))

		require.Eventually(t, func() bool {
			resp := f.get(t, c, "/dashboard")
			return resp.status == http.StatusOK && strings.Contains(resp.body, "Welcome, Cara")
		}, 5*time.Second, 50*time.Millisecond)
	})
}

func TestClientRequests(t *testing.T) {
	t.Run("submitting a request", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)
		path := "/service-request/" + itoa(f.service.ID)

		resp := f.get(t, c, path)
		require.Equal(t, http.StatusOK, resp.status)
		require.Contains(t, resp.body, "Web application test")

		resp = f.post(t, c, path, url.Values{"url": {"https://app.example.com"}, "roles": {"admin"}, "credentials": {"admin:pw"}})
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.True(t, strings.HasPrefix(resp.location, "/my-requests?notice="))
	})

	t.Run("invalid drafts keep the fields but never the credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		c := f.login(t, "/login", clientEmail)
		path := "/service-request/" + itoa(f.service.ID)

		resp := f.post(t, c, path, url.Values{"url": {"https://app.example.com"}, "credentials": {"admin:pw"}})
		require.Equal(t, http.StatusSeeOther, resp.status)
		q := query(t, resp.location)
		require.Equal(t, "https://app.example.com", q.Get("url"))
		require.NotEmpty(t, q.Get("error"))
		require.NotContains(t, resp.location, "admin%3Apw")
	})

	t.Run("withdrawing a pending request", func(t *testing.T) {
		f := setupTestFixture(t)
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusPendingApproval})
		c := f.login(t, "/login", clientEmail)

		resp := f.post(t, c, "/my-requests/"+itoa(req.ID)+"/withdraw", nil)
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.True(t, strings.HasPrefix(resp.location, "/my-requests?notice="))

		got, ok := f.backend.Request(req.ID)
		require.True(t, ok)
		require.Equal(t, servicerequests.StatusWithdrawn, got.Status)
	})

	t.Run("downloading a report", func(t *testing.T) {
		f := setupTestFixture(t)
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusInProgress})
		f.backend.AttachReport(req.ID, "report.pdf", []byte("%PDF-1.4 findings"))
		c := f.login(t, "/login", clientEmail)

		resp := f.get(t, c, "/my-requests/"+itoa(req.ID)+"/report")
		require.Equal(t, http.StatusOK, resp.status)
		require.Equal(t, "%PDF-1.4 findings", resp.body)
		require.Contains(t, resp.header.Get("Content-Disposition"), "report.pdf")
	})

	t.Run("paying renders the gateway form", func(t *testing.T) {
		f := setupTestFixture(t)
		approved := time.Now().UTC()
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusAwaitingPayment, ApprovedAt: &approved})
		c := f.login(t, "/login", clientEmail)

		resp := f.get(t, c, "/pay/"+itoa(req.ID))
		require.Equal(t, http.StatusOK, resp.status)
		require.Contains(t, resp.body, "txn"+itoa(req.ID))
		require.Contains(t, resp.body, "fakehash")
	})

	t.Run("backend refusals come back as an error banner", func(t *testing.T) {
		f := setupTestFixture(t)
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusCompleted})
		c := f.login(t, "/login", clientEmail)

		resp := f.get(t, c, "/pay/"+itoa(req.ID))
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.True(t, strings.HasPrefix(resp.location, "/my-requests?"))
		require.NotEmpty(t, query(t, resp.location).Get("error"))
	})
}

func TestPaymentCallback(t *testing.T) {
	f := setupTestFixture(t)
	resp := f.post(t, browser(t), "/payment/success", url.Values{"txnid": {"txn42"}, "status": {"success"}})
	require.Equal(t, http.StatusSeeOther, resp.status)
	require.Equal(t, "/payment/success?txnid=txn42", resp.location)

	c := f.login(t, "/login", clientEmail)
	resp = f.get(t, c, "/payment/failure?txnid=txn42")
	require.Equal(t, http.StatusOK, resp.status)
	require.Contains(t, resp.body, "txn42")
}

func TestAdminRequests(t *testing.T) {
	t.Run("approving moves the request to awaiting payment", func(t *testing.T) {
		f := setupTestFixture(t)
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusPendingApproval})
		c := f.login(t, "/admin/login", staffEmail)

		resp := f.get(t, c, "/admin/requests")
		require.Equal(t, http.StatusOK, resp.status)

		resp = f.post(t, c, "/admin/requests/"+itoa(req.ID)+"/status", url.Values{"decision": {"approve"}})
		require.Equal(t, http.StatusSeeOther, resp.status)
		require.True(t, strings.HasPrefix(resp.location, "/admin/requests?notice="))

		got, _ := f.backend.Request(req.ID)
		require.Equal(t, servicerequests.StatusAwaitingPayment, got.Status)
		require.NotNil(t, got.ApprovedAt)
	})

	t.Run("unknown decisions are refused", func(t *testing.T) {
		f := setupTestFixture(t)
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusPendingApproval})
		c := f.login(t, "/admin/login", staffEmail)

		resp := f.post(t, c, "/admin/requests/"+itoa(req.ID)+"/status", url.Values{"decision": {"completed"}})
		require.NotEmpty(t, query(t, resp.location).Get("error"))
		got, _ := f.backend.Request(req.ID)
		require.Equal(t, servicerequests.StatusPendingApproval, got.Status)
	})

	t.Run("uploading a pdf report", func(t *testing.T) {
		f := setupTestFixture(t)
		req := f.backend.AddRequest(f.client.ID, servicerequests.Request{ServiceName: "Web application test", Status: servicerequests.StatusInProgress})
		c := f.login(t, "/admin/login", staffEmail)

		upload := func(name string) response {
			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			part, err := mw.CreateFormFile("report_file", name)
			require.NoError(t, err)
			_, _ = part.Write([]byte("%PDF-1.4"))
			require.NoError(t, mw.Close())

			httpReq, err := http.NewRequest(http.MethodPost, f.ts.URL+"/admin/requests/"+itoa(req.ID)+"/report", &buf)
			require.NoError(t, err)
			httpReq.Header.Set("Content-Type", mw.FormDataContentType())
			return do(t, c, httpReq)
		}

		resp := upload("findings.docx")
		require.NotEmpty(t, query(t, resp.location).Get("error"))

		resp = upload("findings.pdf")
		require.NotEmpty(t, query(t, resp.location).Get("notice"))
		got, _ := f.backend.Request(req.ID)
		require.True(t, got.HasReport())
	})
}

func TestStaticAndFallbacks(t *testing.T) {
	f := setupTestFixture(t)
	c := browser(t)

	resp := f.get(t, c, "/no/such/page")
	require.Equal(t, http.StatusNotFound, resp.status)

	resp = f.get(t, c, "/css/portal.css")
	require.Equal(t, http.StatusOK, resp.status)
	require.Contains(t, resp.header.Get("Content-Type"), "text/css")

	resp = f.get(t, c, "/")
	require.Equal(t, http.StatusOK, resp.status)

	resp = f.get(t, c, "/metrics")
	require.Equal(t, http.StatusOK, resp.status)
	require.Contains(t, resp.body, "secportal_guard_decisions_total")
}

func TestValidatePassword(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.post(t, browser(t), "/api/validate-password", url.Values{"password": {"short"}})
	require.Equal(t, http.StatusOK, resp.status)
	require.Contains(t, resp.body, "text-danger")

	resp = f.post(t, browser(t), "/api/validate-password", url.Values{"password": {"Str0ngEnough!"}})
	require.Contains(t, resp.body, "Strong password")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
