// Package fakebackend is an in-process stand in for the portal's REST API. It issues real HS256
// JWT pairs, rotates refresh tokens, and can be scripted to fail specific endpoints.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-security-portal/services"
	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/jrsteele09/go-security-portal/tokens"
	"github.com/jrsteele09/go-security-portal/users"
)

const CSRFToken = "fake-csrf-token"

// Recorded is a request as the backend saw it
type Recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type account struct {
	password string
	active   bool
	user     users.User
}

type storedReport struct {
	fileName string
	data     []byte
}

type Backend struct {
	server *httptest.Server
	secret []byte

	mu       sync.Mutex
	accounts map[string]*account // email -> account
	access   map[string]int64    // access token -> user id
	refresh  map[string]int64    // refresh token -> user id
	scripts  map[string][]int
	calls    map[string]int
	recorded map[string][]Recorded
	nextID   int64

	services []services.Service
	requests []servicerequests.Request
	owners   map[int64]int64 // request id -> client user id
	reports  map[int64]storedReport
	admins   []users.Admin

	// RefreshDelay holds every refresh call before it answers
	RefreshDelay time.Duration
}

// New starts a backend that is closed when the test ends
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		secret:   []byte("fake-backend-secret"),
		accounts: make(map[string]*account),
		access:   make(map[string]int64),
		refresh:  make(map[string]int64),
		scripts:  make(map[string][]int),
		calls:    make(map[string]int),
		recorded: make(map[string][]Recorded),
		owners:   make(map[int64]int64),
		reports:  make(map[int64]storedReport),
		nextID:   100,
	}
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(b.server.Close)
	return b
}

func (b *Backend) URL() string {
	return b.server.URL
}

// AddUser registers an active account and returns its profile with the assigned id
func (b *Backend) AddUser(email, password string, user users.User) users.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	user.ID = b.nextID
	user.Email = email
	b.accounts[strings.ToLower(email)] = &account{password: password, active: true, user: user}
	if user.IsStaff {
		b.admins = append(b.admins, users.Admin{ID: user.ID, Email: email, FirstName: user.FirstName, LastName: user.LastName, GroupName: strings.Join(user.Groups, ",")})
	}
	return user
}

// Issue mints a valid pair for an existing account without a credential exchange
func (b *Backend) Issue(email string) tokens.Pair {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts[strings.ToLower(email)]
	if acc == nil {
		panic("fakebackend: unknown account " + email)
	}
	return b.issueLocked(acc.user)
}

// ExpireAccessTokens makes every issued access token answer 401
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]int64)
}

// RevokeRefreshTokens makes every outstanding refresh token unusable
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = make(map[string]int64)
}

// Script makes the next calls to path answer with the given statuses, in order. A 2xx status
// lets the call through to the normal handler.
func (b *Backend) Script(path string, statuses ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[path] = append(b.scripts[path], statuses...)
}

// Calls counts the requests made to path
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// Requests returns what was sent to path
func (b *Backend) Requests(path string) []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Recorded(nil), b.recorded[path]...)
}

// AddService seeds the catalogue
func (b *Backend) AddService(svc services.Service) services.Service {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	svc.ID = b.nextID
	b.services = append(b.services, svc)
	return svc
}

// AddRequest seeds a service request owned by the client with clientID
func (b *Backend) AddRequest(clientID int64, req servicerequests.Request) servicerequests.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	req.ID = b.nextID
	if req.RequestDate.IsZero() {
		req.RequestDate = time.Now().UTC()
	}
	b.requests = append(b.requests, req)
	b.owners[req.ID] = clientID
	return req
}

// Request returns the current state of a seeded or created request
func (b *Backend) Request(id int64) (servicerequests.Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.requests {
		if r.ID == id {
			return r, true
		}
	}
	return servicerequests.Request{}, false
}

// AttachReport stores a report for a request and marks it completed
func (b *Backend) AttachReport(id int64, fileName string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attachReportLocked(id, fileName, data)
}

func (b *Backend) attachReportLocked(id int64, fileName string, data []byte) {
	b.reports[id] = storedReport{fileName: fileName, data: data}
	link := fmt.Sprintf("%s/media/reports/%d/", b.server.URL, id)
	for i := range b.requests {
		if b.requests[i].ID == id {
			b.requests[i].ReportFile = &link
			b.requests[i].ReportURL = &link
			b.requests[i].Status = servicerequests.StatusCompleted
		}
	}
}

func (b *Backend) issueLocked(user users.User) tokens.Pair {
	now := time.Now()
	access, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"token_type":   "access",
		"jti":          uuid.NewString(),
		"user_id":      user.ID,
		"email":        user.Email,
		"username":     user.Username,
		"first_name":   user.FirstName,
		"last_name":    user.LastName,
		"is_staff":     user.IsStaff,
		"is_superuser": user.IsSuperuser,
		"groups":       user.Groups,
		"iat":          now.Unix(),
		"exp":          now.Add(5 * time.Minute).Unix(),
	}).SignedString(b.secret)
	if err != nil {
		panic(err)
	}
	refresh := uuid.NewString()
	b.access[access] = user.ID
	b.refresh[refresh] = user.ID
	return tokens.Pair{Access: access, Refresh: refresh}
}

func (b *Backend) userByIDLocked(id int64) *account {
	for _, acc := range b.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
