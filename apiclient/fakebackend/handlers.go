package fakebackend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-security-portal/services"
	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/jrsteele09/go-security-portal/users"
)

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/csrf/", b.handleCSRF)
	mux.HandleFunc("POST /auth/jwt/create/", b.handleCreateToken)
	mux.HandleFunc("POST /auth/jwt/refresh/", b.handleRefresh)
	mux.HandleFunc("POST /auth/users/", b.handleRegister)
	mux.HandleFunc("POST /auth/users/activation/", b.handleNoContent)
	mux.HandleFunc("POST /api/set-initial-password/{uid}/{token}/", b.handleNoContent)

	mux.HandleFunc("GET /auth/users/me/", b.authed(b.handleMe))
	mux.HandleFunc("POST /auth/users/set_password/", b.authed(b.handleAuthedNoContent))
	mux.HandleFunc("POST /api/profile/update/initiate/", b.authed(b.handleAuthedNoContent))
	mux.HandleFunc("POST /api/profile/update/verify/", b.authed(b.handleAuthedNoContent))
	mux.HandleFunc("POST /api/admin/profile/initiate-update/", b.staff(b.handleAuthedNoContent))
	mux.HandleFunc("POST /api/admin/profile/verify-update/", b.staff(b.handleAuthedNoContent))

	mux.HandleFunc("GET /api/services/", b.authed(b.handleListServices))
	mux.HandleFunc("GET /api/services/{id}/", b.authed(b.handleGetService))
	mux.HandleFunc("POST /api/services/", b.staff(b.handleSaveService))
	mux.HandleFunc("PATCH /api/services/{id}/", b.staff(b.handleSaveService))
	mux.HandleFunc("DELETE /api/services/{id}/", b.staff(b.handleDeleteService))

	mux.HandleFunc("GET /api/service-requests/", b.authed(b.handleListRequests))
	mux.HandleFunc("POST /api/service-requests/", b.authed(b.handleCreateRequest))
	mux.HandleFunc("GET /api/service-requests/stats/", b.authed(b.handleStats))
	mux.HandleFunc("POST /api/service-requests/{id}/withdraw/", b.authed(b.handleWithdraw))
	mux.HandleFunc("POST /api/service-requests/{id}/pay/", b.authed(b.handlePay))
	mux.HandleFunc("POST /api/service-requests/{id}/update_status/", b.staff(b.handleUpdateStatus))
	mux.HandleFunc("POST /api/service-requests/{id}/assign/", b.staff(b.handleAssign))
	mux.HandleFunc("POST /api/service-requests/{id}/upload_report/", b.staff(b.handleUploadReport))
	mux.HandleFunc("GET /media/reports/{id}/", b.authed(b.handleReport))

	mux.HandleFunc("GET /api/admin/stats/", b.staff(b.handleAdminStats))
	mux.HandleFunc("GET /api/admin/status-distribution/", b.staff(b.handleDistribution))
	mux.HandleFunc("GET /api/admins/", b.staff(b.handleListAdmins))
	mux.HandleFunc("POST /api/admins/", b.staff(b.handleCreateAdmin))
	mux.HandleFunc("DELETE /api/admins/{id}/", b.staff(b.handleDeleteAdmin))
	mux.HandleFunc("GET /api/admin/list-for-assignment/", b.staff(b.handleListAdmins))

	return b.record(mux)
}

// record counts and captures every call, then applies any scripted status for the path
func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		b.mu.Lock()
		path := r.URL.Path
		b.calls[path]++
		b.recorded[path] = append(b.recorded[path], Recorded{Method: r.Method, Path: path, Header: r.Header.Clone(), Body: body})
		status := 0
		if script := b.scripts[path]; len(script) > 0 {
			status, b.scripts[path] = script[0], script[1:]
		}
		b.mu.Unlock()

		if status != 0 && (status < 200 || status > 299) {
			writeDetail(w, status, "scripted failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, acc *account)

// authed resolves the bearer token. The handler runs with b.mu held.
func (b *Backend) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		userID, ok := b.access[raw]
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		acc := b.userByIDLocked(userID)
		if acc == nil {
			writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}
		next(w, r, acc)
	}
}

func (b *Backend) staff(next authedHandler) http.HandlerFunc {
	return b.authed(func(w http.ResponseWriter, r *http.Request, acc *account) {
		if !acc.user.IsStaff {
			writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		next(w, r, acc)
	})
}

func (b *Backend) handleCSRF(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: CSRFToken, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]string{"detail": "CSRF cookie set"})
}

func (b *Backend) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accounts[strings.ToLower(creds.Email)]
	if acc == nil || acc.password != creds.Password || !acc.active {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	writeJSON(w, http.StatusOK, b.issueLocked(acc.user))
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}
	if b.RefreshDelay > 0 {
		time.Sleep(b.RefreshDelay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.refresh[body.Refresh]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is blacklisted", "code": "token_not_valid"})
		return
	}
	delete(b.refresh, body.Refresh)
	acc := b.userByIDLocked(userID)
	if acc == nil {
		writeDetail(w, http.StatusUnauthorized, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, b.issueLocked(acc.user))
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg users.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[strings.ToLower(reg.Email)]; exists {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"user with this email already exists."}})
		return
	}
	b.nextID++
	user := users.User{ID: b.nextID, Email: reg.Email, FirstName: reg.FirstName, LastName: reg.LastName}
	b.accounts[strings.ToLower(reg.Email)] = &account{password: reg.Password, user: user}
	writeJSON(w, http.StatusCreated, user)
}

func (b *Backend) handleNoContent(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleAuthedNoContent(w http.ResponseWriter, r *http.Request, acc *account) {
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request, acc *account) {
	writeJSON(w, http.StatusOK, acc.user)
}

func (b *Backend) handleListServices(w http.ResponseWriter, r *http.Request, acc *account) {
	writeJSON(w, http.StatusOK, append([]services.Service{}, b.services...))
}

func (b *Backend) handleGetService(w http.ResponseWriter, r *http.Request, acc *account) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for _, svc := range b.services {
		if svc.ID == id {
			writeJSON(w, http.StatusOK, svc)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "No Service matches the given query.")
}

func (b *Backend) handleSaveService(w http.ResponseWriter, r *http.Request, acc *account) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeDetail(w, http.StatusUnsupportedMediaType, "expected multipart form data")
		return
	}
	price, _ := strconv.ParseFloat(r.FormValue("price"), 64)
	svc := services.Service{Name: r.FormValue("name"), Description: r.FormValue("description"), Price: price}
	if _, header, err := r.FormFile("image"); err == nil {
		image := fmt.Sprintf("%s/media/services/%s", b.server.URL, header.Filename)
		svc.Image = &image
	}

	if r.Method == http.MethodPost {
		b.nextID++
		svc.ID = b.nextID
		b.services = append(b.services, svc)
		writeJSON(w, http.StatusCreated, svc)
		return
	}
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for i := range b.services {
		if b.services[i].ID == id {
			svc.ID = id
			b.services[i] = svc
			writeJSON(w, http.StatusOK, svc)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "No Service matches the given query.")
}

func (b *Backend) handleDeleteService(w http.ResponseWriter, r *http.Request, acc *account) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for i := range b.services {
		if b.services[i].ID == id {
			b.services = append(b.services[:i], b.services[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "No Service matches the given query.")
}

// visibleLocked applies the backend's row filter: clients see their own requests, staff see all
func (b *Backend) visibleLocked(acc *account) []servicerequests.Request {
	list := []servicerequests.Request{}
	for _, req := range b.requests {
		if acc.user.IsStaff || b.owners[req.ID] == acc.user.ID {
			list = append(list, req)
		}
	}
	return list
}

func (b *Backend) findLocked(r *http.Request, acc *account) *servicerequests.Request {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for i := range b.requests {
		if b.requests[i].ID == id && (acc.user.IsStaff || b.owners[id] == acc.user.ID) {
			return &b.requests[i]
		}
	}
	return nil
}

func (b *Backend) handleListRequests(w http.ResponseWriter, r *http.Request, acc *account) {
	writeJSON(w, http.StatusOK, b.visibleLocked(acc))
}

func (b *Backend) handleCreateRequest(w http.ResponseWriter, r *http.Request, acc *account) {
	var draft servicerequests.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed body")
		return
	}
	var svc *services.Service
	for i := range b.services {
		if b.services[i].ID == draft.ServiceID {
			svc = &b.services[i]
		}
	}
	if svc == nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"service_id": {"Invalid service."}})
		return
	}
	b.nextID++
	req := servicerequests.Request{
		ID:          b.nextID,
		Client:      acc.user.Email,
		ServiceName: svc.Name,
		Status:      servicerequests.StatusPendingApproval,
		RequestDate: time.Now().UTC(),
		URL:         draft.URL,
		Roles:       draft.Roles,
		Notes:       draft.Notes,
	}
	b.requests = append(b.requests, req)
	b.owners[req.ID] = acc.user.ID
	writeJSON(w, http.StatusCreated, req)
}

func (b *Backend) handleStats(w http.ResponseWriter, r *http.Request, acc *account) {
	var stats servicerequests.Stats
	for _, req := range b.visibleLocked(acc) {
		stats.TotalRequests++
		switch req.Status {
		case servicerequests.StatusCompleted:
			stats.Completed++
		case servicerequests.StatusInProgress:
			stats.InProgress++
		case servicerequests.StatusPendingApproval:
			stats.PendingApproval++
		case servicerequests.StatusAwaitingPayment:
			stats.AwaitingPayment++
		case servicerequests.StatusRejected:
			stats.Rejected++
		case servicerequests.StatusWithdrawn:
			stats.Withdrawn++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (b *Backend) handleWithdraw(w http.ResponseWriter, r *http.Request, acc *account) {
	req := b.findLocked(r, acc)
	if req == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if req.Status != servicerequests.StatusPendingApproval {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Only requests pending approval can be withdrawn."})
		return
	}
	req.Status = servicerequests.StatusWithdrawn
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (b *Backend) handlePay(w http.ResponseWriter, r *http.Request, acc *account) {
	req := b.findLocked(r, acc)
	if req == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Service request not found."})
		return
	}
	if req.Status != servicerequests.StatusAwaitingPayment {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "This request is not awaiting payment."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":         "fake-merchant",
		"txnid":       fmt.Sprintf("txn%d", req.ID),
		"amount":      499,
		"productinfo": req.ServiceName,
		"firstname":   acc.user.FirstName,
		"email":       acc.user.Email,
		"surl":        b.server.URL + "/api/payu/success/",
		"furl":        b.server.URL + "/api/payu/failure/",
		"hash":        "fakehash",
		"payu_mode":   "TEST",
	})
}

func (b *Backend) handleUpdateStatus(w http.ResponseWriter, r *http.Request, acc *account) {
	var body struct {
		Status servicerequests.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed body")
		return
	}
	req := b.findLocked(r, acc)
	if req == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	req.Status = body.Status
	if body.Status == servicerequests.StatusAwaitingPayment {
		now := time.Now().UTC()
		req.ApprovedAt = &now
	}
	writeJSON(w, http.StatusOK, req)
}

func (b *Backend) handleAssign(w http.ResponseWriter, r *http.Request, acc *account) {
	var body struct {
		AdminID int64 `json:"admin_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed body")
		return
	}
	req := b.findLocked(r, acc)
	admin := b.userByIDLocked(body.AdminID)
	if req == nil || admin == nil || !admin.user.IsStaff {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request or admin."})
		return
	}
	req.AssignedTo = &admin.user.ID
	email := admin.user.Email
	req.AssignedToEmail = &email
	writeJSON(w, http.StatusOK, req)
}

func (b *Backend) handleUploadReport(w http.ResponseWriter, r *http.Request, acc *account) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeDetail(w, http.StatusUnsupportedMediaType, "expected multipart form data")
		return
	}
	file, header, err := r.FormFile("report_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"report_file": {"No file was submitted."}})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	req := b.findLocked(r, acc)
	if req == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	b.attachReportLocked(req.ID, header.Filename, data)
	writeJSON(w, http.StatusOK, map[string]string{"status": "report uploaded"})
}

func (b *Backend) handleReport(w http.ResponseWriter, r *http.Request, acc *account) {
	req := b.findLocked(r, acc)
	if req == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	report, ok := b.reports[req.ID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "No report.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.fileName))
	_, _ = w.Write(report.data)
}

func (b *Backend) handleAdminStats(w http.ResponseWriter, r *http.Request, acc *account) {
	stats := servicerequests.AdminStats{TotalRequests: len(b.requests), TotalUsers: len(b.accounts)}
	for _, req := range b.requests {
		switch req.Status {
		case servicerequests.StatusAwaitingPayment, servicerequests.StatusInProgress:
			stats.Approved++
		case servicerequests.StatusCompleted:
			stats.Approved++
			stats.Completed++
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (b *Backend) handleDistribution(w http.ResponseWriter, r *http.Request, acc *account) {
	counts := map[servicerequests.Status]int{}
	order := []servicerequests.Status{}
	for _, req := range b.requests {
		if counts[req.Status] == 0 {
			order = append(order, req.Status)
		}
		counts[req.Status]++
	}
	dist := []servicerequests.StatusCount{}
	for _, status := range order {
		dist = append(dist, servicerequests.StatusCount{Status: status, Count: counts[status]})
	}
	writeJSON(w, http.StatusOK, dist)
}

func (b *Backend) handleListAdmins(w http.ResponseWriter, r *http.Request, acc *account) {
	writeJSON(w, http.StatusOK, append([]users.Admin{}, b.admins...))
}

func (b *Backend) handleCreateAdmin(w http.ResponseWriter, r *http.Request, acc *account) {
	var admin users.NewAdmin
	if err := json.NewDecoder(r.Body).Decode(&admin); err != nil {
		writeDetail(w, http.StatusBadRequest, "malformed body")
		return
	}
	if _, exists := b.accounts[strings.ToLower(admin.Email)]; exists {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"user with this email already exists."}})
		return
	}
	b.nextID++
	user := users.User{ID: b.nextID, Email: admin.Email, FirstName: admin.FirstName, LastName: admin.LastName, IsStaff: true, Groups: []string{string(admin.Group)}}
	b.accounts[strings.ToLower(admin.Email)] = &account{user: user}
	created := users.Admin{ID: user.ID, Email: user.Email, FirstName: user.FirstName, LastName: user.LastName, GroupName: string(admin.Group)}
	b.admins = append(b.admins, created)
	writeJSON(w, http.StatusCreated, created)
}

func (b *Backend) handleDeleteAdmin(w http.ResponseWriter, r *http.Request, acc *account) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	for i := range b.admins {
		if b.admins[i].ID == id {
			b.admins = append(b.admins[:i], b.admins[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}
