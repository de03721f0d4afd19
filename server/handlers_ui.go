package server

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-security-portal/payment"
	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/jrsteele09/go-security-portal/services"
	"github.com/rs/zerolog/log"
)

// pathID parses a numeric path segment such as {requestId}
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// DashboardHandler shows the client's request counters
func (s *Server) DashboardHandler() http.HandlerFunc {
	tmpl := mustParsePage("dashboard.html")
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := portalSession(r).Client.RequestStats(r.Context())
		if err != nil {
			handleAPIError(w, r, err, RouteHome)
			return
		}
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{Title: "Dashboard", ActivePage: "dashboard", Data: stats})
	}
}

// RequestServiceHandler lists the service catalogue
func (s *Server) RequestServiceHandler() http.HandlerFunc {
	tmpl := mustParsePage("request_service.html")
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := portalSession(r).Client.ListServices(r.Context())
		if err != nil {
			handleAPIError(w, r, err, RouteDashboard)
			return
		}
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{Title: "Request a service", ActivePage: "request-service", Data: list})
	}
}

// ServiceRequestPageData backs the new request form
type ServiceRequestPageData struct {
	Service *services.Service
	Draft   servicerequests.Draft
}

// ServiceRequestGetHandler renders the request form for one catalogue entry
func (s *Server) ServiceRequestGetHandler() http.HandlerFunc {
	tmpl := mustParsePage("service_request.html")
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "serviceId")
		if err != nil {
			redirectWithError(w, r, RouteRequestService, "Unknown service")
			return
		}
		svc, err := portalSession(r).Client.GetService(r.Context(), id)
		if err != nil {
			handleAPIError(w, r, err, RouteRequestService)
			return
		}
		q := r.URL.Query()
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{
			Title:      svc.Name,
			ActivePage: "request-service",
			Data: ServiceRequestPageData{
				Service: svc,
				Draft:   servicerequests.Draft{ServiceID: id, URL: q.Get("url"), Roles: q.Get("roles"), Notes: q.Get("notes")},
			},
		})
	}
}

// ServiceRequestPostHandler submits a new request. Credentials are never echoed back into a URL.
func (s *Server) ServiceRequestPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "serviceId")
		if err != nil {
			redirectWithError(w, r, RouteRequestService, "Unknown service")
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		draft := servicerequests.Draft{
			ServiceID:   id,
			URL:         strings.TrimSpace(r.FormValue("url")),
			Roles:       strings.TrimSpace(r.FormValue("roles")),
			Notes:       strings.TrimSpace(r.FormValue("notes")),
			Credentials: r.FormValue("credentials"),
		}

		retry := r.URL.Path
		retry = withQuery(retry, "url", draft.URL)
		retry = withQuery(retry, "roles", draft.Roles)
		retry = withQuery(retry, "notes", draft.Notes)

		if err := draft.Validate(); err != nil {
			redirectWithError(w, r, retry, err.Error())
			return
		}
		if _, err := portalSession(r).Client.CreateServiceRequest(r.Context(), draft); err != nil {
			handleAPIError(w, r, err, retry)
			return
		}
		redirectWithNotice(w, r, RouteMyRequests, "Service request submitted successfully")
	}
}

// requestRow is one line of a request table with its actions worked out
type requestRow struct {
	servicerequests.Request
	Withdrawable bool
	Payable      bool
	TimeLeft     time.Duration
	Downloadable bool
}

func requestRows(list []servicerequests.Request, now time.Time) []requestRow {
	rows := make([]requestRow, 0, len(list))
	for i := range list {
		req := &list[i]
		rows = append(rows, requestRow{
			Request:      *req,
			Withdrawable: req.CanWithdraw(),
			Payable:      req.CanPay(now),
			TimeLeft:     req.PaymentTimeLeft(now),
			Downloadable: req.HasReport(),
		})
	}
	return rows
}

// MyRequestsHandler lists the client's requests with withdraw, pay and report actions
func (s *Server) MyRequestsHandler() http.HandlerFunc {
	tmpl := mustParsePage("my_requests.html")
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := portalSession(r).Client.ListServiceRequests(r.Context())
		if err != nil {
			handleAPIError(w, r, err, RouteDashboard)
			return
		}
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{
			Title:      "My requests",
			ActivePage: "my-requests",
			Data:       requestRows(list, time.Now()),
		})
	}
}

// WithdrawRequestHandler withdraws a request still pending approval
func (s *Server) WithdrawRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "requestId")
		if err != nil {
			redirectWithError(w, r, RouteMyRequests, "Unknown request")
			return
		}
		if err := portalSession(r).Client.WithdrawServiceRequest(r.Context(), id); err != nil {
			handleAPIError(w, r, err, RouteMyRequests)
			return
		}
		redirectWithNotice(w, r, RouteMyRequests, "Service request withdrawn")
	}
}

// findRequest looks a request up among those visible to the caller
func findRequest(list []servicerequests.Request, id int64) *servicerequests.Request {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}

// DownloadReportHandler streams a completed request's report through the portal, so the
// report link is fetched with the session's bearer token
func (s *Server) DownloadReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "requestId")
		if err != nil {
			redirectWithError(w, r, RouteMyRequests, "Unknown request")
			return
		}
		client := portalSession(r).Client
		list, err := client.ListServiceRequests(r.Context())
		if err != nil {
			handleAPIError(w, r, err, RouteMyRequests)
			return
		}
		req := findRequest(list, id)
		if req == nil || !req.HasReport() {
			redirectWithError(w, r, RouteMyRequests, "No report is available for this request")
			return
		}

		report, err := client.DownloadReport(r.Context(), req)
		if err != nil {
			handleAPIError(w, r, err, RouteMyRequests)
			return
		}
		writeReport(w, report)
	}
}

func writeReport(w http.ResponseWriter, report *servicerequests.Report) {
	ctype := report.ContentType
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Data)))
	if _, err := w.Write(report.Data); err != nil {
		log.Err(err).Msg("Failed to stream report")
	}
}

// PayHandler asks the backend for the gateway fields and hands the browser an auto-submitting
// form; the gateway itself is never called from the portal
func (s *Server) PayHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "requestId")
		if err != nil {
			redirectWithError(w, r, RouteMyRequests, "Unknown request")
			return
		}
		fields, err := portalSession(r).Client.InitiatePayment(r.Context(), id)
		if err != nil {
			handleAPIError(w, r, err, RouteMyRequests)
			return
		}
		form, err := payment.NewForm(fields, s.config.GetPaymentMode())
		if err != nil {
			log.Err(err).Int64("request_id", id).Msg("Unusable payment fields")
			redirectWithError(w, r, RouteMyRequests, "Payment could not be started. Please try again.")
			return
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		if err := form.Render(w); err != nil {
			log.Err(err).Msg("Failed to render payment form")
		}
	}
}

// PaymentResultPageData is shown after the gateway returns
type PaymentResultPageData struct {
	Success bool
	TxnID   string
}

// PaymentResultHandler renders the payment outcome page
func (s *Server) PaymentResultHandler(success bool) http.HandlerFunc {
	tmpl := mustParsePage("payment_result.html")
	title := "Payment failed"
	if success {
		title = "Payment successful"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{
			Title:      title,
			ActivePage: "my-requests",
			Data:       PaymentResultPageData{Success: success, TxnID: r.URL.Query().Get("txnid")},
		})
	}
}

// PaymentCallbackHandler turns the gateway's cross-site POST into a same-site GET, so the
// browser presents its SameSite=Lax session cookie to the result page
func (s *Server) PaymentCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Path
		if err := r.ParseForm(); err == nil && r.FormValue("txnid") != "" {
			target = withQuery(target, "txnid", r.FormValue("txnid"))
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}
