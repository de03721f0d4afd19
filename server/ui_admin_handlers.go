package server

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/jrsteele09/go-security-portal/services"
	"github.com/jrsteele09/go-security-portal/users"
	"golang.org/x/sync/errgroup"
)

const maxUploadSize = 32 << 20

// AdminDashboardPageData backs the admin dashboard
type AdminDashboardPageData struct {
	Stats        *servicerequests.AdminStats
	Distribution []servicerequests.StatusCount
}

// AdminDashboardHandler renders the admin counters and status distribution
func (s *Server) AdminDashboardHandler() http.HandlerFunc {
	tmpl := mustParsePage("admin_dashboard.html")
	return func(w http.ResponseWriter, r *http.Request) {
		client := portalSession(r).Client
		data := AdminDashboardPageData{}

		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			stats, err := client.AdminStats(ctx)
			data.Stats = stats
			return err
		})
		g.Go(func() error {
			dist, err := client.StatusDistribution(ctx)
			data.Distribution = dist
			return err
		})
		if err := g.Wait(); err != nil {
			handleAPIError(w, r, err, RouteHome)
			return
		}

		s.renderPage(w, r, tmpl, http.StatusOK, PageData{Title: "Admin dashboard", ActivePage: "admin-dashboard", Data: data})
	}
}

// adminRequestRow is one line of the admin request table
type adminRequestRow struct {
	servicerequests.Request
	Reviewable bool
	Assignable bool
	Uploadable bool
}

// AdminRequestsPageData backs the admin request table
type AdminRequestsPageData struct {
	Rows      []adminRequestRow
	Assignees []users.Admin
	Me        int64
}

// AdminRequestsHandler lists requests visible to the staff member. Full access admins also
// get the assignment list.
func (s *Server) AdminRequestsHandler() http.HandlerFunc {
	tmpl := mustParsePage("admin_requests.html")
	return func(w http.ResponseWriter, r *http.Request) {
		sess := portalSession(r)
		user := sess.Provider.State().User
		if user == nil {
			redirectSuccess(w, r, RouteAdminLogin)
			return
		}
		fullAccess := user.HasFullAccess()

		var list []servicerequests.Request
		var admins []users.Admin
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			var err error
			list, err = sess.Client.ListServiceRequests(ctx)
			return err
		})
		if fullAccess {
			g.Go(func() error {
				var err error
				admins, err = sess.Client.ListAdminsForAssignment(ctx)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			handleAPIError(w, r, err, RouteAdminDashboard)
			return
		}

		data := AdminRequestsPageData{Me: user.ID}
		for _, a := range admins {
			if a.ID != user.ID {
				data.Assignees = append(data.Assignees, a)
			}
		}
		for _, req := range list {
			data.Rows = append(data.Rows, adminRequestRow{
				Request:    req,
				Reviewable: req.Status == servicerequests.StatusPendingApproval,
				Assignable: fullAccess && req.Status != servicerequests.StatusCompleted && req.Status != servicerequests.StatusRejected,
				Uploadable: req.Status == servicerequests.StatusInProgress,
			})
		}

		s.renderPage(w, r, tmpl, http.StatusOK, PageData{Title: "Service requests", ActivePage: "admin-requests", Data: data})
	}
}

// AdminRequestStatusHandler approves (awaiting payment) or rejects a pending request
func (s *Server) AdminRequestStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "requestId")
		if err != nil {
			redirectWithError(w, r, RouteAdminRequests, "Unknown request")
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		var status servicerequests.Status
		var verb string
		switch r.FormValue("decision") {
		case "approve":
			status, verb = servicerequests.StatusAwaitingPayment, "approved"
		case "reject":
			status, verb = servicerequests.StatusRejected, "rejected"
		default:
			redirectWithError(w, r, RouteAdminRequests, "Invalid status")
			return
		}

		if err := portalSession(r).Client.UpdateServiceRequestStatus(r.Context(), id, status); err != nil {
			handleAPIError(w, r, err, RouteAdminRequests)
			return
		}
		redirectWithNotice(w, r, RouteAdminRequests, fmt.Sprintf("Request #%d has been %s.", id, verb))
	}
}

// AdminRequestAssignHandler hands a request to a staff member
func (s *Server) AdminRequestAssignHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "requestId")
		if err != nil {
			redirectWithError(w, r, RouteAdminRequests, "Unknown request")
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		adminID, err := strconv.ParseInt(r.FormValue("admin_id"), 10, 64)
		if err != nil || adminID <= 0 {
			redirectWithError(w, r, RouteAdminRequests, "No admin selected for assignment.")
			return
		}

		if err := portalSession(r).Client.AssignServiceRequest(r.Context(), id, adminID); err != nil {
			handleAPIError(w, r, err, RouteAdminRequests)
			return
		}
		redirectWithNotice(w, r, RouteAdminRequests, fmt.Sprintf("Request #%d has been assigned successfully.", id))
	}
}

// AdminRequestReportHandler uploads the PDF report; the backend then marks the request completed
func (s *Server) AdminRequestReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "requestId")
		if err != nil {
			redirectWithError(w, r, RouteAdminRequests, "Unknown request")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			redirectWithError(w, r, RouteAdminRequests, "Please select a PDF file to upload.")
			return
		}
		file, header, err := r.FormFile("report_file")
		if err != nil {
			redirectWithError(w, r, RouteAdminRequests, "Please select a PDF file to upload.")
			return
		}
		defer file.Close()
		if !strings.EqualFold(path.Ext(header.Filename), ".pdf") {
			redirectWithError(w, r, RouteAdminRequests, "Reports must be PDF files.")
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			redirectWithError(w, r, RouteAdminRequests, "Failed to upload the report.")
			return
		}

		if err := portalSession(r).Client.UploadReport(r.Context(), id, header.Filename, data); err != nil {
			handleAPIError(w, r, err, RouteAdminRequests)
			return
		}
		redirectWithNotice(w, r, RouteAdminRequests, "The report has been uploaded and the request is marked as completed.")
	}
}

// AdminServicesPageData backs the catalogue editor; Editing is nil for the create form
type AdminServicesPageData struct {
	Services []services.Service
	Editing  *services.Service
}

// AdminServicesHandler lists the catalogue with a create form, or an edit form for {serviceId}
func (s *Server) AdminServicesHandler() http.HandlerFunc {
	tmpl := mustParsePage("admin_services.html")
	return func(w http.ResponseWriter, r *http.Request) {
		client := portalSession(r).Client
		list, err := client.ListServices(r.Context())
		if err != nil {
			handleAPIError(w, r, err, RouteAdminDashboard)
			return
		}
		data := AdminServicesPageData{Services: list}

		if r.PathValue("serviceId") != "" {
			id, err := pathID(r, "serviceId")
			if err != nil {
				redirectWithError(w, r, RouteAdminServices, "Unknown service")
				return
			}
			svc, err := client.GetService(r.Context(), id)
			if err != nil {
				handleAPIError(w, r, err, RouteAdminServices)
				return
			}
			data.Editing = svc
		}

		s.renderPage(w, r, tmpl, http.StatusOK, PageData{Title: "Services", ActivePage: "admin-services", Data: data})
	}
}

// AdminServiceSaveHandler creates a service, or updates {serviceId} when present
func (s *Server) AdminServiceSaveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		back := r.URL.Path
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil && err != http.ErrNotMultipart {
			redirectWithError(w, r, back, "Invalid form data")
			return
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
		if err != nil {
			redirectWithError(w, r, back, "price must be a number")
			return
		}
		draft := services.Draft{
			Name:        r.FormValue("name"),
			Description: r.FormValue("description"),
			Price:       price,
		}
		if file, header, err := r.FormFile("image"); err == nil {
			data, readErr := io.ReadAll(file)
			file.Close()
			if readErr != nil {
				redirectWithError(w, r, back, "Failed to read the image")
				return
			}
			draft.Image, draft.ImageName = data, header.Filename
		}
		if err := draft.Validate(); err != nil {
			redirectWithError(w, r, back, err.Error())
			return
		}

		client := portalSession(r).Client
		if r.PathValue("serviceId") == "" {
			if _, err := client.CreateService(r.Context(), draft); err != nil {
				handleAPIError(w, r, err, back)
				return
			}
			redirectWithNotice(w, r, RouteAdminServices, "Service created")
			return
		}

		id, err := pathID(r, "serviceId")
		if err != nil {
			redirectWithError(w, r, RouteAdminServices, "Unknown service")
			return
		}
		if _, err := client.UpdateService(r.Context(), id, draft); err != nil {
			handleAPIError(w, r, err, back)
			return
		}
		redirectWithNotice(w, r, RouteAdminServices, "Service updated")
	}
}

func (s *Server) AdminServiceDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "serviceId")
		if err != nil {
			redirectWithError(w, r, RouteAdminServices, "Unknown service")
			return
		}
		if err := portalSession(r).Client.DeleteService(r.Context(), id); err != nil {
			handleAPIError(w, r, err, RouteAdminServices)
			return
		}
		redirectWithNotice(w, r, RouteAdminServices, "Service deleted")
	}
}

// ManageAdminsPageData backs the staff account list
type ManageAdminsPageData struct {
	Admins []users.Admin
	Groups []users.GroupName
}

func (s *Server) AdminManageAdminsHandler() http.HandlerFunc {
	tmpl := mustParsePage("admin_manage_admins.html")
	return func(w http.ResponseWriter, r *http.Request) {
		admins, err := portalSession(r).Client.ListAdmins(r.Context())
		if err != nil {
			handleAPIError(w, r, err, RouteAdminDashboard)
			return
		}
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{
			Title:      "Manage admins",
			ActivePage: "admin-manage-admins",
			Data: ManageAdminsPageData{
				Admins: admins,
				Groups: []users.GroupName{users.GroupFullAccessAdmin, users.GroupPartialAccessAdmin},
			},
		})
	}
}

// AdminCreateAdminHandler creates a staff account; the backend mails the initial password link
func (s *Server) AdminCreateAdminHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		admin := users.NewAdmin{
			Email:     strings.TrimSpace(r.FormValue("email")),
			FirstName: strings.TrimSpace(r.FormValue("first_name")),
			LastName:  strings.TrimSpace(r.FormValue("last_name")),
			Group:     users.GroupName(r.FormValue("group")),
		}
		if err := admin.Validate(); err != nil {
			redirectWithError(w, r, RouteAdminManageAdmins, err.Error())
			return
		}
		if err := portalSession(r).Client.CreateAdmin(r.Context(), admin); err != nil {
			handleAPIError(w, r, err, RouteAdminManageAdmins)
			return
		}
		redirectWithNotice(w, r, RouteAdminManageAdmins, "Admin created. An email has been sent to set their password.")
	}
}

func (s *Server) AdminDeleteAdminHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "adminId")
		if err != nil {
			redirectWithError(w, r, RouteAdminManageAdmins, "Unknown admin")
			return
		}
		if err := portalSession(r).Client.DeleteAdmin(r.Context(), id); err != nil {
			handleAPIError(w, r, err, RouteAdminManageAdmins)
			return
		}
		redirectWithNotice(w, r, RouteAdminManageAdmins, "Admin deleted")
	}
}

// paymentDeadline is shown next to requests still awaiting payment
func paymentDeadline(req servicerequests.Request) time.Time {
	if req.ApprovedAt == nil {
		return time.Time{}
	}
	return req.ApprovedAt.Add(servicerequests.PaymentWindow)
}
