package servicerequests

import (
	"fmt"
	"strings"
	"time"
)

// Status is the backend owned lifecycle state of a request. The portal only reads it to decide
// which actions to offer; transitions are enforced server side.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusRejected        Status = "rejected"
	StatusWithdrawn       Status = "withdrawn"
	StatusCancelled       Status = "cancelled"
)

// PaymentWindow is how long an approved request stays payable
const PaymentWindow = 3 * time.Hour

// Label is the display form, e.g. "PENDING APPROVAL"
func (s Status) Label() string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
}

// Colour is the badge colour used by the request lists
func (s Status) Colour() string {
	switch s {
	case StatusCompleted:
		return "green"
	case StatusInProgress:
		return "blue"
	case StatusPendingApproval:
		return "yellow"
	case StatusAwaitingPayment:
		return "orange"
	case StatusRejected, StatusWithdrawn:
		return "red"
	default:
		return "gray"
	}
}

// Request is a client's order for a service
type Request struct {
	ID              int64      `json:"id"`
	Client          string     `json:"client,omitempty"`
	ServiceName     string     `json:"service_name"`
	ServiceImage    *string    `json:"service_image,omitempty"`
	Status          Status     `json:"status"`
	RequestDate     time.Time  `json:"request_date"`
	URL             string     `json:"url"`
	Roles           string     `json:"roles"`
	Notes           string     `json:"notes"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ReportURL       *string    `json:"report_url,omitempty"`
	ReportFile      *string    `json:"report_file,omitempty"`
	AssignedTo      *int64     `json:"assigned_to,omitempty"`
	AssignedToEmail *string    `json:"assigned_to_email,omitempty"`
}

// CanWithdraw is only offered before approval
func (r *Request) CanWithdraw() bool {
	return r.Status == StatusPendingApproval
}

// CanPay is offered for approved requests inside the payment window
func (r *Request) CanPay(now time.Time) bool {
	return r.Status == StatusAwaitingPayment && r.ApprovedAt != nil && r.PaymentTimeLeft(now) > 0
}

// PaymentTimeLeft is zero once the window has closed or the request was never approved
func (r *Request) PaymentTimeLeft(now time.Time) time.Duration {
	if r.ApprovedAt == nil {
		return 0
	}
	left := r.ApprovedAt.Add(PaymentWindow).Sub(now)
	if left < 0 {
		return 0
	}
	return left.Truncate(time.Second)
}

// HasReport is true for completed requests with a downloadable report
func (r *Request) HasReport() bool {
	return r.Status == StatusCompleted && r.ReportLink() != ""
}

// ReportLink prefers the client facing URL over the raw stored file
func (r *Request) ReportLink() string {
	if r.ReportURL != nil && *r.ReportURL != "" {
		return *r.ReportURL
	}
	if r.ReportFile != nil {
		return *r.ReportFile
	}
	return ""
}

// ReportFileName is the suggested download name
func (r *Request) ReportFileName() string {
	return fmt.Sprintf("report-%d.pdf", r.ID)
}

// Draft is the body of POST /api/service-requests/
type Draft struct {
	ServiceID   int64  `json:"service_id"`
	URL         string `json:"url"`
	Roles       string `json:"roles"`
	Notes       string `json:"notes"`
	Credentials string `json:"credentials"`
}

// Validate applies the request form rules
func (d Draft) Validate() error {
	if d.ServiceID <= 0 {
		return fmt.Errorf("cannot submit request without a service ID")
	}
	if strings.TrimSpace(d.URL) == "" {
		return fmt.Errorf("URL is required")
	}
	if strings.TrimSpace(d.Roles) == "" {
		return fmt.Errorf("login roles are required")
	}
	if strings.TrimSpace(d.Credentials) == "" {
		return fmt.Errorf("login credentials are required")
	}
	return nil
}

// Stats is the per-client summary from /api/service-requests/stats/
type Stats struct {
	TotalRequests   int `json:"total_requests"`
	Completed       int `json:"completed"`
	InProgress      int `json:"in_progress"`
	PendingApproval int `json:"pending_approval"`
	AwaitingPayment int `json:"awaiting_payment"`
	Rejected        int `json:"rejected"`
	Withdrawn       int `json:"withdrawn"`
}

// AdminStats is the staff dashboard summary
type AdminStats struct {
	TotalRequests int `json:"total_requests"`
	Approved      int `json:"approved"`
	Completed     int `json:"completed"`
	TotalUsers    int `json:"total_users"`
}

// StatusCount is one slice of the status distribution chart
type StatusCount struct {
	Status Status `json:"status"`
	Count  int    `json:"count"`
}

// Report is a downloaded report body
type Report struct {
	FileName    string
	ContentType string
	Data        []byte
}
