package apiclient

import (
	"context"
	"fmt"
	"mime"
	"net/http"

	"github.com/jrsteele09/go-security-portal/payment"
	"github.com/jrsteele09/go-security-portal/servicerequests"
)

// ListServiceRequests returns the caller's requests, or for staff every request they may see
func (c *Client) ListServiceRequests(ctx context.Context) ([]servicerequests.Request, error) {
	var list []servicerequests.Request
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/api/service-requests/", respObj: &list}); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) CreateServiceRequest(ctx context.Context, draft servicerequests.Draft) (*servicerequests.Request, error) {
	var req servicerequests.Request
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodPost, path: "/api/service-requests/", body: draft, respObj: &req}); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) WithdrawServiceRequest(ctx context.Context, id int64) error {
	_, err := c.execute(ctx, &apiRequest{method: http.MethodPost, path: fmt.Sprintf("/api/service-requests/%d/withdraw/", id)})
	return err
}

// UpdateServiceRequestStatus approves (awaiting_payment) or rejects a request
func (c *Client) UpdateServiceRequestStatus(ctx context.Context, id int64, status servicerequests.Status) error {
	_, err := c.execute(ctx, &apiRequest{
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/service-requests/%d/update_status/", id),
		body:   map[string]servicerequests.Status{"status": status},
	})
	return err
}

func (c *Client) AssignServiceRequest(ctx context.Context, id, adminID int64) error {
	_, err := c.execute(ctx, &apiRequest{
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/service-requests/%d/assign/", id),
		body:   map[string]int64{"admin_id": adminID},
	})
	return err
}

// UploadReport attaches the report file to a request as multipart form data
func (c *Client) UploadReport(ctx context.Context, id int64, fileName string, data []byte) error {
	_, err := c.execute(ctx, &apiRequest{
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/service-requests/%d/upload_report/", id),
		form: &multipartForm{
			files: []multipartFile{{field: "report_file", fileName: fileName, data: data}},
		},
	})
	return err
}

// DownloadReport fetches a report from the link carried by the request. Links on the
// backend origin are fetched with the caller's bearer token.
func (c *Client) DownloadReport(ctx context.Context, req *servicerequests.Request) (*servicerequests.Report, error) {
	link := req.ReportLink()
	if link == "" {
		return nil, fmt.Errorf("[apiclient DownloadReport] request %d has no report", req.ID)
	}
	resp, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: link})
	if err != nil {
		return nil, err
	}

	report := &servicerequests.Report{
		FileName:    req.ReportFileName(),
		ContentType: resp.header.Get("Content-Type"),
		Data:        resp.body,
	}
	if _, params, err := mime.ParseMediaType(resp.header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		report.FileName = params["filename"]
	}
	if report.ContentType == "" {
		report.ContentType = "application/octet-stream"
	}
	return report, nil
}

// RequestStats is the caller's own dashboard summary
func (c *Client) RequestStats(ctx context.Context) (*servicerequests.Stats, error) {
	var stats servicerequests.Stats
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/api/service-requests/stats/", respObj: &stats}); err != nil {
		return nil, err
	}
	return &stats, nil
}

// InitiatePayment asks the backend to sign a gateway transaction for an approved request
func (c *Client) InitiatePayment(ctx context.Context, id int64) (payment.Fields, error) {
	raw := map[string]any{}
	_, err := c.execute(ctx, &apiRequest{
		method:  http.MethodPost,
		path:    fmt.Sprintf("/api/service-requests/%d/pay/", id),
		body:    map[string]int64{"service_request_id": id},
		respObj: &raw,
	})
	if err != nil {
		return nil, err
	}

	fields := make(payment.Fields, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case nil:
			fields[name] = ""
		case string:
			fields[name] = v
		default:
			fields[name] = fmt.Sprint(v)
		}
	}
	return fields, nil
}
