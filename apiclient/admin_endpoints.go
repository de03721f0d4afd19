package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-security-portal/servicerequests"
	"github.com/jrsteele09/go-security-portal/users"
)

func (c *Client) AdminStats(ctx context.Context) (*servicerequests.AdminStats, error) {
	var stats servicerequests.AdminStats
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/api/admin/stats/", respObj: &stats}); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) StatusDistribution(ctx context.Context) ([]servicerequests.StatusCount, error) {
	var dist []servicerequests.StatusCount
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/api/admin/status-distribution/", respObj: &dist}); err != nil {
		return nil, err
	}
	return dist, nil
}

func (c *Client) ListAdmins(ctx context.Context) ([]users.Admin, error) {
	var admins []users.Admin
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/api/admins/", respObj: &admins}); err != nil {
		return nil, err
	}
	return admins, nil
}

func (c *Client) CreateAdmin(ctx context.Context, admin users.NewAdmin) error {
	_, err := c.execute(ctx, &apiRequest{method: http.MethodPost, path: "/api/admins/", body: admin})
	return err
}

func (c *Client) DeleteAdmin(ctx context.Context, id int64) error {
	_, err := c.execute(ctx, &apiRequest{method: http.MethodDelete, path: fmt.Sprintf("/api/admins/%d/", id)})
	return err
}

// ListAdminsForAssignment lists the staff a request can be assigned to
func (c *Client) ListAdminsForAssignment(ctx context.Context) ([]users.Admin, error) {
	var admins []users.Admin
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/api/admin/list-for-assignment/", respObj: &admins}); err != nil {
		return nil, err
	}
	return admins, nil
}
