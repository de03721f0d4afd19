package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-security-portal/services"
)

func (c *Client) ListServices(ctx context.Context) ([]services.Service, error) {
	var list []services.Service
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: "/api/services/", respObj: &list}); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) GetService(ctx context.Context, id int64) (*services.Service, error) {
	var svc services.Service
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodGet, path: fmt.Sprintf("/api/services/%d/", id), respObj: &svc}); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (c *Client) CreateService(ctx context.Context, draft services.Draft) (*services.Service, error) {
	var svc services.Service
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodPost, path: "/api/services/", form: serviceForm(draft), respObj: &svc}); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (c *Client) UpdateService(ctx context.Context, id int64, draft services.Draft) (*services.Service, error) {
	var svc services.Service
	if _, err := c.execute(ctx, &apiRequest{method: http.MethodPatch, path: fmt.Sprintf("/api/services/%d/", id), form: serviceForm(draft), respObj: &svc}); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (c *Client) DeleteService(ctx context.Context, id int64) error {
	_, err := c.execute(ctx, &apiRequest{method: http.MethodDelete, path: fmt.Sprintf("/api/services/%d/", id)})
	return err
}

func serviceForm(draft services.Draft) *multipartForm {
	form := &multipartForm{fields: draft.Fields()}
	if len(draft.Image) > 0 {
		form.files = append(form.files, multipartFile{field: "image", fileName: draft.ImageName, data: draft.Image})
	}
	return form
}
