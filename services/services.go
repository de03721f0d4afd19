package services

import (
	"fmt"
	"strings"
)

// Service is one orderable entry of the security services catalogue
type Service struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price,omitempty"`
	Image       *string `json:"image,omitempty"` // Absolute URL of the catalogue image
}

// Draft is the editable part of a Service, sent as multipart form data so an image can ride along
type Draft struct {
	Name        string
	Description string
	Price       float64
	ImageName   string
	Image       []byte
}

// Validate applies the catalogue form rules
func (d Draft) Validate() error {
	if len(strings.TrimSpace(d.Name)) < 2 {
		return fmt.Errorf("name must have at least 2 letters")
	}
	if len(strings.TrimSpace(d.Description)) < 10 {
		return fmt.Errorf("description must have at least 10 letters")
	}
	if d.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if len(d.Image) > 0 && d.ImageName == "" {
		return fmt.Errorf("image needs a file name")
	}
	return nil
}

// Fields is the non-file part of the multipart body
func (d Draft) Fields() map[string]string {
	return map[string]string{
		"name":        strings.TrimSpace(d.Name),
		"description": strings.TrimSpace(d.Description),
		"price":       fmt.Sprintf("%.2f", d.Price),
	}
}
