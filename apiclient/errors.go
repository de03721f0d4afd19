package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/jrsteele09/go-security-portal/internal/errors"
)

// APIError is a non-2xx response from the backend
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api responded %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api responded %d: %s", e.Status, e.Detail)
}

// Unwrap lets callers match the status class with errors.Is
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusBadRequest:
		return errors.ErrBadRequest
	case e.Status == http.StatusUnauthorized:
		return errors.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return errors.ErrForbidden
	case e.Status == http.StatusNotFound:
		return errors.ErrNotFound
	case e.Status >= http.StatusInternalServerError:
		return errors.ErrInternal
	default:
		return nil
	}
}

// SessionExpiredError reports a 401 that could not be recovered. The store has already been
// cleared; LoginPath is where the user should be sent.
type SessionExpiredError struct {
	LoginPath string
	Err       error
}

func (e *SessionExpiredError) Error() string {
	if e.Err == nil {
		return errors.ErrSessionExpired.Error()
	}
	return fmt.Sprintf("%s: %v", errors.ErrSessionExpired, e.Err)
}

func (e *SessionExpiredError) Is(target error) bool {
	return target == errors.ErrSessionExpired
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{Status: status, Detail: parseDetail(body)}
}

// parseDetail flattens the error bodies the backend produces: {"detail": ...}, {"error": ...}
// and field errors such as {"email": ["already exists"]}
func parseDetail(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		var list []any
		if json.Unmarshal(body, &list) == nil {
			return joinMessages(list)
		}
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}

	fields := make([]string, 0, len(obj))
	for field := range obj {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		msg := ""
		switch v := obj[field].(type) {
		case string:
			msg = v
		case []any:
			msg = joinMessages(v)
		}
		if msg == "" {
			continue
		}
		if field == "non_field_errors" {
			parts = append(parts, msg)
		} else {
			parts = append(parts, field+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

func joinMessages(list []any) string {
	msgs := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			msgs = append(msgs, s)
		}
	}
	return strings.Join(msgs, " ")
}
