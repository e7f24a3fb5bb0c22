package marketplace

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNoShippingOptions is returned when a quote succeeds without any courier option.
	ErrNoShippingOptions = errors.New("marketplace: no shipping options available")
	// ErrEmptyBillingCode is returned when checkout succeeds without a billing code.
	ErrEmptyBillingCode = errors.New("marketplace: checkout response missing billing code")
)

// APIError describes a failed marketplace call: a non-2xx status or an
// envelope whose status is not successful.
type APIError struct {
	Operation   string
	StatusCode  int
	Message     string
	FieldErrors map[string][]string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("marketplace %s: status %d: %s", e.Operation, e.StatusCode, msg)
}

// Validation reports whether the backend rejected the payload field by field.
func (e *APIError) Validation() bool {
	return e.StatusCode == http.StatusUnprocessableEntity
}

// Unauthorized reports whether the caller's session is missing or expired.
// 419 is the CSRF/session-expired status used by Laravel backends.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == 419
}

// JoinedFieldErrors flattens the field error map into one readable line,
// ordered by field name.
func (e *APIError) JoinedFieldErrors() string {
	if len(e.FieldErrors) == 0 {
		return ""
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		for _, msg := range e.FieldErrors[field] {
			if msg = strings.TrimSpace(msg); msg != "" {
				parts = append(parts, msg)
			}
		}
	}
	return strings.Join(parts, ", ")
}

// AsAPIError unwraps err into an APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
