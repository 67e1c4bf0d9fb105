package domain

import (
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput       = "INVALID_INPUT"
	ErrValidation         = "VALIDATION_ERROR"
	ErrNotFoundCode       = "NOT_FOUND"
	ErrCatalogUnavailable = "CATALOG_UNAVAILABLE"
	ErrCatalogLoading     = "CATALOG_LOADING"
	ErrUpstream           = "UPSTREAM_ERROR"
	ErrStorage            = "STORAGE_ERROR"
	ErrInternalServer     = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// FetchError reports a transport failure or a non-2xx response while
// downloading the curriculum catalog. StatusCode is zero for transport errors.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog fetch from %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("catalog fetch from %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError creates a FetchError for a transport failure.
func NewFetchError(url string, err error) *FetchError {
	return &FetchError{URL: url, Err: err}
}

// NewStatusError creates a FetchError for a non-2xx response.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{URL: url, StatusCode: status}
}

// MalformedCatalogError reports a payload whose top-level shape cannot be
// ingested at all. Irregularities below the top level never produce it.
type MalformedCatalogError struct {
	Reason string
	Err    error
}

func (e *MalformedCatalogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed catalog: %s: %v", e.Reason, e.Err)
	}
	return "malformed catalog: " + e.Reason
}

func (e *MalformedCatalogError) Unwrap() error { return e.Err }

// NewMalformedCatalogError creates a MalformedCatalogError.
func NewMalformedCatalogError(reason string, err error) *MalformedCatalogError {
	return &MalformedCatalogError{Reason: reason, Err: err}
}
