// Package apperror provides structured error handling for the stock ledger.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the ledger core.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeStorage  = "STORAGE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (409, 422)
	CodeContention   = "CONTENTION"
	CodeInvalidState = "INVALID_STATE"
	CodeDuplicate    = "DUPLICATE_ENTRY"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Diagnostic, surfaced by the projector, never a transport failure
	CodeDriftDetected = "DRIFT_DETECTED"
)

// AppError is the standard error type for the service.
// It implements the error interface and carries structured details
// for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (ids, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400).
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404).
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewContention is returned when the product row lock is held by a
// concurrent mutation. Transient: callers retry with backoff.
func NewContention(productID any) *AppError {
	return &AppError{
		Code:       CodeContention,
		Message:    "Product is locked by a concurrent mutation. Retry with backoff.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"product_id": productID},
	}
}

// NewInvalidState is returned when a mutation would drive a running
// balance below zero. Permanent: the input is rejected, nothing applied.
func NewInvalidState(productID any, balance int64) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    "Mutation would produce negative stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"product_id": productID, "resulting_stock": balance},
	}
}

// NewStorage wraps a persistence failure. Transient: retry bounded.
func NewStorage(err error) *AppError {
	return &AppError{
		Code:       CodeStorage,
		Message:    "Storage operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewDuplicate creates a duplicate entry error (409).
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// NewDrift reports a mismatch between a product's stored stock and the
// ledger-derived value. Diagnostic only.
func NewDrift(productID any, stored, derived int64) *AppError {
	return &AppError{
		Code:       CodeDriftDetected,
		Message:    "Stored stock does not match ledger-derived value",
		HTTPStatus: http.StatusOK,
		Details:    map[string]any{"product_id": productID, "stored": stored, "derived": derived},
	}
}

// NewInternal creates an internal error (hides details from clients).
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helpers ---

// AsAppError extracts AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns the appropriate HTTP status for any error.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error carries CodeNotFound.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsContention checks if error carries CodeContention.
func IsContention(err error) bool {
	return hasCode(err, CodeContention)
}

// IsInvalidState checks if error carries CodeInvalidState.
func IsInvalidState(err error) bool {
	return hasCode(err, CodeInvalidState)
}

// IsValidation checks if error carries CodeValidation.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsStorage checks if error carries CodeStorage.
func IsStorage(err error) bool {
	return hasCode(err, CodeStorage)
}

// IsRetryable reports whether the caller should retry with backoff.
// Contention and storage failures are transient; everything else is not.
func IsRetryable(err error) bool {
	return IsContention(err) || IsStorage(err)
}

func hasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
