// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation   = "VALIDATION_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Ledger data violations (422)
	CodeMalformedEvent             = "MALFORMED_EVENT"
	CodeInconsistentReconciliation = "INCONSISTENT_RECONCILIATION"
	CodeReconciliationMismatch     = "RECONCILIATION_MISMATCH"
	CodeTooManyEvents              = "TOO_MANY_EVENTS"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (voucher, key, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewMalformedEvent reports a ledger event missing a required field.
// The whole run is aborted; voucherID identifies the offending transaction.
func NewMalformedEvent(voucherID, reason string) *AppError {
	return &AppError{
		Code:       CodeMalformedEvent,
		Message:    fmt.Sprintf("malformed movement event in voucher %q: %s", voucherID, reason),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"voucher_id": voucherID,
			"reason":     reason,
		},
	}
}

// NewInconsistentReconciliation reports a reconciliation event whose stated
// balance cannot be reconciled with the running balance.
func NewInconsistentReconciliation(voucherID string, stated, running any) *AppError {
	return &AppError{
		Code:       CodeInconsistentReconciliation,
		Message:    fmt.Sprintf("stock reconciliation in voucher %q states an inconsistent balance", voucherID),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"voucher_id": voucherID,
			"stated":     stated,
			"running":    running,
		},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode checks whether the error chain carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsMalformedEvent checks if error is CodeMalformedEvent
func IsMalformedEvent(err error) bool {
	return HasCode(err, CodeMalformedEvent)
}

// IsInconsistentReconciliation checks if error is CodeInconsistentReconciliation
func IsInconsistentReconciliation(err error) bool {
	return HasCode(err, CodeInconsistentReconciliation)
}
