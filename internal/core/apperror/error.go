// Package apperror provides structured error handling for the client core.
// All domain and transport errors must use AppError so callers can branch
// on a machine-readable code instead of string matching.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes grouped by the client-side error taxonomy
const (
	// Infrastructure errors
	CodeInternal = "INTERNAL_ERROR"
	CodeNetwork  = "NETWORK_ERROR"

	// Validation errors - detectable before any network call
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations - server rejected a semantically invalid operation
	CodeBusinessRule      = "BUSINESS_RULE_VIOLATION"
	CodeInvalidAdjustment = "INVALID_ADJUSTMENT"
	CodeStockNotTracked   = "STOCK_NOT_TRACKED"
	CodeReceiptFinalized  = "RECEIPT_ALREADY_FINALIZED"
	CodeDuplicate         = "DUPLICATE_ENTRY"

	// Authorization errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the core.
// It implements the error interface and carries structured details the UI
// layer can render (per-field messages, offending quantities, etc.).
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the status the remote API responded with, when known
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

// FieldError describes a single invalid field, addressed so the UI can
// attach the message to the right form input (e.g. "items[1].quantity").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewFieldValidation creates a validation error carrying the complete list
// of violations collected from a single validation pass.
func NewFieldValidation(fields []FieldError) *AppError {
	msg := "validation failed"
	if len(fields) == 1 {
		msg = fields[0].String()
	}
	return &AppError{
		Code:       CodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"fieldErrors": fields},
	}
}

// NewNotFound creates a not found error
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInvalidAdjustment is returned when an adjustment would drive a
// category's stock negative.
func NewInvalidAdjustment(categoryID int64, requested, available int) *AppError {
	return &AppError{
		Code:       CodeInvalidAdjustment,
		Message:    "adjustment would drive stock negative",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"category_id": categoryID,
			"requested":   requested,
			"available":   available,
		},
	}
}

// NewStockNotTracked is returned when a stock mutation targets a category
// with stock tracking disabled.
func NewStockNotTracked(categoryID int64) *AppError {
	return &AppError{
		Code:       CodeStockNotTracked,
		Message:    "category does not track stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"category_id": categoryID},
	}
}

// NewNetwork creates a transport failure error (no usable response)
func NewNetwork(err error) *AppError {
	return &AppError{
		Code:    CodeNetwork,
		Message: "request failed",
		Err:     err,
	}
}

// NewInternal creates an internal error (programming error, broken invariant)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "internal error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewDuplicate creates a duplicate entry error
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeValidation
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsNetwork checks if error is CodeNetwork
func IsNetwork(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNetwork
	}
	return false
}

// FieldErrors extracts the per-field violation list from a validation
// error, or nil when the error carries none.
func FieldErrors(err error) []FieldError {
	appErr, ok := AsAppError(err)
	if !ok || appErr.Details == nil {
		return nil
	}
	fields, _ := appErr.Details["fieldErrors"].([]FieldError)
	return fields
}
