package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details string   `json:"details,omitempty"`
	Fields  []string `json:"fields,omitempty"`

	cause error
}

// Error returns the error message
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func NewAPIError(code, message string, status int, details ...string) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeRemote     = "REMOTE_ERROR"
	CodePermission = "PERMISSION_DENIED"
)

var (
	ErrInvalidInput      = NewAPIError("INVALID_INPUT", "Invalid request data", http.StatusBadRequest)
	ErrUnauthorized      = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrNotFound          = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInternal          = NewAPIError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrConflict          = NewAPIError("CONFLICT", "Resource conflict", http.StatusConflict)
	ErrBusy              = NewAPIError("OPERATION_PENDING", "Another operation is still pending", http.StatusConflict)
	ErrInvalidTransition = NewAPIError("INVALID_TRANSITION", "Step change not allowed from here", http.StatusConflict)
	ErrNoWizard          = NewAPIError("WIZARD_CLOSED", "No event creation in progress", http.StatusConflict)
)

// NewValidationError reports user-correctable input gaps. fields names every
// offending input, not just the first.
func NewValidationError(message string, fields ...string) *APIError {
	err := NewAPIError(CodeValidation, message, http.StatusUnprocessableEntity)
	if len(fields) > 0 {
		err.Fields = append([]string(nil), fields...)
	}
	return err
}

// NewRemoteError wraps a failed backend or geocoding call.
func NewRemoteError(op string, err error) *APIError {
	apiErr := NewAPIError(CodeRemote, fmt.Sprintf("%s failed", op), http.StatusBadGateway)
	if err != nil {
		apiErr.Details = err.Error()
		apiErr.cause = err
	}
	return apiErr
}

func NewPermissionError(message string) *APIError {
	return NewAPIError(CodePermission, message, http.StatusForbidden)
}

func Wrap(err error, code, message string, status int) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	apiErr := NewAPIError(code, message, status, err.Error())
	apiErr.cause = err
	return apiErr
}

// HasCode reports whether err, or anything it wraps, is an APIError with code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	for err != nil {
		if !stderrors.As(err, &apiErr) {
			return false
		}
		if apiErr.Code == code {
			return true
		}
		err = apiErr.cause
	}
	return false
}

func IsValidation(err error) bool { return HasCode(err, CodeValidation) }
func IsRemote(err error) bool     { return HasCode(err, CodeRemote) }
func IsPermission(err error) bool { return HasCode(err, CodePermission) }
