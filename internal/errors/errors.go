package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a feedvault error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"       // 400
	ErrNotFound             ErrorCode = "NOT_FOUND"             // 404
	ErrSanitizationRejected ErrorCode = "SANITIZATION_REJECTED" // 422
	ErrImportValidation     ErrorCode = "IMPORT_VALIDATION"     // 400 / 413
	ErrCancelled            ErrorCode = "CANCELLED"             // 499
	ErrQueueClosed          ErrorCode = "QUEUE_CLOSED"          // 503
	ErrStoreIO              ErrorCode = "STORE_IO"              // 500
	ErrInternal             ErrorCode = "INTERNAL"              // 500
)

// VaultError represents a structured error with code, status, and details.
type VaultError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *VaultError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *VaultError {
	return &VaultError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a record cannot be found.
func NewNotFound(id string) *VaultError {
	return &VaultError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("record not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *VaultError {
	return &VaultError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewSanitizationRejected creates a 422 error for records the sanitizer refused.
func NewSanitizationRejected(reason string) *VaultError {
	return &VaultError{
		Code:    ErrSanitizationRejected,
		Status:  422,
		Message: "record rejected: " + reason,
		Details: map[string]any{"reason": reason},
	}
}

// NewImportValidation creates an error for an import envelope that cannot be accepted.
// Oversized payloads get 413; everything else is a 400.
func NewImportValidation(msg string, tooLarge bool) *VaultError {
	status := 400
	if tooLarge {
		status = 413
	}
	return &VaultError{
		Code:    ErrImportValidation,
		Status:  status,
		Message: msg,
	}
}

// NewCancelled creates a 499 error when an operation is interrupted by its context.
func NewCancelled(op string) *VaultError {
	return &VaultError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewQueueClosed creates a 503 error for submissions after shutdown.
func NewQueueClosed() *VaultError {
	return &VaultError{
		Code:    ErrQueueClosed,
		Status:  503,
		Message: "admission queue is closed",
	}
}

// NewStoreIO wraps a persistence failure.
func NewStoreIO(err error) *VaultError {
	msg := "storage failure"
	if err != nil {
		msg = err.Error()
	}
	return &VaultError{
		Code:    ErrStoreIO,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *VaultError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &VaultError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is a VaultError with the given code.
func Is(err error, code ErrorCode) bool {
	var vErr *VaultError
	if stderrors.As(err, &vErr) {
		return vErr.Code == code
	}
	return false
}

// As extracts the VaultError from err, if there is one.
func As(err error) (*VaultError, bool) {
	var vErr *VaultError
	if stderrors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}
