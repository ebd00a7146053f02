// Package errors provides the error-code taxonomy used across the sync core.
//
// Codes fall into four handling categories: transient failures are retried
// with backoff inside the engine, conflicts are parked until resolved,
// validation rejections are permanent, and storage failures propagate
// synchronously to the caller of the write.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrDuplicate  ErrorCode = "DUPLICATE"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors: fatal to the triggering write, surfaced synchronously.
	ErrStorage    ErrorCode = "STORAGE_FAILURE"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Sync errors
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncTransient  ErrorCode = "SYNC_TRANSIENT"
	ErrSyncConflict   ErrorCode = "SYNC_CONFLICT"
	ErrSyncRejected   ErrorCode = "SYNC_REJECTED" // remote validation failure, permanent
	ErrSyncTimeout    ErrorCode = "SYNC_TIMEOUT"
	ErrSyncExhausted  ErrorCode = "SYNC_RETRIES_EXHAUSTED"
	ErrOffline        ErrorCode = "OFFLINE"

	// Conflict resolution errors
	ErrConflictUnresolved ErrorCode = "CONFLICT_UNRESOLVED"
	ErrConflictEscalated  ErrorCode = "CONFLICT_ESCALATED"

	// Export/import errors
	ErrExportFailed    ErrorCode = "EXPORT_FAILED"
	ErrImportFailed    ErrorCode = "IMPORT_FAILED"
	ErrBundleVersion   ErrorCode = "BUNDLE_VERSION_UNSUPPORTED"
	ErrBundleCorrupted ErrorCode = "BUNDLE_CORRUPTED"
)

// AppError carries an error code alongside a message and optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
