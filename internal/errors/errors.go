// Package errors provides the error taxonomy shared by the sync engine and
// the remote gateway. Every failure that crosses a component boundary is an
// *AppError so callers can branch on Code without string matching.
package errors

import (
	stderrors "errors"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so wrapped
// copies of a sentinel still match errors.Is(err, ErrUnavailable).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Code returns the code of the first AppError in err's chain, or "" if none.
func Code(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// FromCode returns the sentinel registered for code, falling back to
// ErrInternalServer for codes this build does not know.
func FromCode(code string) *AppError {
	if s, ok := byCode[code]; ok {
		return s
	}
	return ErrInternalServer
}

// Identity and transport errors.
var (
	ErrUnauthenticated = &AppError{Code: "UNAUTHENTICATED", Message: "No authenticated identity", StatusCode: http.StatusUnauthorized}
	ErrUnauthorized    = &AppError{Code: "UNAUTHORIZED", Message: "Identity does not own this record", StatusCode: http.StatusForbidden}
	ErrUnavailable     = &AppError{Code: "UNAVAILABLE", Message: "Remote store unavailable", StatusCode: http.StatusServiceUnavailable}
)

// Local storage errors.
var (
	ErrStorageFailure = &AppError{Code: "STORAGE_FAILURE", Message: "Local storage failure", StatusCode: http.StatusInternalServerError}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Record not found", StatusCode: http.StatusNotFound}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Record errors.
var (
	ErrOwnerImmutable        = &AppError{Code: "OWNER_IMMUTABLE", Message: "Record owner cannot be changed", StatusCode: http.StatusBadRequest}
	ErrCategoryTypeImmutable = &AppError{Code: "CATEGORY_TYPE_IMMUTABLE", Message: "Category type cannot be changed; delete and recreate it", StatusCode: http.StatusBadRequest}
	ErrUnknownCollection     = &AppError{Code: "UNKNOWN_COLLECTION", Message: "Unknown collection", StatusCode: http.StatusNotFound}
)

var byCode = map[string]*AppError{}

func init() {
	for _, s := range []*AppError{
		ErrUnauthenticated, ErrUnauthorized, ErrUnavailable,
		ErrStorageFailure, ErrNotFound,
		ErrInvalidInput, ErrInternalServer,
		ErrOwnerImmutable, ErrCategoryTypeImmutable, ErrUnknownCollection,
	} {
		byCode[s.Code] = s
	}
}
