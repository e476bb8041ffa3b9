package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("translation unit not found")
	ErrIteratorExhausted   = errors.New("iterator exhausted")
	ErrNotOpen             = errors.New("connector not open")
	ErrAlreadyClosed       = errors.New("connector already closed")
	ErrStorage             = errors.New("storage error")
	ErrDuplicateNotAllowed = errors.New("duplicate not allowed")
	ErrUnavailable         = errors.New("backend unavailable")
	ErrInternal            = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Invalidf is shorthand for an ErrInvalidArgument with a 400 status.
func Invalidf(format string, args ...any) *AppError {
	return Newf(ErrInvalidArgument, http.StatusBadRequest, format, args...)
}

// Storage wraps an I/O failure so callers can match it with ErrStorage
// while the underlying cause stays reachable through errors.Is.
func Storage(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateNotAllowed):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrIteratorExhausted), errors.Is(err, ErrAlreadyClosed):
		return http.StatusGone
	case errors.Is(err, ErrNotOpen), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}

var codes = []struct {
	code     string
	sentinel error
}{
	{"invalid_argument", ErrInvalidArgument},
	{"not_found", ErrNotFound},
	{"iterator_exhausted", ErrIteratorExhausted},
	{"not_open", ErrNotOpen},
	{"already_closed", ErrAlreadyClosed},
	{"storage", ErrStorage},
	{"duplicate_not_allowed", ErrDuplicateNotAllowed},
	{"unavailable", ErrUnavailable},
}

// Code returns a stable wire name for the sentinel err wraps, or
// "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return "internal"
}

// FromCode rebuilds an error carrying the sentinel named by code.
func FromCode(code, message string) error {
	for _, c := range codes {
		if c.code == code {
			return &AppError{Err: c.sentinel, Message: message, StatusCode: HTTPStatusCode(c.sentinel)}
		}
	}
	return &AppError{Err: ErrInternal, Message: message, StatusCode: http.StatusInternalServerError}
}
