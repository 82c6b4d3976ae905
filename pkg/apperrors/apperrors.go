package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds. Match with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateReview     = errors.New("duplicate review")
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamRejected    = errors.New("upstream rejected request")
	ErrUpstreamMalformed   = errors.New("upstream response malformed")
	ErrStorageFailure      = errors.New("storage failure")
)

// AppError carries a user-facing message alongside its kind and cause.
type AppError struct {
	Kind    error
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func InvalidInput(format string, args ...any) *AppError {
	return &AppError{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func DuplicateReview(isbn string) *AppError {
	return &AppError{Kind: ErrDuplicateReview, Message: fmt.Sprintf("you already submitted a review for book %s", isbn)}
}

func NotFound(resource, id string) *AppError {
	return &AppError{Kind: ErrNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

func Storage(op string, err error) *AppError {
	return &AppError{Kind: ErrStorageFailure, Message: op, Err: err}
}

func Upstream(kind error, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// Message returns the user-facing text of err, or a generic one for
// anything that is not a recoverable AppError.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && !errors.Is(err, ErrStorageFailure) {
		return appErr.Message
	}
	return "an internal error occurred"
}

// HTTPStatus maps an error kind onto the status the boundary layer responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateReview):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrUpstreamRejected),
		errors.Is(err, ErrUpstreamMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRecoverable reports whether err is a condition the caller should show to
// the user rather than treat as a fault.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicateReview) ||
		errors.Is(err, ErrNotFound)
}
