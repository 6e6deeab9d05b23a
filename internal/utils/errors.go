package utils

import (
	"errors"
	"fmt"
)

// Error kinds shared by the API layer and the UI components. Match them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNetwork    = errors.New("network error")
	ErrUpload     = errors.New("upload error")
	ErrFetch      = errors.New("fetch error")
	ErrDelete     = errors.New("delete error")
	ErrNotFound   = errors.New("not found")

	// ErrBusy rejects an action while a conflicting request is outstanding.
	ErrBusy = errors.New("operation in progress")
	// ErrNoFile rejects an upload without a selected file.
	ErrNoFile = errors.New("no file selected")
)

// AppError wraps an operation, human-facing message, and underlying error.
// Kind classifies the failure; Status carries the HTTP status when one was received.
type AppError struct {
	Kind   error
	Op     string
	Msg    string
	Status int
	Err    error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewAppError constructs an AppError without a kind.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewValidationError constructs a client-side validation failure. Msg is user-facing.
func NewValidationError(op, msg string) error {
	return &AppError{Kind: ErrValidation, Op: op, Msg: msg}
}

// UserMessage extracts the human-facing message of err, falling back to fallback
// when err carries none.
func UserMessage(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Msg != "" {
		return appErr.Msg
	}
	return fallback
}
