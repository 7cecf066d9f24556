package apperror

import "net/http"

// AppError is a custom error type that includes an HTTP status code and an optional internal error code.
type AppError struct {
	Code    int               // HTTP Status Code (e.g., 400, 404)
	Message string            // User-facing error message
	Fields  map[string]string // Per-field validation messages, if any
	Err     error             // The underlying error, if any (not exposed to user)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code and message.
// This lets errors.Is match copies produced by WithFields against their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a new AppError with a status code and message.
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new AppError wrapping an existing error.
func Wrap(err error, code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithFields returns a copy of e carrying per-field messages.
func (e *AppError) WithFields(fields map[string]string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Fields:  fields,
		Err:     e.Err,
	}
}

// Validation creates a 400 error with a field-level error map.
func Validation(fields map[string]string) *AppError {
	return New(http.StatusBadRequest, "validation failed").WithFields(fields)
}

// Integrity creates a 409 error for storage constraint violations.
func Integrity(err error, message string) *AppError {
	return Wrap(err, http.StatusConflict, message)
}
