package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all store failure modes
type ErrorCode string

const (
	// DoesNotExist indicates the addressed project, block, order, sha or file is missing
	DoesNotExist ErrorCode = "DOES_NOT_EXIST"
	// AlreadyExists indicates a create-once resource is already present
	AlreadyExists ErrorCode = "ALREADY_EXISTS"
	// InvalidModel indicates a document failed validation
	InvalidModel ErrorCode = "INVALID_MODEL"
	// IOError indicates an opaque filesystem or version-store failure
	IOError ErrorCode = "IO_ERROR"
	// NoIdProvided indicates a required id was empty
	NoIdProvided ErrorCode = "NO_ID_PROVIDED"
	// InvalidSessionKey indicates the caller identity could not be validated
	InvalidSessionKey ErrorCode = "INVALID_SESSION_KEY"
	// InvalidRoute indicates an unknown or malformed route
	InvalidRoute ErrorCode = "INVALID_ROUTE"
	// NotAllowed indicates the operation is refused by policy (sample projects, sequence delete)
	NotAllowed ErrorCode = "NOT_ALLOWED"
)

// Sentinels for errors.Is matching. Any StoreError with the same code matches.
var (
	ErrDoesNotExist      = &StoreError{Code: DoesNotExist, Message: "does not exist"}
	ErrAlreadyExists     = &StoreError{Code: AlreadyExists, Message: "already exists"}
	ErrInvalidModel      = &StoreError{Code: InvalidModel, Message: "invalid model"}
	ErrNoIdProvided      = &StoreError{Code: NoIdProvided, Message: "no id provided"}
	ErrInvalidSessionKey = &StoreError{Code: InvalidSessionKey, Message: "invalid session key"}
	ErrInvalidRoute      = &StoreError{Code: InvalidRoute, Message: "invalid route"}
	ErrNotAllowed        = &StoreError{Code: NotAllowed, Message: "not allowed"}
)

// StoreError represents a store error with a stable code and message
type StoreError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new StoreError
func New(code ErrorCode, message string, cause error) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new StoreError without a cause, formatting the message
func Newf(code ErrorCode, format string, args ...interface{}) *StoreError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.cause
}

// Is matches any StoreError carrying the same code.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *StoreError) WithDetails(details interface{}) *StoreError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first StoreError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// NotFound builds a DoesNotExist error for a kind and id.
func NotFound(kind, id string) *StoreError {
	return Newf(DoesNotExist, "%s %s does not exist", kind, id).WithDetails(map[string]string{
		"kind": kind,
		"id":   id,
	})
}

// Wrap wraps an unexpected failure as IOError, leaving StoreErrors untouched.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if stderrors.As(err, &se) {
		return err
	}
	return New(IOError, message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
