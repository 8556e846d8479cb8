package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure so callers can react without parsing message text.
type Code string

const (
	// CodeBadRequest marks validation failures rejected before any store access.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks lookups of ids that do not exist.
	CodeNotFound Code = "not_found"
	// CodeInvalidState marks operations that are legal in general but not for
	// the record's current state (e.g. completing quarantine on a Pending record).
	CodeInvalidState Code = "invalid_state"
	// CodeUnauthorized marks missing or failed authentication.
	CodeUnauthorized Code = "unauthorized"
	// CodeInternal marks storage or other infrastructure failures. The unit of
	// work has been rolled back in full; nothing partial was retained.
	CodeInternal Code = "internal"
)

// DomainError carries a machine-readable code next to the human message.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New builds a DomainError with no underlying cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &DomainError{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// unclassified errors.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
