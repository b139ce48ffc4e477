package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so that callers can decide how to react
// without inspecting codes.
type ErrorKind string

const (
	// KindValidation means the caller's input is wrong; retrying will not help.
	KindValidation ErrorKind = "VALIDATION"
	// KindConflict means a concurrent mutation won a race; the caller should retry.
	KindConflict ErrorKind = "CONFLICT"
	// KindState means the requested lifecycle change is not allowed.
	KindState ErrorKind = "STATE"
	// KindResourceBusy means a lock could not be acquired in time; retry with backoff.
	KindResourceBusy ErrorKind = "RESOURCE_BUSY"
	// KindNotFound means a referenced shop, category, listing or order is unknown.
	KindNotFound ErrorKind = "NOT_FOUND"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error of the given kind
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *DomainError {
	return NewDomainError(KindValidation, code, message)
}

// NewConflictError creates a conflict error
func NewConflictError(code, message string) *DomainError {
	return NewDomainError(KindConflict, code, message)
}

// NewStateError creates a state error
func NewStateError(code, message string) *DomainError {
	return NewDomainError(KindState, code, message)
}

// NewResourceBusyError creates a resource busy error
func NewResourceBusyError(resource string) *DomainError {
	return NewDomainError(KindResourceBusy, "RESOURCE_BUSY",
		fmt.Sprintf("%s is busy, try again later", resource))
}

// NewNotFoundError creates a not found error for the named resource
func NewNotFoundError(resource string, id any) *DomainError {
	return NewDomainError(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s %v not found", resource, id))
}

// KindOf returns the kind of the first DomainError in err's chain, or "" when
// err carries none.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(KindNotFound, "NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewDomainError(KindValidation, "INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(KindConflict, "CONCURRENCY_CONFLICT", "Resource was modified by another process")
)
