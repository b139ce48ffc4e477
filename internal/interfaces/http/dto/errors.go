package dto

import (
	"net/http"

	"github.com/procurement/backend/internal/domain/shared"
)

// Transport-level error codes. Domain errors keep their own codes.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeMissingIdentity = "MISSING_IDENTITY"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRouteNotFound   = "ROUTE_NOT_FOUND"
)

// Domain error codes with a status other than their kind's default
const (
	ErrCodeInsufficientStock  = "INSUFFICIENT_STOCK"
	ErrCodeListingUnavailable = "LISTING_UNAVAILABLE"
)

// RetryAfterSeconds is sent with busy responses
const RetryAfterSeconds = 1

var kindStatus = map[shared.ErrorKind]int{
	shared.KindValidation:   http.StatusBadRequest,
	shared.KindNotFound:     http.StatusNotFound,
	shared.KindConflict:     http.StatusConflict,
	shared.KindResourceBusy: http.StatusServiceUnavailable,
	shared.KindState:        http.StatusUnprocessableEntity,
}

var codeStatus = map[string]int{
	ErrCodeInsufficientStock:  http.StatusUnprocessableEntity,
	ErrCodeListingUnavailable: http.StatusUnprocessableEntity,
}

// StatusFor returns the HTTP status for a domain error
func StatusFor(err *shared.DomainError) int {
	if status, ok := codeStatus[err.Code]; ok {
		return status
	}
	if status, ok := kindStatus[err.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// MessageFor returns the client-facing message of a domain error. A lost race
// tells the caller to retry (busy errors already say so).
func MessageFor(err *shared.DomainError) string {
	switch err.Kind {
	case shared.KindConflict:
		return err.Message + ", try again"
	case shared.KindState:
		return "This order cannot be modified: " + err.Message
	default:
		return err.Message
	}
}
