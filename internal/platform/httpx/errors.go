// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/miq-labs/miq-be/internal/shared"
)

// Reason codes surfaced to callers in problem documents.
const (
	CodeNotAuthenticated       = "NOT_AUTHENTICATED"
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSION"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeConfigurationError     = "CONFIGURATION_ERROR"
	CodeValidationError        = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeDuplicate              = "DUPLICATE"
	CodeInternal               = "INTERNAL"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", CodeNotFound, err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", CodeDuplicate, err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrNotAuthenticated):
		w.Header().Set("WWW-Authenticate", "Bearer")
		Problem(w, http.StatusUnauthorized, "Unauthorized", CodeNotAuthenticated, err.Error())
	case errors.Is(err, shared.ErrPermissionDenied):
		Problem(w, http.StatusForbidden, "Forbidden", CodeInsufficientPermission, err.Error())
	case errors.Is(err, shared.ErrRateLimited):
		Problem(w, http.StatusTooManyRequests, "Too Many Requests", CodeRateLimitExceeded, err.Error())
	case errors.Is(err, shared.ErrConfiguration):
		Problem(w, http.StatusInternalServerError, "Configuration Error", CodeConfigurationError, err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", CodeInternal, "")
	}
}
