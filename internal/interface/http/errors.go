package http

import (
	"errors"
	"net/http"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// Error codes returned in APIError.Code.
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeSoulbound            = "SOULBOUND"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeUnavailable          = "SERVICE_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

// statusFor maps a domain error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case shared.IsValidation(err):
		return http.StatusBadRequest, CodeBadRequest
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case shared.IsSoulbound(err):
		return http.StatusForbidden, CodeSoulbound
	case shared.IsForbidden(err):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, shared.ErrPreconditionMissing):
		return http.StatusPreconditionRequired, CodeConfirmationRequired
	case shared.IsRetryable(err):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// publicMessage hides the text of unclassified errors from clients.
func publicMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
