package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"subline/internal/authz"
	"subline/internal/services"
)

// statusFor maps a classified error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConsistency):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

func errorKind(err error) string {
	if errors.Is(err, authz.ErrForbidden) {
		return "forbidden"
	}
	return services.Details(err).Kind
}

// jsonError writes a structured error response and aborts the chain.
func jsonError(c *gin.Context, status int, message, hint string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: APIError{
		Code:    codeFor(status),
		Message: message,
		Hint:    hint,
	}})
}

func badRequest(c *gin.Context, message string) {
	jsonError(c, http.StatusBadRequest, message, "")
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	hint := ""
	if !errors.Is(err, authz.ErrForbidden) {
		hint = services.Details(err).Hint
	}
	jsonError(c, status, err.Error(), hint)
}

func errInvalidParam(name, value string) error {
	return fmt.Errorf("invalid %s %q", name, value)
}
