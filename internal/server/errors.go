package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	cartdomain "github.com/soundcrate/soundcrate/internal/cart/domain"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
	"github.com/soundcrate/soundcrate/internal/pricing"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, downloaddomain.ErrNotEntitled):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "not entitled to this release",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, downloaddomain.ErrArtifactExpired):
		return http.StatusGone, errorPayload{
			Type:    "artifact_expired",
			Message: "artifact expired, request the download again",
		}
	case errors.Is(err, downloaddomain.ErrArtifactNotReady):
		return http.StatusConflict, errorPayload{
			Type:    "artifact_not_ready",
			Message: "artifact is still being packaged",
		}
	case errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, orderdomain.ErrOrderNotPayable),
		errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, orderdomain.ErrEmptyOrder),
		errors.Is(err, orderdomain.ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment gateway unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrReleaseNotFound),
		errors.Is(err, catalogdomain.ErrProductNotFound),
		errors.Is(err, cartdomain.ErrItemNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, downloaddomain.ErrJobNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, paymentdomain.ErrUnknownIntent),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pricing.ErrInvalidPrice),
		errors.Is(err, catalogdomain.ErrInvalidProduct),
		errors.Is(err, cartdomain.ErrInvalidUser),
		errors.Is(err, downloaddomain.ErrUnsupportedFormat),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrUntrustedEvent),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

// classifyErrorForLog keys request-log lines by error family so the
// access log can distinguish client mistakes from server faults.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server_error", payload.Type
	case status >= 400:
		return "client_error", payload.Type
	default:
		return "none", payload.Type
	}
}
