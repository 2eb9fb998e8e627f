package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/httputil"
	"github.com/persistorai/auditledger/internal/metrics"
	"github.com/persistorai/auditledger/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternalError   = "internal_error"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeValidationError = "validation_error"
	ErrCodeEmptyBatch      = "empty_batch"
	ErrCodeEventPending    = "event_pending"
	ErrCodeSealingTimeout  = "sealing_timeout"
	ErrCodeSigningError    = "signing_error"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondServiceError maps a ledger error onto a status and code. Unknown
// errors are logged under action and reported as 500.
func respondServiceError(c *gin.Context, log *logrus.Logger, action string, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidEvent):
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
	case errors.Is(err, models.ErrInvalidQuery):
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, models.ErrEventPending):
		respondError(c, http.StatusConflict, ErrCodeEventPending, err.Error())
	case errors.Is(err, models.ErrEmptyBatch):
		respondError(c, http.StatusConflict, ErrCodeEmptyBatch, "no pending events to seal")
	case errors.Is(err, models.ErrSealingTimeout):
		log.WithError(err).Warn(action)
		respondError(c, http.StatusServiceUnavailable, ErrCodeSealingTimeout, "block could not be sealed within the nonce limit")
	case errors.Is(err, models.ErrSigningService):
		log.WithError(err).Error(action)
		respondError(c, http.StatusBadGateway, ErrCodeSigningError, "signing service unavailable")
	default:
		log.WithError(err).Error(action)
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}
