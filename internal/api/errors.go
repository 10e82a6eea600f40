package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/safegear/services/ppe/internal/metrics"
	"example.com/safegear/services/ppe/internal/model"
	"example.com/safegear/services/ppe/internal/repository"
	"example.com/safegear/services/ppe/internal/service"
	"example.com/safegear/services/ppe/internal/signer"
)

// ErrorResponse is the JSON error envelope returned by every endpoint
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeError maps domain errors onto HTTP status codes and a stable error
// code vocabulary
func writeError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		stockErr      *service.StockConflictError
		transitionErr *model.InvalidTransitionError
		signerErr     *signer.UnavailableError
	)

	switch {
	case errors.As(err, &validationErr):
		metrics.GetCollector().RecordError(metrics.ErrorTypeValidation)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: validationErr.Msg,
		})
	case errors.Is(err, repository.ErrNotFound):
		metrics.GetCollector().RecordError(metrics.ErrorTypeNotFound)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "resource not found",
		})
	case errors.As(err, &stockErr):
		metrics.GetCollector().RecordError(metrics.ErrorTypeConflict)
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "INSUFFICIENT_STOCK",
			Message: stockErr.Error(),
			Details: gin.H{
				"item_id":   stockErr.ItemID,
				"on_hand":   stockErr.OnHand,
				"reserved":  stockErr.Reserved,
				"requested": stockErr.Requested,
				"available": stockErr.Available,
			},
		})
	case errors.As(err, &transitionErr):
		metrics.GetCollector().RecordError(metrics.ErrorTypeConflict)
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "INVALID_TRANSITION",
			Message: transitionErr.Error(),
			Details: gin.H{
				"from":    transitionErr.From,
				"to":      transitionErr.To,
				"allowed": transitionErr.Allowed,
			},
		})
	case errors.As(err, &signerErr):
		metrics.GetCollector().RecordError(metrics.ErrorTypeExternal)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "SIGNER_UNAVAILABLE",
			Message: signerErr.Error(),
		})
	default:
		metrics.GetCollector().RecordError(metrics.ErrorTypeInternal)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "an unexpected error occurred",
		})
	}
}

// writeBindError reports a malformed request body
func writeBindError(c *gin.Context, err error) {
	metrics.GetCollector().RecordError(metrics.ErrorTypeValidation)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    "INVALID_REQUEST",
		Message: err.Error(),
	})
}
