package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-sync-service/internal/apperrors"
	"marketplace-sync-service/internal/repository"
)

// statusFor maps an error onto the HTTP status returned to the caller
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrNoUpdateFields):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrSyncInProgress),
		errors.Is(err, apperrors.ErrConnectionExists),
		errors.Is(err, apperrors.ErrInvalidConflictTransition),
		errors.Is(err, apperrors.ErrConcurrentModification):
		return http.StatusConflict
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindAuthentication:
		return http.StatusUnauthorized
	case apperrors.KindInsufficientCredits:
		return http.StatusPaymentRequired
	case apperrors.KindConflictDetected:
		return http.StatusConflict
	case apperrors.KindNotFound, apperrors.KindCredentialNotFound:
		return http.StatusNotFound
	case apperrors.KindUnsupportedMarketplace:
		return http.StatusUnprocessableEntity
	case apperrors.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case apperrors.KindTransientNetwork, apperrors.KindTimeout, apperrors.KindOperationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body. Internal failures are not echoed.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	c.JSON(status, gin.H{"error": message})
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

// parseOptionalID reads an optional uuid query parameter
func parseOptionalID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return nil, false
	}
	return &id, true
}

func listOptions(c *gin.Context) repository.ListOptions {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return repository.ListOptions{Limit: limit, Offset: offset}
}
