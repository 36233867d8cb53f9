package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Domenick1991/ticketbooking/internal/domain"
	"github.com/gin-gonic/gin"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrLockBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrExpired),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrAmountMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
