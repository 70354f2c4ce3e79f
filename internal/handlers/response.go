package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/canteen-orderflow/internal/catalog"
	"github.com/imrishuroy/canteen-orderflow/internal/lifecycle"
)

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

// respondError maps domain errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a generic 500.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	respondMessage(c, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, lifecycle.ErrPaymentVerificationFailed):
		return http.StatusBadRequest, "payment verification failed"
	case errors.Is(err, lifecycle.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, catalog.ErrItemNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, lifecycle.ErrInsufficientStock),
		errors.Is(err, lifecycle.ErrInvalidState),
		errors.Is(err, lifecycle.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
