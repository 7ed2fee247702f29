package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ecomops/opsloop/pkg/checkpoint"
	"github.com/ecomops/opsloop/pkg/services"
	"github.com/ecomops/opsloop/pkg/session"
)

// mapServiceError maps service-layer errors to HTTP error responses. Bodies
// are `{"detail": ...}` across the board.
func mapServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": validErr.Error()})
		return
	}
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "resource not found"})
		return
	}
	if errors.Is(err, checkpoint.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "thread not found"})
		return
	}
	if errors.Is(err, services.ErrAlreadyTerminal) || errors.Is(err, services.ErrInvalidTransition) {
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		return
	}
	if errors.Is(err, session.ErrThreadBusy) {
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		return
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}
