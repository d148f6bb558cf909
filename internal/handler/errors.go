package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smurching/cloudnotes/internal/types"
)

// respondError maps pipeline errors onto HTTP statuses. Server-side failures
// are logged and replaced by fallback so internals never reach the client.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		message = fallback
	}

	c.JSON(status, gin.H{
		"error": message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrConflict),
		errors.Is(err, types.ErrAlreadyExists),
		errors.Is(err, types.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
