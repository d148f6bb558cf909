package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smurching/cloudnotes/internal/middleware"
	"github.com/smurching/cloudnotes/internal/service"
	"github.com/smurching/cloudnotes/internal/types"
)

type AdminHandler struct {
	files *service.Files
}

func NewAdminHandler(files *service.Files) *AdminHandler {
	return &AdminHandler{
		files: files,
	}
}

func (h *AdminHandler) Sweep(c *gin.Context) {
	report, err := h.files.Sweep(c)
	if err != nil {
		respondError(c, err, "Sweep failed")
		return
	}
	log.Printf("🧹 Sweep triggered by %s: %+v", middleware.GetUserEmail(c), report)

	c.JSON(http.StatusOK, report)
}

// Retry takes the full object key, tenant prefix included.
func (h *AdminHandler) Retry(c *gin.Context) {
	objectKey := strings.TrimPrefix(c.Param("key"), "/")
	if err := types.ValidateKey(objectKey); err != nil {
		respondError(c, err, "")
		return
	}

	rec, err := h.files.Retry(c, objectKey)
	if err != nil {
		respondError(c, err, "Failed to retry file")
		return
	}
	log.Printf("🔄 %s requeued by %s", objectKey, middleware.GetUserEmail(c))

	c.JSON(http.StatusOK, rec)
}
