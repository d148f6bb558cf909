package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smurching/cloudnotes/internal/middleware"
	"github.com/smurching/cloudnotes/internal/service"
	"github.com/smurching/cloudnotes/internal/types"
)

type FileHandler struct {
	files          *service.Files
	maxUploadBytes int64
}

func NewFileHandler(files *service.Files, maxUploadBytes int64) *FileHandler {
	return &FileHandler{
		files:          files,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *FileHandler) GetUploadUrl(c *gin.Context) {
	userID := middleware.GetUserID(c)

	resp, err := h.files.IssueUploadURL(c, userID, c.Param("key"))
	if err != nil {
		respondError(c, err, "Failed to generate upload URL")
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *FileHandler) GetDownloadUrl(c *gin.Context) {
	userID := middleware.GetUserID(c)

	variant, err := types.ParseVariant(c.Query("variant"))
	if err != nil {
		respondError(c, err, "")
		return
	}

	resp, err := h.files.IssueDownloadURL(c, userID, c.Param("key"), variant)
	if err != nil {
		respondError(c, err, "Failed to generate download URL")
		return
	}

	c.JSON(http.StatusOK, resp)
}

type RegisterBody struct {
	Size int64 `json:"size" binding:"required"`
}

func (h *FileHandler) Register(c *gin.Context) {
	body := &RegisterBody{}

	if err := c.ShouldBindJSON(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request data",
		})
		return
	}

	rec, err := h.files.RegisterUpload(c, middleware.GetUserID(c), c.Param("key"), body.Size)
	if err != nil {
		respondError(c, err, "Failed to register upload")
		return
	}

	c.JSON(http.StatusCreated, rec)
}

func (h *FileHandler) UploadContent(c *gin.Context) {
	body := c.Request.Body
	if h.maxUploadBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxUploadBytes)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "File exceeds the upload limit",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	rec, err := h.files.UploadContent(c, middleware.GetUserID(c), c.Param("key"), data, c.ContentType())
	if err != nil {
		respondError(c, err, "Failed to upload file")
		return
	}

	c.JSON(http.StatusCreated, rec)
}

func (h *FileHandler) Status(c *gin.Context) {
	rec, err := h.files.Status(c, middleware.GetUserID(c), c.Param("key"))
	if err != nil {
		respondError(c, err, "Failed to load file status")
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.Delete(c, middleware.GetUserID(c), c.Param("key")); err != nil {
		respondError(c, err, "Failed to delete file")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *FileHandler) ListFiles(c *gin.Context) {
	resp, err := h.files.List(c, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "Failed to list files")
		return
	}

	c.JSON(http.StatusOK, resp)
}
