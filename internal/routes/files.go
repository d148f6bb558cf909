package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/smurching/cloudnotes/internal/handler"
	"github.com/smurching/cloudnotes/internal/middleware"
)

func RegisterRoutes(
	router *gin.RouterGroup,
	fileHandler *handler.FileHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	files := router.Group("/files")
	files.Use(authMiddleware.RequireAuth())
	{
		files.GET("", fileHandler.ListFiles)
		files.GET("/:key/upload-url", fileHandler.GetUploadUrl)
		files.GET("/:key/download-url", fileHandler.GetDownloadUrl)
		files.GET("/:key/status", fileHandler.Status)
		files.POST("/:key", fileHandler.Register)
		files.PUT("/:key/content", fileHandler.UploadContent)
		files.DELETE("/:key", fileHandler.Delete)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware.RequireAuth(), authMiddleware.RequireRole(middleware.RoleOperator))
	{
		admin.POST("/sweep", adminHandler.Sweep)
		admin.POST("/retry/*key", adminHandler.Retry)
	}
}
