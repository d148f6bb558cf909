package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smurching/cloudnotes/internal/handler"
	"github.com/smurching/cloudnotes/internal/metrics"
	"github.com/smurching/cloudnotes/internal/middleware"
	"github.com/smurching/cloudnotes/internal/routes"
)

type Options struct {
	CORSOrigins []string
	Metrics     *metrics.Metrics

	// HealthChecks are probed by /health, keyed by dependency name
	HealthChecks map[string]func(context.Context) error
}

func NewServer(
	fileHandler *handler.FileHandler,
	adminHandler *handler.AdminHandler,
	authMiddleware *middleware.AuthMiddleware,
	opts Options,
) *gin.Engine {
	g := gin.Default()

	// keys may contain '/', sent as %2F inside a single path segment
	g.UseRawPath = true
	g.UnescapePathValues = true

	g.Use(middleware.CORS(opts.CORSOrigins))

	g.GET("/health", health(opts.HealthChecks))
	if opts.Metrics != nil {
		g.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	api := g.Group("/api/v1")
	routes.RegisterRoutes(api, fileHandler, adminHandler, authMiddleware)

	return g
}

func health(checks map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		failing := gin.H{}
		for name, check := range checks {
			if err := check(c); err != nil {
				failing[name] = err.Error()
			}
		}

		if len(failing) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failing": failing})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
