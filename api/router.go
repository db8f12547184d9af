// ffwatcher/api/router.go
package api

import (
	"log/slog"

	"ffwatcher/config"

	"github.com/gin-gonic/gin"
)

func SetupRouter(jobs JobLister, cfg *config.Config, log *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h := NewHandler(jobs)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg, log))
	{
		v1.GET("/jobs", h.handleListJobs)
		v1.GET("/jobs/:jobId", h.handleGetJob)
	}
	return r
}
