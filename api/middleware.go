// ffwatcher/api/middleware.go
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"ffwatcher/config"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware guards the API with the configured bearer token. With auth
// disabled every request passes through. Rejections are logged at warn level
// with the caller's address.
func AuthMiddleware(cfg *config.Config, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AuthEnable {
			c.Next()
			return
		}

		scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			log.Warn("rejected request without bearer token", "remote", c.ClientIP(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}
		if token != cfg.AuthKey {
			log.Warn("rejected request with invalid token", "remote", c.ClientIP(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Next()
	}
}
