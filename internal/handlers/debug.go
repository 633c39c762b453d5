package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/middleware"
	"chat-sync/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.Emitter, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/events", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event emitter not configured"})
			return
		}
		userID := ""
		if sess := middleware.CurrentSession(c); sess != nil {
			userID = sess.UserID
		}
		emitter.Emit(requestContext(c), "debug.test", userID, gin.H{"status": "ok"})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
