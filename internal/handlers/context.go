package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/session"
	"chat-sync/internal/telemetry"
)

// requestContext carries the request id into events emitted while serving c.
func requestContext(c *gin.Context) context.Context {
	return telemetry.WithRequestID(c.Request.Context(), c.GetString(observability.RequestIDKey))
}

func currentSession(c *gin.Context) (*session.Session, bool) {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return nil, false
	}
	return sess, true
}
