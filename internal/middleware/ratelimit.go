package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// WriteRateLimit rejects writes once the session's limiter runs dry.
func WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := CurrentSession(c)
		if sess == nil || sess.Limiter() == nil {
			c.Next()
			return
		}
		if !sess.Limiter().Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
