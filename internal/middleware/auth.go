package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/session"
)

const (
	sessionKey = "session"
	userIDKey  = "userID"
)

// SessionLookup resolves a bearer token to its session.
type SessionLookup interface {
	Lookup(token string) (*session.Session, bool)
}

// SessionAuth resolves the bearer token of the Authorization header, or of
// the token query parameter for websocket upgrades, to a live session.
func SessionAuth(sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		sess, found := sessions.Lookup(token)
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		c.Set(sessionKey, sess)
		c.Set(userIDKey, sess.UserID)
		c.Next()
	}
}

// CurrentSession returns the session SessionAuth attached to c.
func CurrentSession(c *gin.Context) *session.Session {
	if val, ok := c.Get(sessionKey); ok {
		if sess, ok := val.(*session.Session); ok {
			return sess
		}
	}
	return nil
}

// SetSession attaches sess to c the way SessionAuth does.
func SetSession(c *gin.Context, sess *session.Session) {
	c.Set(sessionKey, sess)
	c.Set(userIDKey, sess.UserID)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, true
		}
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
