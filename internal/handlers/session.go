package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/session"
)

// SessionHandler opens and closes sessions.
type SessionHandler struct {
	sessions *session.Manager
}

// NewSessionHandler builds a SessionHandler.
func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Login creates a session and the user's profile on first use.
func (h *SessionHandler) Login(c *gin.Context) {
	var req session.Identity
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessions.Login(requestContext(c), req)
	if err != nil {
		respondError(c, err, "could not open session", nil)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": sess.Token, "user": sess.Profile()})
}

// Logout ends the session and closes its live views.
func (h *SessionHandler) Logout(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	if err := h.sessions.Logout(sess.Token); err != nil && !errors.Is(err, session.ErrUnknownSession) {
		_ = c.Error(err)
	}
	c.Status(http.StatusNoContent)
}
