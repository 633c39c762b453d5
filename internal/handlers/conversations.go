package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/conversation"
	"chat-sync/internal/convid"
)

// ConversationHandler serves message history, sending and the seen flag.
type ConversationHandler struct {
	conversations *conversation.Service
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations *conversation.Service) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// History returns the messages exchanged with friend_id, oldest first.
func (h *ConversationHandler) History(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	key, err := convid.Key(sess.UserID, c.Param("friend_id"))
	if err != nil {
		respondError(c, err, "invalid friend id", nil)
		return
	}

	messages, err := h.conversations.History(c.Request.Context(), key)
	if err != nil {
		respondError(c, err, "failed to load messages", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": key, "messages": messages})
}

// Send sends {text} to friend_id. A failed write returns the unsent draft.
func (h *ConversationHandler) Send(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, draft, err := h.conversations.Compose(requestContext(c), sess.Drafts(), sess.Profile(), c.Param("friend_id"), req.Text)
	if err != nil {
		var extra gin.H
		if draft != "" {
			extra = gin.H{"draft": draft}
		}
		respondError(c, err, "message could not be sent", extra)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkSeen flags the conversation with friend_id as seen.
func (h *ConversationHandler) MarkSeen(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	key, err := convid.Key(sess.UserID, c.Param("friend_id"))
	if err != nil {
		respondError(c, err, "invalid friend id", nil)
		return
	}

	if err := h.conversations.MarkSeen(requestContext(c), key, sess.UserID); err != nil {
		respondError(c, err, "could not mark conversation seen", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// Draft returns the text of a send that did not go through.
func (h *ConversationHandler) Draft(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	key, err := convid.Key(sess.UserID, c.Param("friend_id"))
	if err != nil {
		respondError(c, err, "invalid friend id", nil)
		return
	}

	draft, found := sess.Drafts().Restore(key)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no draft"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": draft})
}
