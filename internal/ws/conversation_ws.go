package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chat-sync/internal/convid"
	"chat-sync/internal/docstore"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
)

// ConversationViewer serves an open conversation view.
type ConversationViewer interface {
	MarkSeen(ctx context.Context, conversationID, viewerID string) error
	WatchMessages(ctx context.Context, conversationID string, fn func([]models.Message, error)) (docstore.Subscription, error)
}

// ConversationWebSocketHandler pushes the live messages of one conversation.
type ConversationWebSocketHandler struct {
	hub           *Hub
	conversations ConversationViewer
	log           logrus.FieldLogger
}

// NewConversationWebSocketHandler constructs a ConversationWebSocketHandler.
func NewConversationWebSocketHandler(hub *Hub, conversations ConversationViewer, log logrus.FieldLogger) *ConversationWebSocketHandler {
	return &ConversationWebSocketHandler{hub: hub, conversations: conversations, log: log}
}

// Handle upgrades the connection, streams the conversation with friend_id
// and marks it seen.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	conversationID, err := convid.Key(sess.UserID, c.Param("friend_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid friend id"})
		return
	}

	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "ws.conversation.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client, err := h.hub.connect(context.WithoutCancel(ctx), conn, KindConversation, sess, connInfo(c, sess.UserID, span))
	if err != nil {
		return
	}
	log := h.log.WithFields(logrus.Fields{"user_id": sess.UserID, "conversation_id": conversationID, "conn_id": client.info.ConnID})

	sub, err := h.conversations.WatchMessages(client.Context(), conversationID, func(msgs []models.Message, err error) {
		if err != nil {
			log.WithError(err).Warn("message subscription failed")
			client.Send(models.AlertEvent{Type: models.EventAlert, Error: "messages unavailable"})
			return
		}
		client.Send(models.MessagesEvent{Type: models.EventMessages, ConversationID: conversationID, Messages: msgs})
	})
	if err != nil {
		log.WithError(err).Error("messages unavailable")
		client.closeWith("messages unavailable")
		return
	}
	client.Own(subscriptionCloser{sub})

	if err := h.conversations.MarkSeen(client.Context(), conversationID, sess.UserID); err != nil {
		log.WithError(err).Warn("mark seen failed")
		client.Send(models.AlertEvent{Type: models.EventAlert, Error: "could not mark conversation as seen"})
	}
}
