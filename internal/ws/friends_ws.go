package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"chat-sync/internal/chatsync"
	"chat-sync/internal/docstore"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
)

// PendingWatcher streams the pending friend requests of a user.
type PendingWatcher interface {
	WatchPending(ctx context.Context, userID string, fn func([]models.FriendRequest, error)) (docstore.Subscription, error)
}

// FriendsWebSocketHandler pushes the live friend list and pending requests.
type FriendsWebSocketHandler struct {
	hub      *Hub
	deps     chatsync.Deps
	requests PendingWatcher
	log      logrus.FieldLogger
}

// NewFriendsWebSocketHandler constructs a FriendsWebSocketHandler.
func NewFriendsWebSocketHandler(hub *Hub, deps chatsync.Deps, requests PendingWatcher, log logrus.FieldLogger) *FriendsWebSocketHandler {
	return &FriendsWebSocketHandler{hub: hub, deps: deps, requests: requests, log: log}
}

// Handle upgrades the connection and opens the session's friend list on it.
func (h *FriendsWebSocketHandler) Handle(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}

	ctx, span := telemetry.Tracer().Start(c.Request.Context(), "ws.friends.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client, err := h.hub.connect(context.WithoutCancel(ctx), conn, KindFriends, sess, connInfo(c, sess.UserID, span))
	if err != nil {
		return
	}
	log := h.log.WithFields(logrus.Fields{"user_id": sess.UserID, "conn_id": client.info.ConnID})

	list, err := chatsync.Open(client.Context(), sess, h.deps, func(entries []models.FriendListEntry) {
		client.Send(models.FriendsEvent{Type: models.EventFriends, Entries: entries})
	})
	if err != nil {
		log.WithError(err).Error("friend list unavailable")
		client.closeWith("friend list unavailable")
		return
	}
	client.Own(list)

	pending, err := h.requests.WatchPending(client.Context(), sess.UserID, func(reqs []models.FriendRequest, err error) {
		if err != nil {
			log.WithError(err).Warn("pending requests subscription failed")
			client.Send(models.AlertEvent{Type: models.EventAlert, Error: "friend requests unavailable"})
			return
		}
		client.Send(models.FriendRequestsEvent{Type: models.EventFriendRequests, Requests: reqs})
	})
	if err != nil {
		log.WithError(err).Error("pending requests unavailable")
		client.closeWith("pending requests unavailable")
		return
	}
	client.Own(subscriptionCloser{pending})
}

var _ wsConn = (*websocket.Conn)(nil)
