package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/observability"
	"chat-sync/internal/session"
	"chat-sync/internal/telemetry"
)

// Hub tracks the websocket clients of every user.
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	events  *telemetry.Emitter
	log     logrus.FieldLogger
}

// NewHub creates an empty hub.
func NewHub(events *telemetry.Emitter, log logrus.FieldLogger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		events:  events,
		log:     log,
	}
}

// connect registers conn as a client of sess and starts its pumps. The
// client is owned by the session, so logout closes it.
func (h *Hub) connect(ctx context.Context, conn wsConn, kind string, sess *session.Session, info ConnInfo) (*Client, error) {
	client := newClient(ctx, h, conn, kind, sess, info)
	h.add(client)
	observability.IncWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	h.publishWSEvent(client, "ws_connect", "")

	if err := sess.Own(client); err != nil {
		return nil, err
	}
	go client.writePump()
	go client.readPump()
	return client, nil
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.info.UserID]; !ok {
		h.clients[c.info.UserID] = make(map[*Client]struct{})
	}
	h.clients[c.info.UserID][c] = struct{}{}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[c.info.UserID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, c.info.UserID)
		}
	}
}

// Count returns the number of open connections of a user.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// CloseUser closes every connection of a user.
func (h *Hub) CloseUser(userID string) {
	for _, c := range h.snapshot(userID) {
		_ = c.Close()
	}
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	for _, c := range h.snapshot("") {
		_ = c.Close()
	}
}

func (h *Hub) snapshot(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Client
	for id, clients := range h.clients {
		if userID != "" && id != userID {
			continue
		}
		for c := range clients {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) publishWSEvent(c *Client, event, reason string) {
	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(c.info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        c.kind,
			"event":       event,
			"conn_id":     c.info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id": c.info.UserID,
			"ip":      c.info.IP,
		},
	}

	ctx := telemetry.WithRequestID(context.Background(), c.info.RequestID)
	h.events.Emit(ctx, wsRoutingKey(c.kind), c.info.UserID, payload)
	if h.log != nil && event == "ws_error" {
		h.log.WithFields(logrus.Fields{"conn_id": c.info.ConnID, "kind": c.kind, "reason": reason}).Warn("websocket error")
	}
}

func wsRoutingKey(kind string) string {
	if kind == KindConversation {
		return "ws_events.conversations"
	}
	return "ws_events.friends"
}

func connInfo(c *gin.Context, userID string, span trace.Span) ConnInfo {
	requestID := c.GetString(observability.RequestIDKey)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	return ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
}
