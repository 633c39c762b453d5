package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-sync/internal/docstore"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newConnID() string {
	return uuid.NewString()
}

// subscriptionCloser lets a client own a store subscription.
type subscriptionCloser struct {
	docstore.Subscription
}

func (s subscriptionCloser) Close() error {
	s.Stop()
	return nil
}
