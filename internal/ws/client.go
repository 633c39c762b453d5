package ws

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"chat-sync/internal/observability"
	"chat-sync/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Connection kinds.
const (
	KindFriends      = "friends"
	KindConversation = "conversation"
)

type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one websocket connection. It owns the live views pushed over it
// and tears them down when the connection ends. Only the write pump writes
// to the connection.
type Client struct {
	hub  *Hub
	conn wsConn
	kind string
	info ConnInfo
	sess *session.Session

	ctx    context.Context
	cancel context.CancelFunc
	send   chan []byte
	closed chan struct{}

	mu        sync.Mutex
	views     []io.Closer
	closeOnce sync.Once
}

func newClient(ctx context.Context, hub *Hub, conn wsConn, kind string, sess *session.Session, info ConnInfo) *Client {
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		hub:    hub,
		conn:   conn,
		kind:   kind,
		info:   info,
		sess:   sess,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Context ends when the client closes.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Own ties v to the connection's lifetime.
func (c *Client) Own(v io.Closer) {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		_ = v.Close()
		return
	default:
	}
	c.views = append(c.views, v)
	c.mu.Unlock()
}

// Send queues event for delivery. A client that falls a full buffer behind
// is disconnected.
func (c *Client) Send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.hub.log.WithError(err).WithField("conn_id", c.info.ConnID).Error("websocket event encoding failed")
		return
	}
	select {
	case <-c.closed:
	case c.send <- payload:
	default:
		go c.closeWith("send buffer full")
	}
}

// Close ends the connection and everything it owns.
func (c *Client) Close() error {
	c.closeWith("closed by server")
	return nil
}

func (c *Client) closeWith(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.closed)
		views := c.views
		c.views = nil
		c.mu.Unlock()

		for i := len(views) - 1; i >= 0; i-- {
			_ = views[i].Close()
		}
		c.cancel()
		_ = c.conn.Close()
		if c.sess != nil {
			c.sess.Release(c)
		}
		c.hub.remove(c)

		observability.DecWSActive(c.kind)
		observability.IncWSEvent(c.kind, "ws_disconnect")
		c.hub.publishWSEvent(c, "ws_disconnect", reason)
	})
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				observability.IncWSEvent(c.kind, "ws_error")
				c.hub.publishWSEvent(c, "ws_error", err.Error())
				c.closeWith(err.Error())
				return
			}
		}
	}
}

// readPump drains the connection until it fails; clients write over HTTP.
func (c *Client) readPump() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(c.kind, "ws_error")
				c.hub.publishWSEvent(c, "ws_error", err.Error())
			}
			c.closeWith(err.Error())
			return
		}
	}
}
