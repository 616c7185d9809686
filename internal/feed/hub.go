package feed

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// sendBuffer is the per-client queue depth. Broadcasts never block the
// bus; a client whose queue is full misses the message instead.
const sendBuffer = 256

// Hub tracks connected feed clients and fans broadcasts out to their
// send queues.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.logger.Debug("feed client connected",
		zap.String("remote", c.remote),
		zap.Int("clients", len(h.clients)))
}

// Unregister removes a client and closes its send channel. Unregistering
// a client that is not in the hub is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Debug("feed client disconnected",
			zap.String("remote", c.remote),
			zap.Int("clients", len(h.clients)))
	}
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client send buffer full, dropping message",
				zap.String("remote", c.remote),
				zap.String("type", string(msg.Type)))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is a single WebSocket subscriber.
type Client struct {
	conn   *websocket.Conn
	remote string
	send   chan Message
	logger *zap.Logger
}

// writePump drains the send channel onto the connection. It returns when
// the context ends, the channel closes, or a write fails.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("feed write failed",
					zap.String("remote", c.remote),
					zap.Error(err))
				return
			}
		}
	}
}

// readPump consumes inbound frames until the peer disconnects. The feed
// is broadcast-only, so payloads are discarded; reading keeps the
// connection's control frames serviced.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
