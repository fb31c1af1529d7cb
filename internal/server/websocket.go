package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/svgrender/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages buffered per client before it is dropped as too slow.
	sendBuffer = 16
)

// ReloadMessage is sent to browsers when a source file changes.
type ReloadMessage struct {
	Type      string    `json:"type"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// client is one connected browser.
type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans reload messages out to connected websocket clients. A single
// goroutine owns the client set.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	clients        map[*client]struct{}
	count          atomic.Int64
	originPatterns []string
	logger         logging.Logger
}

// NewHub creates a hub. originPatterns are host patterns accepted in the
// Origin header besides the request host itself.
func NewHub(originPatterns []string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		register:       make(chan *client),
		unregister:     make(chan *client),
		broadcast:      make(chan []byte, 16),
		done:           make(chan struct{}),
		clients:        make(map[*client]struct{}),
		originPatterns: originPatterns,
		logger:         logger.WithComponent("websocket"),
	}
}

// Run owns the client set until ctx ends. All clients are closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for c := range h.clients {
			h.drop(c, websocket.StatusGoingAway)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug(ctx, "Client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c, websocket.StatusNormalClosure)
				h.logger.Debug(ctx, "Client disconnected", "clients", len(h.clients))
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Client's send channel is full.
					h.drop(c, websocket.StatusPolicyViolation)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client, status websocket.StatusCode) {
	delete(h.clients, c)
	h.count.Store(int64(len(h.clients)))
	close(c.send)
	c.conn.Close(status, "")
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Reload broadcasts a full-reload message.
func (h *Hub) Reload(ctx context.Context, path string) {
	data, err := json.Marshal(ReloadMessage{Type: "full-reload", Path: "*", Timestamp: time.Now()})
	if err != nil {
		h.logger.Error(ctx, err, "Failed to encode reload message")
		return
	}

	select {
	case h.broadcast <- data:
		h.logger.Debug(ctx, "Reload broadcast", "path", path, "clients", h.ClientCount())
	case <-h.done:
	case <-ctx.Done():
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go c.writePump()
	c.readPump()
}

// readPump discards client messages and blocks until the connection
// closes. Pongs are processed by the background reader.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	ctx := c.conn.CloseRead(context.Background())
	<-ctx.Done()
}

// writePump delivers queued messages and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusGoingAway, "ping failed")
				return
			}
		}
	}
}
