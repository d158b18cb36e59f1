package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Compile-time interface check.
var _ domain.EventSink = (*Hub)(nil)

// client is one connected dashboard or overlay page.
type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub fans slot events out to every connected client. Publish never
// blocks: a client whose buffer is full misses the frame.
type Hub struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{log: log, clients: make(map[uuid.UUID]*client)}
}

// Publish broadcasts ev to every client.
func (h *Hub) Publish(ev domain.Event) {
	frame, err := EncodeEvent(ev)
	if err != nil {
		h.log.Warn("dashboard: %v", err)
		return
	}
	h.broadcast(frame)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Warn("dashboard: client %s is slow, dropping frame", c.id)
		}
	}
}

func (h *Hub) sendTo(c *client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("dashboard: client %s connected (%d total)", c.id, n)
	go h.writeLoop(c)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("dashboard: client %s disconnected (%d total)", c.id, n)
}

// writeLoop is the only writer to c.conn.
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.log.Debug("dashboard: write to %s: %v", c.id, err)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
