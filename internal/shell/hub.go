package shell

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"cambio_go/internal/event"
	"cambio_go/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Hub tracks connected WebSocket clients and pushes engine events to
// them. Writes to one connection are serialized by a per-client mutex.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	metrics *infra.Metrics
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewHub creates an empty Hub
func NewHub(metrics *infra.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		metrics: metrics,
	}
}

// Add registers a connection and returns its client ID.
func (h *Hub) Add(conn *websocket.Conn) string {
	id := uuid.New().String()

	h.mu.Lock()
	h.clients[id] = &client{conn: conn}
	h.mu.Unlock()

	h.metrics.IncrementWSClients()
	slog.Debug("WebSocket client connected", slog.String("client", id))
	return id
}

// Remove drops a client and closes its connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if ok {
		c.conn.Close()
		h.metrics.DecrementWSClients()
		slog.Debug("WebSocket client disconnected", slog.String("client", id))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast pushes one event to every connected client. Clients that
// fail the write are dropped; a broken browser tab must not wedge the
// refresh path.
func (h *Hub) Broadcast(env event.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Error("Failed to encode event", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	targets := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		targets[id] = c
	}
	h.mu.RUnlock()

	for id, c := range targets {
		if err := c.write(payload); err != nil {
			slog.Warn("Dropping unresponsive WebSocket client",
				slog.String("client", id),
				slog.Any("error", err),
			)
			h.Remove(id)
		}
	}
}

// SendTo pushes one event to a single client, e.g. the initial rates
// snapshot right after connecting.
func (h *Hub) SendTo(id string, env event.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := c.write(payload); err != nil {
		h.Remove(id)
		return err
	}
	return nil
}

func (c *client) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}
