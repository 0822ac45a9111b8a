package viz

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"farol/internal/grid"
	"farol/internal/logging"
)

const (
	MessageFrame = "frame"
	MessageClose = "close"
)

// Message is the JSON envelope exchanged with viewers.
type Message struct {
	Type  string         `json:"type"`
	Frame *grid.Snapshot `json:"frame,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub broadcasts frames to websocket viewers. A viewer sending
// {"type":"close"} closes the hub, which ends the run.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *grid.Snapshot

	closed atomic.Bool
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logging.OrDiscard(logger),
		clients:  make(map[*client]struct{}),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "err", err)
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.last
	h.mu.Unlock()
	h.logger.Debug("viewer connected", "remote", r.RemoteAddr)

	if last != nil {
		_ = c.send(Message{Type: MessageFrame, Frame: last})
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == MessageClose {
			h.logger.Info("viewer requested close", "remote", r.RemoteAddr)
			h.closed.Store(true)
		}
	}
	h.drop(c)
}

func (h *Hub) Publish(snapshot grid.Snapshot) error {
	h.mu.Lock()
	h.last = &snapshot
	list := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		list = append(list, c)
	}
	h.mu.Unlock()

	msg := Message{Type: MessageFrame, Frame: &snapshot}
	for _, c := range list {
		if err := c.send(msg); err != nil {
			h.logger.Warn("viewer send", "err", err)
			h.drop(c)
		}
	}
	return nil
}

func (h *Hub) Open() bool {
	return !h.closed.Load()
}

// Clients reports the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close marks the hub closed and disconnects every viewer.
func (h *Hub) Close() error {
	h.closed.Store(true)
	h.mu.Lock()
	list := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		list = append(list, c)
	}
	h.mu.Unlock()
	for _, c := range list {
		h.drop(c)
	}
	return nil
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}
