package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"rl-replay/internal/playlist"

	"github.com/gorilla/websocket"
)

const (
	MsgSnapshot  = "snapshot"
	MsgClipSaved = "clip_saved"
)

// Message is the envelope pushed to every connected front end.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub fans clip events out to websocket clients. It implements
// playlist.Notifier.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	snapshot func() ([]playlist.Clip, error)
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewHub returns a Hub. snapshot, if non-nil, supplies the clip window sent
// to each client on connect.
func NewHub(snapshot func() ([]playlist.Clip, error), log *slog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*client]bool),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			// The front end is served from a different local origin in dev.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP upgrades the request and registers the client until it
// disconnects. Inbound messages are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	h.log.Debug("ws client connected", slog.String("remote", r.RemoteAddr))
	c := h.add(conn)

	go func() {
		defer func() {
			h.remove(c)
			h.log.Debug("ws client disconnected", slog.String("remote", r.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := newClient(conn)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	if h.snapshot == nil {
		return c
	}
	clips, err := h.snapshot()
	if err != nil {
		h.log.Warn("ws snapshot failed", slog.String("error", err.Error()))
		return c
	}
	if data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: clips}); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClipSaved implements playlist.Notifier.
func (h *Hub) ClipSaved(c playlist.Clip) {
	h.broadcast(Message{Type: MsgClipSaved, Payload: c})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("ws client too slow, disconnecting")
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
