package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TypeConnection is sent to a client right after it registers.
const TypeConnection = "connection"

// Message is the envelope written to every client.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks connected clients and fans published messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
}

// NewHub creates a hub. An empty allowedOrigins list or one containing "*"
// accepts any Origin header.
func NewHub(allowedOrigins []string, logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.WithField("component", "websocket.hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(set) == 0 || origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades the request and registers the connection as a client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	client := newClient(h, conn)
	if !h.register(client) {
		_ = conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":     c.id,
		"remote_addr":   c.remoteAddr,
		"total_clients": count,
	}).Info("Client registered")

	if data, err := json.Marshal(Message{
		Type: TypeConnection,
		Data: map[string]string{"status": "connected", "client_id": c.id},
	}); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.WithFields(logrus.Fields{
			"client_id":           c.id,
			"total_clients":       count,
			"connection_duration": time.Since(c.connectedAt).String(),
		}).Info("Client unregistered")
	}
}

// Publish sends {"type": topic, "data": payload} to every client. Clients
// whose send buffer is full are disconnected.
func (h *Hub) Publish(topic string, payload interface{}) {
	data, err := json.Marshal(Message{Type: topic, Data: payload})
	if err != nil {
		h.logger.WithError(err).WithField("topic", topic).Error("Failed to encode broadcast")
		return
	}

	var dropped []*Client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped = append(dropped, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range dropped {
		h.logger.WithField("client_id", c.id).Warn("Client buffer full, disconnecting")
		h.unregister(c)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
