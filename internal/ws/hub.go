// Package ws fans status events out to connected dashboard observers. It is
// a read-only mirror: nothing here feeds back into approval state.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/toora-ai/be-approvals/internal/logger"
)

const (
	// sendBuffer is the per-observer backlog. An observer that falls this
	// far behind is dropped rather than allowed to block delivery.
	sendBuffer = 16

	writeTimeout = 5 * time.Second
)

// Hub owns the observer set and broadcasts payloads to every connected
// socket, at most once each.
type Hub struct {
	log *logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams broadcasts until
// the observer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("ws: accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	h.add(c)
	defer h.remove(c)

	// Observers are write-only; CloseRead surfaces disconnects via ctx.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Broadcast delivers payload to every connected observer. Delivery is
// at-most-once per observer; a full send buffer means the observer is too
// slow and its connection is closed instead of blocking the others.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warn().Msg("ws: dropping slow observer")
			go c.conn.Close(websocket.StatusPolicyViolation, "observer too slow")
		}
	}
}

// Relay broadcasts every payload from messages until the channel closes or
// ctx is done. Wired to the event bus subscription by the server.
func (h *Hub) Relay(ctx context.Context, messages <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-messages:
			if !ok {
				return
			}
			h.Broadcast(payload)
		}
	}
}

// Count reports the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.log.Info().Int("total", len(h.clients)).Msg("ws: observer connected")
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	h.log.Info().Int("total", len(h.clients)).Msg("ws: observer disconnected")
}
