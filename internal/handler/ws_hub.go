package handler

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
	Data    any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action  string `json:"action"` // "subscribe" or "unsubscribe"
	MatchID string `json:"match_id"`
}

// maxSubscriptions caps the matches one connection can follow.
const maxSubscriptions = 16

// ErrTooManySubscriptions is returned by Subscribe past maxSubscriptions.
var ErrTooManySubscriptions = errors.New("too many subscriptions")

// WSConn is one spectator connection. subs is guarded by the hub lock.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	subs   map[string]struct{}
}

// Hub tracks spectator connections and which matches each one follows.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]struct{}
	matches     map[string]map[*WSConn]struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]struct{}),
		matches:     make(map[string]map[*WSConn]struct{}),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = struct{}{}
}

// Unregister drops a connection and its subscriptions and closes its send
// channel. Unregistering twice is a no-op.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[c]; !ok {
		return
	}
	delete(h.connections, c)
	for matchID := range c.subs {
		h.leave(c, matchID)
	}
	close(c.send)
}

// Subscribe adds a connection to a match channel.
func (h *Hub) Subscribe(c *WSConn, matchID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.subs[matchID]; ok {
		return nil
	}
	if len(c.subs) >= maxSubscriptions {
		return ErrTooManySubscriptions
	}
	if c.subs == nil {
		c.subs = make(map[string]struct{})
	}
	c.subs[matchID] = struct{}{}
	if h.matches[matchID] == nil {
		h.matches[matchID] = make(map[*WSConn]struct{})
	}
	h.matches[matchID][c] = struct{}{}
	return nil
}

// Unsubscribe removes a connection from a match channel.
func (h *Hub) Unsubscribe(c *WSConn, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, matchID)
}

// leave requires h.mu held for writing.
func (h *Hub) leave(c *WSConn, matchID string) {
	delete(c.subs, matchID)
	if conns, ok := h.matches[matchID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.matches, matchID)
		}
	}
}

// BroadcastToMatch sends an event to the match's subscribers.
func (h *Hub) BroadcastToMatch(matchID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("matchId", matchID).Msg("Failed to marshal WebSocket event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if dropped := fanout(h.matches[matchID], data); dropped > 0 {
		log.Warn().Str("matchId", matchID).Str("type", event.Type).Int("dropped", dropped).Msg("Slow spectators missed an event")
	}
}

// BroadcastAll sends an event to every connection, subscribed or not.
func (h *Hub) BroadcastAll(event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal WebSocket event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	fanout(h.connections, data)
}

// fanout queues data on each connection without blocking and returns how
// many full buffers it skipped.
func fanout(conns map[*WSConn]struct{}, data []byte) int {
	dropped := 0
	for c := range conns {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	return dropped
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// MatchSubscriberCount returns the number of connections subscribed to a match.
func (h *Hub) MatchSubscriberCount(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.matches[matchID])
}
