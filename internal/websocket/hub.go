// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/invigilo/internal/logging"
	"github.com/tomtom215/invigilo/internal/metrics"
)

// Hub tracks connected clients and routes outbound frames. Clients are
// indexed by monitoring session so the pipeline can address one
// attempt; the broadcast channel fans out to every connected client
// (admin dashboards included).
type Hub struct {
	clients   map[*Client]bool
	bySession map[string]map[*Client]bool

	broadcast chan Message

	// Register and Unregister carry client lifecycle events into the
	// hub goroutine.
	Register   chan *Client
	Unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		bySession:  make(map[string]map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run processes lifecycle events and broadcasts until ctx is
// cancelled, then closes every client. Selection is prioritized:
// shutdown first, then lifecycle events, then broadcasts, so
// membership is settled before any fan-out.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	set, ok := h.bySession[c.session.SessionID]
	if !ok {
		set = make(map[*Client]bool)
		h.bySession[c.session.SessionID] = set
	}
	set[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	connections := c.session.Attach()
	metrics.WebsocketClients.Inc()

	logging.Info().
		Str("session_id", c.session.SessionID).
		Int("session_connections", connections).
		Int("total_clients", total).
		Msg("Websocket client connected")
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	removed := h.removeClientLocked(c)
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		logging.Info().
			Str("session_id", c.session.SessionID).
			Int("total_clients", total).
			Msg("Websocket client disconnected")
	}
}

// removeClientLocked drops a client from both indexes and signals its
// done channel. Membership is checked first so racing removal paths
// cannot close the channel twice. Caller holds h.mu.
func (h *Hub) removeClientLocked(c *Client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)

	if set, ok := h.bySession[c.session.SessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.bySession, c.session.SessionID)
		}
	}

	close(c.done)
	c.session.Detach()
	metrics.WebsocketClients.Dec()
	return true
}

// SendToSession queues a frame on every connection of one session and
// returns the number of clients reached. A client whose send buffer is
// full is disconnected rather than awaited.
func (h *Hub) SendToSession(sessionID string, msg Message) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.bySession[sessionID]
	if len(set) == 0 {
		return 0
	}

	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	delivered := 0
	for _, c := range clients {
		select {
		case c.send <- msg:
			delivered++
		default:
			h.removeClientLocked(c)
			logging.Warn().
				Str("session_id", sessionID).
				Str("message_type", msg.Type).
				Msg("Send buffer full, dropping websocket client")
		}
	}
	return delivered
}

// BroadcastJSON fans a frame out to every connected client. Dashboards
// subscribe to the same channel as exam clients; the frame types keep
// the audiences apart.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("Broadcast channel full, dropping message")
	}
}

// broadcastToClients delivers one broadcast frame to every client in
// client-ID order so delivery order is reproducible.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			h.removeClientLocked(client)
		}
	}
}

// shutdown closes every client in ID order.
func (h *Hub) shutdown() {
	h.mu.Lock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	closed := 0
	for _, client := range clients {
		if h.removeClientLocked(client) {
			closed++
		}
	}
	h.mu.Unlock()

	logging.Info().Int("clients_closed", closed).Msg("Websocket hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionClientCount returns the number of connections one session
// holds.
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySession[sessionID])
}
