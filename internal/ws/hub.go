// Package ws pushes live matching progress to clients that keep a socket
// open instead of polling. A slow or gone subscriber never blocks the
// matching workers: events are dropped, not queued, because the next
// poll carries the same state anyway.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventsnap/facefinder/internal/domain"
)

type Hub struct {
	clients    map[*Client]bool
	sessions   map[uuid.UUID]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.broadcastToSession(event)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.sessions[client.sessionID] == nil {
		h.sessions[client.sessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sessionID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		delete(h.sessions[client.sessionID], client)

		if len(h.sessions[client.sessionID]) == 0 {
			delete(h.sessions, client.sessionID)
		}

		close(client.send)
	}
}

func (h *Hub) broadcastToSession(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.sessions[event.SessionID]
	if clients == nil {
		return
	}

	message, err := json.Marshal(event)
	if err != nil {
		return
	}

	for client := range clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
			delete(h.sessions[event.SessionID], client)
		}
	}
}

// SessionProgress implements the matching queue's notifier: a non-blocking
// push of the session's current state.
func (h *Hub) SessionProgress(sessionID uuid.UUID, status domain.SessionStatus, progress int, step string) {
	event := Event{
		SessionID: sessionID,
		Type:      eventTypeFor(status),
		Data: ProgressData{
			Status:   status,
			Progress: progress,
			Step:     step,
		},
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- event:
	default:
	}
}

func (h *Hub) ConnectedClients(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[sessionID])
}
