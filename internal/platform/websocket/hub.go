// Package websocket pushes notification events to connected users. Every
// connection joins the room of the authenticated user; events published to a
// room reach all of that user's open tabs and devices.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is the frame delivered to clients.
type Event struct {
	Type      string          `json:"type"`
	Room      string          `json:"room"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventPublisher publishes an event to the clients in event.Room.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// UserRoom names the room every connection of a user joins.
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Client is a single connection. Send is buffered; when it is full, events
// for that client are dropped rather than blocking the hub.
type Client struct {
	ID     string
	UserID uuid.UUID
	Rooms  []string
	Send   chan []byte
}

func NewClient(userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Rooms:  []string{UserRoom(userID)},
		Send:   make(chan []byte, 256),
	}
}

// Hub tracks clients by room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	all    map[*Client]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to the hub and to each of its rooms.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, room := range client.Rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Client]struct{})
		}
		h.rooms[room][client] = struct{}{}
	}
}

// Unregister removes a client and closes its Send channel. Calling it twice
// is a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, room := range client.Rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.all, client)
	close(client.Send)
}

// Deliver sends an event to the local members of its room.
func (h *Hub) Deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("room", event.Room).Msg("marshal websocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[event.Room] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("room", event.Room).Msg("client buffer full, event dropped")
		}
	}
}

// Publish delivers locally. It is the EventPublisher used when no relay is
// configured.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.Deliver(event)
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of clients in a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
