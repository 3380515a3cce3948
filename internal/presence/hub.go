package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/paul-berdier/greg-voice/pkg/logger"
)

// sendBuffer bounds how far a slow subscriber may lag before being dropped
const sendBuffer = 64

// Envelope is the wire frame pushed to overlay clients
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Client is one connected overlay. Messages() drains the outbound frames;
// the channel closes when the client is dropped.
type Client struct {
	ID      string
	UserID  string
	GuildID string

	send   chan []byte
	closed bool
	mu     sync.Mutex
}

// Messages returns the outbound frame channel
func (c *Client) Messages() <-chan []byte {
	return c.send
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend queues a frame without blocking. Returns false when the buffer
// is full or the client is closed.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub fans playlist updates out to the overlay subscribers of each guild.
// Membership in room guild:{id} is decided at registration. Broadcasts are
// best-effort: a slow or dead subscriber is dropped, never blocks the room.
type Hub struct {
	registry *Registry
	logger   *logger.Logger

	clients map[string]*Client
	rooms   map[string]map[string]*Client
	mu      sync.Mutex
}

// NewHub creates a hub over the given registry
func NewHub(registry *Registry, log *logger.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   log,
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
	}
}

// Register adds a subscriber to its guild room and the presence registry
func (h *Hub) Register(id, userID, guildID string, meta map[string]interface{}) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[id]; ok {
		h.removeLocked(old)
	}

	c := &Client{
		ID:      id,
		UserID:  userID,
		GuildID: guildID,
		send:    make(chan []byte, sendBuffer),
	}
	h.clients[id] = c
	if guildID != "" {
		room, ok := h.rooms[guildID]
		if !ok {
			room = make(map[string]*Client)
			h.rooms[guildID] = room
		}
		room[id] = c
	}

	h.registry.Register(id, userID, guildID, meta)
	return c
}

// Ping refreshes the subscriber's TTL
func (h *Hub) Ping(id string) {
	h.registry.Ping(id)
}

// Disconnect removes a subscriber
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		h.removeLocked(c)
	}
	h.registry.Remove(id)
}

func (h *Hub) removeLocked(c *Client) {
	delete(h.clients, c.ID)
	if room, ok := h.rooms[c.GuildID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(h.rooms, c.GuildID)
		}
	}
	c.close()
}

// BroadcastPlaylistUpdate pushes a playlist_update frame to a guild room
func (h *Hub) BroadcastPlaylistUpdate(guildID string, payload interface{}) {
	h.Broadcast(guildID, "playlist_update", payload)
}

// Broadcast marshals the envelope once and delivers it to every subscriber
// of the guild room.
func (h *Hub) Broadcast(guildID, event string, payload interface{}) {
	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.WithError(err).Guild(guildID).Error("Failed to marshal broadcast")
		return
	}

	h.mu.Lock()
	room := h.rooms[guildID]
	targets := make([]*Client, 0, len(room))
	for _, c := range room {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.trySend(msg) {
			h.logger.WithField("subscriber", c.ID).Guild(guildID).Debug("Dropping slow overlay subscriber")
			h.Disconnect(c.ID)
		}
	}
}

// StartSweeper periodically removes expired subscribers until ctx ends
func (h *Hub) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range h.registry.Sweep() {
				h.mu.Lock()
				if c, ok := h.clients[id]; ok {
					h.removeLocked(c)
				}
				h.mu.Unlock()
			}
		}
	}
}

// Stats exposes registry stats for diagnostics
func (h *Hub) Stats() map[string]interface{} {
	return h.registry.Stats()
}
