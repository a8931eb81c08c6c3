package hub

import (
	"encoding/json"
	"sync"
)

// Logger defines the logging interface used by the Hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hub owns every live WebSocket connection and its room memberships.
//
// Rooms are plain strings ("team:blue-42", "device:target-07",
// "match:9f3c..."); they exist while at least one member is joined.
// Delivery is best effort: a recipient whose send queue is full or whose
// connection has failed is unregistered, and remaining recipients are
// unaffected.
//
// Locking: the hub mutex guards the membership maps only. Fan-out happens
// on a snapshot taken under the lock, so a slow client cannot stall
// registration or other broadcasts.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	sendBuffer int
	logger     Logger
}

// New creates a hub. sendBuffer is the per-client outbound queue length.
func New(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		sendBuffer: sendBuffer,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Register adds a client to the hub. Registering an already-registered
// client is a no-op.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("client registered", "conn_id", c.ConnID, "user_id", c.UserID, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and from every room it joined.
// Idempotent: only the call that actually removes the client closes its
// send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	if existed {
		close(c.send)
		h.logger.Debug("client unregistered", "conn_id", c.ConnID, "clients", h.ClientCount())
	}
}

// Join adds the client to a room. Joining twice is a no-op.
// Unregistered clients cannot join; their messages would go nowhere.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave removes the client from a room. Leaving a room the client is not
// in is a no-op.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// InRoom reports whether the client is currently a member of the room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c]
	return ok
}

// RoomMembers returns a snapshot of the clients in a room.
func (h *Hub) RoomMembers(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	return members
}

// RoomSize returns the number of clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast marshals v once and queues it to every member of the room.
//
// Recipients whose queue is full or whose connection has failed are
// unregistered; delivery to the rest proceeds. The room membership lock
// is never held during fan-out.
func (h *Hub) Broadcast(room string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshalling broadcast", "room", room, "error", err)
		return
	}

	var failed []*Client
	for _, c := range h.RoomMembers(room) {
		if !c.trySend(data) {
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		h.logger.Warn("dropping unresponsive client", "conn_id", c.ConnID, "room", room)
		h.Unregister(c)
		c.closeConn()
	}
}

// Send marshals v and queues it to a single client.
// Returns false if the client's queue is full or closed.
func (h *Hub) Send(c *Client, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshalling send", "conn_id", c.ConnID, "error", err)
		return false
	}
	return c.trySend(data)
}

// CloseAll disconnects every client. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		c.closeConn()
	}
}
