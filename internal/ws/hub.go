package ws

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"marketplace-service/internal/models"
	"marketplace-service/internal/observability"
)

const sendBuffer = 256

// Client is one live websocket connection of a user.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	info ConnInfo
}

func newClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{conn: conn, send: make(chan []byte, sendBuffer), info: info}
}

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() string { return c.info.UserID }

// Hub tracks connections per user and room subscriptions per connection.
type Hub struct {
	users    map[string]map[*Client]struct{}
	rooms    map[string]map[*Client]struct{}
	subs     map[*Client]map[string]struct{}
	presence *PresenceTracker
	logger   logrus.FieldLogger
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		users:    make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		subs:     make(map[*Client]map[string]struct{}),
		presence: NewPresenceTracker(),
		logger:   logger,
	}
}

// Register adds a connection. It reports whether this is the user's first
// live connection.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := client.info.UserID
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*Client]struct{})
	}
	h.users[userID][client] = struct{}{}
	h.subs[client] = make(map[string]struct{})

	first := h.presence.Increment(userID) == 1
	observability.IncWSActive()
	observability.SetWSOnlineUsers(h.presence.ActiveCount())
	return first
}

// Unregister removes a connection and its subscriptions and closes its send
// queue. It reports whether the user has no live connection left.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.subs[client]
	if !ok {
		return false
	}
	for roomID := range rooms {
		h.removeFromRoom(roomID, client)
	}
	delete(h.subs, client)

	userID := client.info.UserID
	if conns, ok := h.users[userID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	close(client.send)

	last := h.presence.Decrement(userID) == 0
	observability.DecWSActive()
	observability.SetWSOnlineUsers(h.presence.ActiveCount())
	return last
}

// Subscribe adds the connection to a room's fan-out set.
func (h *Hub) Subscribe(roomID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.subs[client]
	if !ok {
		return
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
	rooms[roomID] = struct{}{}
}

// SubscribeUsers adds every live connection of the given users to roomID.
func (h *Hub) SubscribeUsers(roomID string, userIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userID := range userIDs {
		for client := range h.users[userID] {
			if _, ok := h.rooms[roomID]; !ok {
				h.rooms[roomID] = make(map[*Client]struct{})
			}
			h.rooms[roomID][client] = struct{}{}
			h.subs[client][roomID] = struct{}{}
		}
	}
}

// Unsubscribe removes the connection from a room's fan-out set.
func (h *Hub) Unsubscribe(roomID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(roomID, client)
	if rooms, ok := h.subs[client]; ok {
		delete(rooms, roomID)
	}
}

// UnsubscribeUser drops every connection of userID from roomID.
func (h *Hub) UnsubscribeUser(roomID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.users[userID] {
		h.removeFromRoom(roomID, client)
		if rooms, ok := h.subs[client]; ok {
			delete(rooms, roomID)
		}
	}
}

// Subscribed reports whether the connection receives the room's events.
func (h *Hub) Subscribed(roomID string, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][client]
	return ok
}

func (h *Hub) removeFromRoom(roomID string, client *Client) {
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// IsOnline reports whether userID has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.presence.Online(userID)
}

// OnlineUsers lists users with at least one live connection, sorted by id.
func (h *Hub) OnlineUsers() []models.ChatUser {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]models.ChatUser, 0, len(h.users))
	for userID, conns := range h.users {
		for client := range conns {
			users = append(users, models.ChatUser{
				ID:     userID,
				Name:   client.info.UserName,
				Role:   models.Role(client.info.Role),
				Online: true,
			})
			break
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// SendToClient queues an event for a single connection.
func (h *Hub) SendToClient(client *Client, event string, data any) {
	payload, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, live := h.subs[client]; live {
		h.enqueue(client, event, payload)
	}
}

// SendToUsers queues an event for every connection of the given users.
func (h *Hub) SendToUsers(userIDs []string, event string, data any) {
	payload, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range userIDs {
		for client := range h.users[userID] {
			h.enqueue(client, event, payload)
		}
	}
}

// BroadcastRoom queues an event for the room's subscribers except skip.
func (h *Hub) BroadcastRoom(roomID string, event string, data any, skip *Client) {
	payload, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[roomID] {
		if client == skip {
			continue
		}
		h.enqueue(client, event, payload)
	}
}

// BroadcastOthers queues an event for every connection not owned by userID.
func (h *Hub) BroadcastOthers(userID string, event string, data any) {
	payload, ok := h.encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for owner, conns := range h.users {
		if owner == userID {
			continue
		}
		for client := range conns {
			h.enqueue(client, event, payload)
		}
	}
}

func (h *Hub) encode(event string, data any) ([]byte, bool) {
	envelope, err := models.NewEnvelope(event, data)
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("encode websocket event")
		return nil, false
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("encode websocket event")
		return nil, false
	}
	return payload, true
}

// enqueue must run with h.mu held. A client whose queue is full is closed;
// its read loop then unregisters it.
func (h *Hub) enqueue(client *Client, event string, payload []byte) {
	select {
	case client.send <- payload:
		observability.IncWSEvent("out", event)
	default:
		h.logger.WithFields(logrus.Fields{"conn_id": client.info.ConnID, "user_id": client.info.UserID}).Warn("websocket send queue full, closing")
		if client.conn != nil {
			_ = client.conn.Close()
		}
	}
}
