package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/models"
	"marketplace-service/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
)

// TokenValidator validates the channel's auth token.
type TokenValidator interface {
	ValidateToken(token string) (auth.Claims, error)
}

// RoomLookup answers membership questions for join_room.
type RoomLookup interface {
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
}

// MessageLookup finds persisted messages so only stored messages are relayed.
type MessageLookup interface {
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
}

// LastSeenRecorder persists the time a user's last connection closed.
type LastSeenRecorder interface {
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Handler serves the live channel.
type Handler struct {
	hub      *Hub
	rooms    RoomLookup
	messages MessageLookup
	lastSeen LastSeenRecorder
	tokens   TokenValidator
	validate *validator.Validate
	logger   logrus.FieldLogger
}

// NewHandler constructs a Handler. lastSeen may be nil.
func NewHandler(hub *Hub, rooms RoomLookup, messages MessageLookup, lastSeen LastSeenRecorder, tokens TokenValidator, logger logrus.FieldLogger) *Handler {
	return &Handler{
		hub:      hub,
		rooms:    rooms,
		messages: messages,
		lastSeen: lastSeen,
		tokens:   tokens,
		validate: validator.New(),
		logger:   logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and starts its pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("marketplace-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	claims, err := h.tokens.ValidateToken(tokenFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if claimed := firstNonEmpty(c.Query("userId"), c.GetHeader("X-User-Id")); claimed != "" && claimed != claims.UserID {
		h.logger.WithFields(logrus.Fields{"claimed": claimed, "user_id": claims.UserID}).Debug("ignoring user id that differs from token")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		UserName:    claims.UserName,
		Role:        claims.UserRole,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)
	first := h.hub.Register(client)
	publishLifecycle(ctx, info, "ws_connect", "")

	if first {
		h.hub.BroadcastOthers(info.UserID, models.EventUserOnline, models.ChatUser{
			ID:     info.UserID,
			Name:   info.UserName,
			Role:   models.Role(info.Role),
			Online: true,
		})
	}
	h.hub.SendToClient(client, models.EventOnlineUsers, h.hub.OnlineUsers())

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Handler) readPump(client *Client) {
	var closeReason string
	defer func() {
		last := h.hub.Unregister(client)
		_ = client.conn.Close()
		publishLifecycle(context.Background(), client.info, "ws_disconnect", closeReason)
		if last {
			h.userWentOffline(client.info)
		}
	}()

	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishLifecycle(context.Background(), client.info, "ws_error", closeReason)
			}
			return
		}

		var envelope models.Envelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			h.hub.SendToClient(client, models.EventError, models.ErrorEvent{Error: "malformed event"})
			continue
		}
		observability.IncWSEvent("in", envelope.Event)
		h.dispatch(client, envelope)
	}
}

func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) dispatch(client *Client, envelope models.Envelope) {
	switch envelope.Event {
	case models.EventJoinRoom:
		var ref models.RoomRef
		if !h.decode(client, envelope, &ref) {
			return
		}
		h.joinRoom(client, ref.RoomID)
	case models.EventLeaveRoom:
		var ref models.RoomRef
		if !h.decode(client, envelope, &ref) {
			return
		}
		h.hub.Unsubscribe(ref.RoomID, client)
	case models.EventSendMessage:
		var msg models.Message
		if !h.decode(client, envelope, &msg) {
			return
		}
		if msg.SenderID != client.info.UserID || !h.hub.Subscribed(msg.RoomID, client) {
			h.reject(client, envelope.Event, "not allowed to send to room")
			return
		}
		stored, ok := h.storedMessage(msg)
		if !ok {
			h.reject(client, envelope.Event, "message was not persisted")
			return
		}
		h.hub.BroadcastRoom(stored.RoomID, models.EventMessage, stored, client)
	case models.EventMarkRead:
		var ref models.RoomRef
		if !h.decode(client, envelope, &ref) {
			return
		}
		if !h.hub.Subscribed(ref.RoomID, client) {
			h.reject(client, envelope.Event, "not subscribed to room")
			return
		}
		h.hub.BroadcastRoom(ref.RoomID, models.EventMessagesRead, models.MessagesRead{
			RoomID:   ref.RoomID,
			ReaderID: client.info.UserID,
			ReadAt:   time.Now().UTC(),
		}, client)
	default:
		h.reject(client, envelope.Event, "unknown event")
	}
}

func (h *Handler) joinRoom(client *Client, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	room, err := h.rooms.GetRoom(ctx, roomID)
	if err != nil || !room.HasParticipant(client.info.UserID) {
		h.reject(client, models.EventJoinRoom, "not a room participant")
		return
	}
	h.hub.Subscribe(roomID, client)
	h.hub.SendToClient(client, models.EventRoomJoined, room)
}

// storedMessage returns the persisted copy of msg. It must belong to the same
// room and sender.
func (h *Handler) storedMessage(msg models.Message) (models.Message, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	stored, err := h.messages.GetMessage(ctx, msg.ID)
	if err != nil {
		h.logger.WithError(err).WithField("message_id", msg.ID).Debug("relay lookup failed")
		return models.Message{}, false
	}
	if stored.RoomID != msg.RoomID || stored.SenderID != msg.SenderID {
		return models.Message{}, false
	}
	return stored, true
}

func (h *Handler) userWentOffline(info ConnInfo) {
	now := time.Now().UTC()
	if h.lastSeen != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := h.lastSeen.TouchLastSeen(ctx, info.UserID, now); err != nil {
			h.logger.WithError(err).WithField("user_id", info.UserID).Warn("failed to record last seen")
		}
		cancel()
	}
	h.hub.BroadcastOthers(info.UserID, models.EventUserOffline, models.ChatUser{
		ID:       info.UserID,
		Name:     info.UserName,
		Role:     models.Role(info.Role),
		Online:   false,
		LastSeen: &now,
	})
}

func (h *Handler) decode(client *Client, envelope models.Envelope, dest any) bool {
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		h.reject(client, envelope.Event, "malformed payload")
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		h.reject(client, envelope.Event, err.Error())
		return false
	}
	return true
}

func (h *Handler) reject(client *Client, event, reason string) {
	h.logger.WithFields(logrus.Fields{"conn_id": client.info.ConnID, "event": event, "reason": reason}).Debug("websocket event rejected")
	h.hub.SendToClient(client, models.EventError, models.ErrorEvent{Event: event, Error: reason})
}

func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return firstNonEmpty(c.Query("token"), c.GetHeader("X-Auth-Token"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
