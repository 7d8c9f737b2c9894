package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"marketplace-service/internal/logging"
	"marketplace-service/internal/middleware"
	"marketplace-service/internal/models"
	"marketplace-service/internal/repositories"
	"marketplace-service/internal/updates"
	"marketplace-service/internal/ws"
)

// RoomHandler manages chat room endpoints.
type RoomHandler struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	updates     updates.Publisher
	hub         *ws.Hub
	logger      *logrus.Logger
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, publisher updates.Publisher, hub *ws.Hub, logger *logrus.Logger) *RoomHandler {
	return &RoomHandler{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		updates:     publisher,
		hub:         hub,
		logger:      logger,
	}
}

// ListRooms returns the rooms of the authenticated user.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	rooms, err := h.roomRepo.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom creates a room with the caller and the requested participants and
// tells the other participants about it.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		ParticipantIDs []string `json:"participant_ids" binding:"required,min=1,dive,required"`
		Name           string   `json:"name" binding:"max=120"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	room, err := h.roomRepo.CreateRoom(c.Request.Context(), userID, strings.TrimSpace(req.Name), req.ParticipantIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrNoParticipants) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	h.hub.SubscribeUsers(room.ID, room.Participants)
	h.hub.SendToUsers(others(room.Participants, userID), models.EventRoomCreated, room)
	if err := h.updates.RoomCreated(room); err != nil {
		logging.WithContext(c.Request.Context(), h.logger).WithError(err).WithField("room_id", room.ID).Warn("failed to publish room update")
	}

	c.JSON(http.StatusCreated, room)
}

// LeaveRoom removes the caller from a room.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.ContextUserID)

	if err := h.roomRepo.RemoveParticipant(c.Request.Context(), roomID, userID); err != nil {
		if errors.Is(err, repositories.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room participant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave room"})
		return
	}

	h.hub.UnsubscribeUser(roomID, userID)
	h.hub.SendToUsers([]string{userID}, models.EventRoomLeft, models.RoomLeft{RoomID: roomID, UserID: userID})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetMessages returns a page of room history in ascending order.
func (h *RoomHandler) GetMessages(c *gin.Context) {
	roomID := c.Param("room_id")
	if !h.requireParticipant(c, roomID) {
		return
	}

	var limit uint64
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before timestamp"})
			return
		}
		before = &parsed
	}

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), roomID, before, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message. Live delivery is done by the sender over the
// channel.
func (h *RoomHandler) PostMessage(c *gin.Context) {
	roomID := c.Param("room_id")
	room, err := h.roomRepo.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		notFoundOr500(c, err, repositories.ErrRoomNotFound, "room not found")
		return
	}
	userID := c.GetString(middleware.ContextUserID)
	if !room.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room participant"})
		return
	}

	var req struct {
		Content string             `json:"content"`
		Type    models.MessageType `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if req.Type == "" {
		req.Type = models.MessageText
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message type"})
		return
	}

	senderName := room.ParticipantName(userID)
	if account, ok := middleware.AccountFrom(c); ok && account.DisplayName() != "" {
		senderName = account.DisplayName()
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), models.Message{
		RoomID:     roomID,
		SenderID:   userID,
		SenderName: senderName,
		Content:    req.Content,
		Type:       req.Type,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	log := logging.WithContext(c.Request.Context(), h.logger).WithField("room_id", roomID)
	if err := h.roomRepo.TouchRoom(c.Request.Context(), roomID, msg.CreatedAt); err != nil {
		log.WithError(err).Warn("failed to bump room")
	}
	if err := h.updates.MessageSent(msg, others(room.Participants, userID)); err != nil {
		log.WithError(err).Warn("failed to publish message update")
	}

	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks the room's messages from other senders as read by the caller.
func (h *RoomHandler) MarkRead(c *gin.Context) {
	roomID := c.Param("room_id")
	userID := c.GetString(middleware.ContextUserID)

	if err := h.roomRepo.MarkRead(c.Request.Context(), roomID, userID, time.Now().UTC()); err != nil {
		if errors.Is(err, repositories.ErrNotParticipant) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room participant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark room read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *RoomHandler) requireParticipant(c *gin.Context, roomID string) bool {
	member, err := h.roomRepo.IsParticipant(c.Request.Context(), roomID, c.GetString(middleware.ContextUserID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room participant"})
		return false
	}
	return true
}

func others(ids []string, userID string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
