package models

import (
	"encoding/json"
	"time"
)

// Live channel event names.
const (
	EventMessage      = "message"
	EventRoomCreated  = "room_created"
	EventRoomJoined   = "room_joined"
	EventRoomLeft     = "room_left"
	EventUserOnline   = "user_online"
	EventUserOffline  = "user_offline"
	EventOnlineUsers  = "online_users"
	EventMessagesRead = "messages_read"
	EventError        = "error"

	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
)

// Envelope is the frame exchanged over the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// RoomRef addresses a room in join_room and leave_room.
type RoomRef struct {
	RoomID string `json:"room_id" validate:"required"`
}

// RoomLeft is sent to a user's connections after they leave a room.
type RoomLeft struct {
	RoomID string `json:"room_id" validate:"required"`
	UserID string `json:"user_id"`
}

// MessagesRead reports that ReaderID has read a room up to ReadAt.
type MessagesRead struct {
	RoomID   string    `json:"room_id" validate:"required"`
	ReaderID string    `json:"reader_id"`
	ReadAt   time.Time `json:"read_at"`
}

// ErrorEvent reports a rejected client event.
type ErrorEvent struct {
	Event string `json:"event"`
	Error string `json:"error"`
}
