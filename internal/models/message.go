package models

import "time"

// MessageType is the content kind of a chat message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageImage MessageType = "image"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageImage:
		return true
	}
	return false
}

// Message is a single chat message. Only Read changes after creation.
type Message struct {
	ID           string      `db:"id" json:"id" validate:"required"`
	RoomID       string      `db:"room_id" json:"room_id" validate:"required"`
	SenderID     string      `db:"sender_id" json:"sender_id" validate:"required"`
	SenderName   string      `db:"sender_name" json:"sender_name"`
	SenderAvatar string      `db:"sender_avatar" json:"sender_avatar,omitempty"`
	Content      string      `db:"content" json:"content" validate:"required"`
	Type         MessageType `db:"type" json:"type" validate:"required,oneof=text file image"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at" validate:"required"`
	Read         bool        `db:"read" json:"read"`
}
