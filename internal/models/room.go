package models

import "time"

// Room is a conversation between two or more participants.
type Room struct {
	ID                 string    `db:"id" json:"id" validate:"required"`
	Name               string    `db:"name" json:"name,omitempty"`
	CreatedBy          string    `db:"created_by" json:"created_by,omitempty"`
	Participants       []string  `db:"-" json:"participants" validate:"required,min=1,dive,required"`
	ParticipantNames   []string  `db:"-" json:"participant_names"`
	ParticipantAvatars []string  `db:"-" json:"participant_avatars"`
	LastMessage        *Message  `db:"-" json:"last_message,omitempty"`
	UnreadCount        int       `db:"-" json:"unread_count"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Participant is a room member row joined with its display data.
type Participant struct {
	RoomID   string    `db:"room_id" json:"room_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	Name     string    `db:"user_name" json:"user_name"`
	Avatar   string    `db:"avatar_url" json:"avatar_url,omitempty"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
	LastRead time.Time `db:"last_read_at" json:"last_read_at"`
}

// HasParticipant reports whether userID is listed in the room.
func (r Room) HasParticipant(userID string) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// ParticipantName returns the display name stored next to userID, if any.
func (r Room) ParticipantName(userID string) string {
	for i, id := range r.Participants {
		if id == userID && i < len(r.ParticipantNames) {
			return r.ParticipantNames[i]
		}
	}
	return ""
}
