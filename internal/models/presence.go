package models

import "time"

// ChatUser is the presence record of a user as seen over the live channel.
type ChatUser struct {
	ID       string     `json:"id" validate:"required"`
	Name     string     `json:"name"`
	Role     Role       `json:"role,omitempty"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
