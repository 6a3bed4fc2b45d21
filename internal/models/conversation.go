package models

import "time"

// Conversation groups messages among participants. Conversations are created
// by an external workflow (NDA approval, first contact) and never hard-deleted.
type Conversation struct {
	ID            int        `db:"id" json:"id"`
	PitchID       *int       `db:"pitch_id" json:"pitch_id,omitempty"`
	CreatedBy     int        `db:"created_by" json:"created_by"`
	Title         string     `db:"title" json:"title"`
	IsGroup       bool       `db:"is_group" json:"is_group"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Participant is a user's membership record in a conversation.
// (conversation_id, user_id) is unique; archiving flips is_active.
type Participant struct {
	ConversationID    int        `db:"conversation_id" json:"conversation_id"`
	UserID            int        `db:"user_id" json:"user_id"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt            *time.Time `db:"left_at" json:"left_at,omitempty"`
	MuteNotifications bool       `db:"mute_notifications" json:"mute_notifications"`
}

// UserBlock records that blocker no longer wants messages from blocked.
type UserBlock struct {
	BlockerID int       `db:"blocker_id" json:"blocker_id"`
	BlockedID int       `db:"blocked_id" json:"blocked_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
