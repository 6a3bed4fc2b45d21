package models

import "time"

// Outbound websocket event types.
const (
	EventMessageSent      = "message_sent"
	EventNewMessage       = "new_message"
	EventUserTyping       = "user_typing"
	EventMessageRead      = "message_read"
	EventMessageDeleted   = "message_deleted"
	EventMessageEdited    = "message_edited"
	EventConversationRead = "conversation_read"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
	EventOnlineUsers      = "online_users"
	EventPong             = "pong"
	EventError            = "error"
)

// Event is broadcast through websockets. Only the fields relevant to the
// event type are populated.
type Event struct {
	Type           string     `json:"type"`
	RequestID      string     `json:"request_id,omitempty"`
	Message        *Message   `json:"message,omitempty"`
	MessageID      int        `json:"message_id,omitempty"`
	ConversationID int        `json:"conversation_id,omitempty"`
	UserID         int        `json:"user_id,omitempty"`
	ReaderID       int        `json:"reader_id,omitempty"`
	IsTyping       *bool      `json:"is_typing,omitempty"`
	ReadCount      int        `json:"read_count,omitempty"`
	UserIDs        []int      `json:"user_ids,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	Code           string     `json:"code,omitempty"`
	Error          string     `json:"error,omitempty"`
	Retryable      bool       `json:"retryable,omitempty"`
}
