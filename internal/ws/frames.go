package ws

import (
	"encoding/json"
	"fmt"

	"messaging-service/internal/models"
)

// Inbound frame types. The set is closed: anything else is rejected at the
// boundary instead of drifting through the dispatcher.
const (
	FramePing                 = "ping"
	FrameSendMessage          = "send_message"
	FrameTypingStart          = "typing_start"
	FrameTypingStop           = "typing_stop"
	FrameMarkRead             = "mark_read"
	FrameMarkConversationRead = "mark_conversation_read"
	FrameJoinConversation     = "join_conversation"
	FrameLeaveConversation    = "leave_conversation"
	FrameDeleteMessage        = "delete_message"
	FrameEditMessage          = "edit_message"
	FrameGetOnlineUsers       = "get_online_users"
	FrameBlockUser            = "block_user"
	FrameUnblockUser          = "unblock_user"
)

// SendMessagePayload is the body of a send_message frame.
type SendMessagePayload struct {
	ConversationID  int                 `json:"conversation_id"`
	Content         string              `json:"content"`
	MessageType     string              `json:"message_type"`
	ReceiverID      *int                `json:"receiver_id"`
	ParentMessageID *int                `json:"parent_message_id"`
	Attachments     []models.Attachment `json:"attachments"`
}

// MessagePayload addresses an existing message (mark_read, edit, delete).
type MessagePayload struct {
	MessageID int    `json:"message_id"`
	Content   string `json:"content"`
}

// ConversationPayload addresses a conversation.
type ConversationPayload struct {
	ConversationID int `json:"conversation_id"`
}

// UserPayload addresses another user (block/unblock).
type UserPayload struct {
	UserID int `json:"user_id"`
}

// Frame is a fully decoded inbound frame: the envelope plus at most one
// typed payload, depending on Type.
type Frame struct {
	Type      string
	RequestID string

	Send         *SendMessagePayload
	Message      *MessagePayload
	Conversation *ConversationPayload
	User         *UserPayload
}

// DecodeFrame decodes raw bytes into a Frame, exhaustively over the closed
// type set. Unknown types and malformed payloads are errors; the request id
// survives decoding whenever the envelope itself parsed, so the error frame
// can still be correlated.
func DecodeFrame(data []byte) (Frame, error) {
	var env struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	frame := Frame{Type: env.Type, RequestID: env.RequestID}

	switch env.Type {
	case FramePing, FrameGetOnlineUsers:
		return frame, nil
	case FrameSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return frame, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		frame.Send = &p
		return frame, nil
	case FrameMarkRead, FrameEditMessage, FrameDeleteMessage:
		var p MessagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return frame, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		frame.Message = &p
		return frame, nil
	case FrameTypingStart, FrameTypingStop, FrameMarkConversationRead, FrameJoinConversation, FrameLeaveConversation:
		var p ConversationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return frame, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		frame.Conversation = &p
		return frame, nil
	case FrameBlockUser, FrameUnblockUser:
		var p UserPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return frame, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		frame.User = &p
		return frame, nil
	default:
		return frame, fmt.Errorf("unknown frame type %q", env.Type)
	}
}
