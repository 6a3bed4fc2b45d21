package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// DeletedMessageContent is the fixed tombstone substituted for a deleted
// message. Once written it never changes.
const DeletedMessageContent = "This message has been deleted"

// Attachment is uploaded-file metadata embedded in a message. The upload
// itself happens through a separate storage endpoint; messaging only carries
// the reference.
type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// AttachmentList maps to a jsonb column.
type AttachmentList []Attachment

// Value implements driver.Valuer.
func (a AttachmentList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *AttachmentList) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return errors.New("attachments: unsupported scan type")
	}
}

// Message is a persisted chat message.
type Message struct {
	ID              int            `db:"id" json:"id"`
	ConversationID  int            `db:"conversation_id" json:"conversation_id"`
	SenderID        int            `db:"sender_id" json:"sender_id"`
	ReceiverID      *int           `db:"receiver_id" json:"receiver_id,omitempty"`
	ParentMessageID *int           `db:"parent_message_id" json:"parent_message_id,omitempty"`
	Content         string         `db:"content" json:"content"`
	MessageType     string         `db:"message_type" json:"message_type"`
	Attachments     AttachmentList `db:"attachments" json:"attachments,omitempty"`
	IsEdited        bool           `db:"is_edited" json:"is_edited"`
	EditedAt        *time.Time     `db:"edited_at" json:"edited_at,omitempty"`
	IsDeleted       bool           `db:"is_deleted" json:"is_deleted"`
	DeletedAt       *time.Time     `db:"deleted_at" json:"deleted_at,omitempty"`
	SentAt          time.Time      `db:"sent_at" json:"sent_at"`
}

// ReadReceipt tracks per-recipient delivery and read state for a message.
// delivered_at is stamped at fan-out; read_at is set at most once.
type ReadReceipt struct {
	MessageID   int        `db:"message_id" json:"message_id"`
	UserID      int        `db:"user_id" json:"user_id"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt      *time.Time `db:"read_at" json:"read_at,omitempty"`
}
