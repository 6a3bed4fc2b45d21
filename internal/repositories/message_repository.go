package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// NewMessage carries the fields of a message about to be persisted.
type NewMessage struct {
	ConversationID  int
	SenderID        int
	ReceiverID      *int
	ParentMessageID *int
	Content         string
	MessageType     string
	Attachments     models.AttachmentList
}

// MessageRepository defines interactions for messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, in NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListConversationMessages(ctx context.Context, conversationID int, limit int) ([]models.Message, error)
	UpdateContent(ctx context.Context, messageID int, content string, editedAt time.Time) error
	MarkDeleted(ctx context.Context, messageID int, deletedAt time.Time) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, parent_message_id, content, message_type,
        attachments, is_edited, edited_at, is_deleted, deleted_at, sent_at`

// CreateMessage persists a message and returns the stored row.
func (r *MessageRepo) CreateMessage(ctx context.Context, in NewMessage) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages
        (conversation_id, sender_id, receiver_id, parent_message_id, content, message_type, attachments)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING `+messageColumns,
		in.ConversationID, in.SenderID, in.ReceiverID, in.ParentMessageID, in.Content, in.MessageType, in.Attachments).
		StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListConversationMessages returns ordered durable history. Deleted messages
// come back as tombstones, not gaps. Consumers order by sent_at then id;
// arrival order across connections is not meaningful.
func (r *MessageRepo) ListConversationMessages(ctx context.Context, conversationID int, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE conversation_id=$1
        ORDER BY sent_at ASC, id ASC
        LIMIT $2`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, conversationID, limit)
	return msgs, err
}

// UpdateContent rewrites content and marks the message edited. Deleted
// messages are immutable, the WHERE clause never matches them.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int, content string, editedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET content=$2, is_edited = TRUE, edited_at=$3
        WHERE id=$1 AND is_deleted = FALSE`, messageID, content, editedAt)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkDeleted replaces content with the tombstone and seals the message.
func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID int, deletedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages
        SET content=$2, is_deleted = TRUE, deleted_at=$3, attachments = NULL
        WHERE id=$1 AND is_deleted = FALSE`, messageID, models.DeletedMessageContent, deletedAt)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
