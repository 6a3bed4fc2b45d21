package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence. Conversation
// creation itself belongs to an external workflow; this service only reads
// conversations and bumps their activity timestamp.
type ConversationRepository interface {
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int) ([]models.Conversation, error)
	TouchLastMessageAt(ctx context.Context, conversationID int, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, pitch_id, created_by, title, is_group, last_message_at, created_at
        FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListConversationsForUser returns conversations in which the user is an
// active participant, most recently active first.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	query := `SELECT c.id, c.pitch_id, c.created_by, c.title, c.is_group, c.last_message_at, c.created_at
        FROM conversations c
        JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id=$1 AND p.is_active = TRUE
        ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC`
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, query, userID)
	return convs, err
}

// TouchLastMessageAt bumps the conversation's last-message timestamp.
func (r *ConversationRepo) TouchLastMessageAt(ctx context.Context, conversationID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversations SET last_message_at=$2 WHERE id=$1`, conversationID, at)
	return err
}
