package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// ParticipantRepository manages membership state inside conversations. The
// active-participant query is the durable ground truth behind the in-memory
// subscription index: fan-out must always be reconstructible from it alone.
type ParticipantRepository interface {
	IsActiveParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	ActiveUserIDs(ctx context.Context, conversationID int) ([]int, error)
	Archive(ctx context.Context, conversationID int, userID int) error
	Unarchive(ctx context.Context, conversationID int, userID int) error
}

// ParticipantRepo is a sqlx implementation of ParticipantRepository.
type ParticipantRepo struct {
	db *sqlx.DB
}

// NewParticipantRepo constructs a ParticipantRepo.
func NewParticipantRepo(db *sqlx.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

// IsActiveParticipant reports whether the user is an active member.
func (r *ParticipantRepo) IsActiveParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants
        WHERE conversation_id=$1 AND user_id=$2 AND is_active = TRUE)`, conversationID, userID)
	return exists, err
}

// ActiveUserIDs returns the ids of all active participants.
func (r *ParticipantRepo) ActiveUserIDs(ctx context.Context, conversationID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM conversation_participants
        WHERE conversation_id=$1 AND is_active = TRUE ORDER BY user_id`, conversationID)
	return ids, err
}

// Archive marks the membership inactive and stamps left_at.
func (r *ParticipantRepo) Archive(ctx context.Context, conversationID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversation_participants
        SET is_active = FALSE, left_at = NOW()
        WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	return err
}

// Unarchive reactivates the membership.
func (r *ParticipantRepo) Unarchive(ctx context.Context, conversationID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE conversation_participants
        SET is_active = TRUE, left_at = NULL
        WHERE conversation_id=$1 AND user_id=$2`, conversationID, userID)
	return err
}
