package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ReceiptRepository tracks per-(message,user) delivery and read state.
// All writes are idempotent upserts so that receipts lost to partial fan-out
// failure are recreated lazily wherever absent.
type ReceiptRepository interface {
	CreateDelivered(ctx context.Context, messageID int, userIDs []int, deliveredAt time.Time) error
	MarkDelivered(ctx context.Context, messageID int, userID int, at time.Time) error
	MarkRead(ctx context.Context, messageID int, userID int, at time.Time) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID int, userID int, at time.Time) (int, error)
}

// ReceiptRepo is a sqlx implementation of ReceiptRepository.
type ReceiptRepo struct {
	db *sqlx.DB
}

// NewReceiptRepo constructs a ReceiptRepo.
func NewReceiptRepo(db *sqlx.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// CreateDelivered inserts a delivered receipt for every listed recipient in
// one statement. Existing rows keep their earlier delivered_at.
func (r *ReceiptRepo) CreateDelivered(ctx context.Context, messageID int, userIDs []int, deliveredAt time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_read_receipts (message_id, user_id, delivered_at)
        SELECT $1, uid, $3 FROM unnest($2::int[]) AS uid
        ON CONFLICT (message_id, user_id) DO UPDATE
        SET delivered_at = COALESCE(message_read_receipts.delivered_at, EXCLUDED.delivered_at)`,
		messageID, pq.Array(userIDs), deliveredAt)
	return err
}

// MarkDelivered upserts a single delivered receipt.
func (r *ReceiptRepo) MarkDelivered(ctx context.Context, messageID int, userID int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_read_receipts (message_id, user_id, delivered_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (message_id, user_id) DO UPDATE
        SET delivered_at = COALESCE(message_read_receipts.delivered_at, EXCLUDED.delivered_at)`,
		messageID, userID, at)
	return err
}

// MarkRead sets read_at once. Returns true when the row transitioned from
// unread; repeated calls never move read_at.
func (r *ReceiptRepo) MarkRead(ctx context.Context, messageID int, userID int, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_read_receipts (message_id, user_id, delivered_at, read_at)
        VALUES ($1, $2, $3, $3)
        ON CONFLICT (message_id, user_id) DO UPDATE
        SET read_at = EXCLUDED.read_at
        WHERE message_read_receipts.read_at IS NULL`,
		messageID, userID, at)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkConversationRead closes every outstanding receipt the user has in the
// conversation with one statement and returns how many rows it touched.
func (r *ReceiptRepo) MarkConversationRead(ctx context.Context, conversationID int, userID int, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE message_read_receipts rr
        SET read_at=$3
        FROM messages m
        WHERE rr.message_id = m.id
        AND m.conversation_id=$1
        AND rr.user_id=$2
        AND rr.read_at IS NULL`,
		conversationID, userID, at)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
