package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// BlockRepository manages user-level block relationships. Blocks are enforced
// at fan-out time: the blocker simply stops receiving, the sender is not told.
type BlockRepository interface {
	Block(ctx context.Context, blockerID int, blockedID int) error
	Unblock(ctx context.Context, blockerID int, blockedID int) error
	IsBlocked(ctx context.Context, blockerID int, blockedID int) (bool, error)
}

// BlockRepo is a sqlx implementation of BlockRepository.
type BlockRepo struct {
	db *sqlx.DB
}

// NewBlockRepo constructs a BlockRepo.
func NewBlockRepo(db *sqlx.DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// Block records the relationship; repeating it is a no-op.
func (r *BlockRepo) Block(ctx context.Context, blockerID int, blockedID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO user_blocks (blocker_id, blocked_id)
        VALUES ($1, $2) ON CONFLICT (blocker_id, blocked_id) DO NOTHING`, blockerID, blockedID)
	return err
}

// Unblock removes the relationship if present.
func (r *BlockRepo) Unblock(ctx context.Context, blockerID int, blockedID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_blocks WHERE blocker_id=$1 AND blocked_id=$2`, blockerID, blockedID)
	return err
}

// IsBlocked reports whether blocker has blocked blocked.
func (r *BlockRepo) IsBlocked(ctx context.Context, blockerID int, blockedID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM user_blocks WHERE blocker_id=$1 AND blocked_id=$2)`, blockerID, blockedID)
	return exists, err
}
