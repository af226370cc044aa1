package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/pkg/database"
)

// GroupRepository manages course groups and their membership counters.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Assign adds userID to the group when it still has room, using the same conditional increment as enrollments.
func (r *GroupRepository) Assign(ctx context.Context, groupID, userID string) (models.GroupAssignment, error) {
	outcome := models.GroupAssigned
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE groups SET current_members = current_members + 1
		WHERE id = $1 AND (max_members IS NULL OR current_members < max_members)`, groupID)
		if err != nil {
			return fmt.Errorf("increment group members: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("increment group members rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, groupID); err != nil {
				return fmt.Errorf("check group: %w", err)
			}
			outcome = models.GroupFull
			if !exists {
				outcome = models.GroupMissing
			}
			return nil
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, NOW())`, groupID, userID); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return errAlreadyActive
			}
			return fmt.Errorf("insert group member: %w", err)
		}
		return nil
	})
	if errors.Is(err, errAlreadyActive) {
		return models.GroupAlreadyMember, nil
	}
	if err != nil {
		return "", fmt.Errorf("assign group member: %w", err)
	}
	return outcome, nil
}
