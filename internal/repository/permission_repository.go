package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// PermissionRepository stores per-course capability grants.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository constructs the repository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// ListByUser returns every grant held by the user.
func (r *PermissionRepository) ListByUser(ctx context.Context, userID string) ([]models.Permission, error) {
	const query = `SELECT user_id, course_id, level, granted_by, created_at FROM course_permissions WHERE user_id = $1`
	var perms []models.Permission
	if err := r.db.SelectContext(ctx, &perms, query, userID); err != nil {
		return nil, fmt.Errorf("list user permissions: %w", err)
	}
	return perms, nil
}

// ListByCourse returns every grant on the course.
func (r *PermissionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Permission, error) {
	const query = `SELECT user_id, course_id, level, granted_by, created_at FROM course_permissions WHERE course_id = $1 ORDER BY created_at`
	var perms []models.Permission
	if err := r.db.SelectContext(ctx, &perms, query, courseID); err != nil {
		return nil, fmt.Errorf("list course permissions: %w", err)
	}
	return perms, nil
}

// Upsert grants or changes a level.
func (r *PermissionRepository) Upsert(ctx context.Context, perm *models.Permission) error {
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_permissions (user_id, course_id, level, granted_by, created_at)
	VALUES (:user_id, :course_id, :level, :granted_by, :created_at)
	ON CONFLICT (user_id, course_id) DO UPDATE SET level = EXCLUDED.level, granted_by = EXCLUDED.granted_by`
	if _, err := r.db.NamedExecContext(ctx, query, perm); err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

// Delete revokes a grant.
func (r *PermissionRepository) Delete(ctx context.Context, userID, courseID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_permissions WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete permission rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
