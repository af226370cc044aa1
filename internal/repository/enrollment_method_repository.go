package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

const methodColumns = `id, course_id, method_type, name, is_enabled, sort_order, max_enrollments, current_enrollments,
	default_role, enrollment_start_date, enrollment_end_date, enrollment_key, key_case_sensitive, requires_approval,
	approval_message, welcome_message, auto_assign_group_id, send_welcome_email, notify_instructor, created_at, updated_at`

// EnrollmentMethodRepository persists enrollment method configuration.
type EnrollmentMethodRepository struct {
	db *sqlx.DB
}

// NewEnrollmentMethodRepository constructs the repository.
func NewEnrollmentMethodRepository(db *sqlx.DB) *EnrollmentMethodRepository {
	return &EnrollmentMethodRepository{db: db}
}

// FindByID returns a method or sql.ErrNoRows.
func (r *EnrollmentMethodRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM enrollment_methods WHERE id = $1`
	var method models.EnrollmentMethod
	if err := r.db.GetContext(ctx, &method, query, id); err != nil {
		return nil, err
	}
	return &method, nil
}

// ListByCourse returns the methods of a course in display order. enabledOnly hides disabled ones.
func (r *EnrollmentMethodRepository) ListByCourse(ctx context.Context, courseID string, enabledOnly bool) ([]models.EnrollmentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM enrollment_methods WHERE course_id = $1`
	if enabledOnly {
		query += ` AND is_enabled = TRUE`
	}
	query += ` ORDER BY sort_order, created_at`
	var methods []models.EnrollmentMethod
	if err := r.db.SelectContext(ctx, &methods, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollment methods: %w", err)
	}
	return methods, nil
}

// Create inserts a method. The counter always starts at zero.
func (r *EnrollmentMethodRepository) Create(ctx context.Context, method *models.EnrollmentMethod) error {
	if method.ID == "" {
		method.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	method.CreatedAt = now
	method.UpdatedAt = now
	method.CurrentEnrollments = 0
	const query = `INSERT INTO enrollment_methods (id, course_id, method_type, name, is_enabled, sort_order, max_enrollments,
	current_enrollments, default_role, enrollment_start_date, enrollment_end_date, enrollment_key, key_case_sensitive,
	requires_approval, approval_message, welcome_message, auto_assign_group_id, send_welcome_email, notify_instructor,
	created_at, updated_at)
	VALUES (:id, :course_id, :method_type, :name, :is_enabled, :sort_order, :max_enrollments,
	:current_enrollments, :default_role, :enrollment_start_date, :enrollment_end_date, :enrollment_key, :key_case_sensitive,
	:requires_approval, :approval_message, :welcome_message, :auto_assign_group_id, :send_welcome_email, :notify_instructor,
	:created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, method); err != nil {
		return fmt.Errorf("create enrollment method: %w", err)
	}
	return nil
}

// Update writes configuration fields. The denormalized counter is never touched here.
func (r *EnrollmentMethodRepository) Update(ctx context.Context, method *models.EnrollmentMethod) error {
	method.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollment_methods SET name = :name, is_enabled = :is_enabled, sort_order = :sort_order,
	max_enrollments = :max_enrollments, default_role = :default_role, enrollment_start_date = :enrollment_start_date,
	enrollment_end_date = :enrollment_end_date, enrollment_key = :enrollment_key, key_case_sensitive = :key_case_sensitive,
	requires_approval = :requires_approval, approval_message = :approval_message, welcome_message = :welcome_message,
	auto_assign_group_id = :auto_assign_group_id, send_welcome_email = :send_welcome_email,
	notify_instructor = :notify_instructor, updated_at = :updated_at
	WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, method)
	if err != nil {
		return fmt.Errorf("update enrollment method: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment method rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a method; enrollments keep existing with method_id set to NULL by the schema.
func (r *EnrollmentMethodRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollment_methods WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment method: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment method rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
