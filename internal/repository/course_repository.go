package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

const courseColumns = `id, title, summary, instructor_id, status, approval_status, visibility, allow_enrollment,
	max_students, enrolled_count, submitted_for_approval_at, approved_at, approved_by, rejection_reason,
	archived_from_status, created_at, updated_at`

// CourseRepository persists courses and their lifecycle columns.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course or sql.ErrNoRows.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses matching filter with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	where := sq.And{}
	if filter.InstructorID != "" {
		where = append(where, sq.Eq{"instructor_id": filter.InstructorID})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.ApprovalStatus != "" {
		where = append(where, sq.Eq{"approval_status": filter.ApprovalStatus})
	}
	if filter.Visibility != "" {
		where = append(where, sq.Eq{"visibility": filter.Visibility})
	}
	if filter.Search != "" {
		where = append(where, sq.ILike{"title": "%" + filter.Search + "%"})
	}
	if len(filter.IDs) > 0 {
		where = append(where, sq.Eq{"id": filter.IDs})
	}
	if filter.ScopeUserID != "" {
		where = append(where, sq.Or{sq.Eq{"instructor_id": filter.ScopeUserID}, sq.Eq{"id": filter.ScopeIDs}})
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	order := orderClause(map[string]string{
		"created_at": "created_at",
		"title":      "title",
		"updated_at": "updated_at",
	}, filter.SortBy, "created_at", filter.SortOrder)

	query, args, err := psql.Select(courseColumns).From("courses").Where(where).
		OrderBy(order).Limit(uint64(size)).Offset(uint64((page - 1) * size)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build course list query: %w", err)
	}
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("courses").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build course count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// ListIDs returns every course id, used by the reconciliation sweep.
func (r *CourseRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM courses ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list course ids: %w", err)
	}
	return ids, nil
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, title, summary, instructor_id, status, approval_status, visibility,
	allow_enrollment, max_students, enrolled_count, created_at, updated_at)
	VALUES (:id, :title, :summary, :instructor_id, :status, :approval_status, :visibility,
	:allow_enrollment, :max_students, :enrolled_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// UpdateDetails writes the descriptive and enrollment policy fields.
func (r *CourseRepository) UpdateDetails(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, summary = :summary, visibility = :visibility,
	allow_enrollment = :allow_enrollment, max_students = :max_students, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateLifecycle persists the lifecycle columns of course only if the stored state still equals expected.
// A concurrent transition makes it return sql.ErrNoRows.
func (r *CourseRepository) UpdateLifecycle(ctx context.Context, course *models.Course, expected models.LifecycleState) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET status = $2, approval_status = $3, submitted_for_approval_at = $4,
	approved_at = $5, approved_by = $6, rejection_reason = $7, archived_from_status = $8, updated_at = $9
	WHERE id = $1 AND status = $10 AND approval_status = $11`
	res, err := r.db.ExecContext(ctx, query,
		course.ID, course.Status, course.ApprovalStatus, course.SubmittedForApprovalAt,
		course.ApprovedAt, course.ApprovedBy, course.RejectionReason, course.ArchivedFromStatus, course.UpdatedAt,
		expected.Status, expected.ApprovalStatus)
	if err != nil {
		return fmt.Errorf("update course lifecycle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course lifecycle rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a course. Dependent rows cascade in the schema.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete course rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
