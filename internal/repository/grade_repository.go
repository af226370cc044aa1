package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// GradeRepository reads the gradebook inputs of a course and records grading decisions.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListCategories returns the grade categories of a course.
func (r *GradeRepository) ListCategories(ctx context.Context, courseID string) ([]models.GradeCategory, error) {
	const query = `SELECT id, course_id, name, weight, created_at FROM grade_categories WHERE course_id = $1 ORDER BY name`
	var categories []models.GradeCategory
	if err := r.db.SelectContext(ctx, &categories, query, courseID); err != nil {
		return nil, fmt.Errorf("list grade categories: %w", err)
	}
	return categories, nil
}

// ListAssignments returns the assignments of a course.
func (r *GradeRepository) ListAssignments(ctx context.Context, courseID string) ([]models.Assignment, error) {
	const query = `SELECT id, course_id, category_id, title, max_points, created_at FROM assignments WHERE course_id = $1 ORDER BY created_at`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// FindAssignment returns an assignment or sql.ErrNoRows.
func (r *GradeRepository) FindAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT id, course_id, category_id, title, max_points, created_at FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListSubmissions returns one learner's submissions in a course.
func (r *GradeRepository) ListSubmissions(ctx context.Context, courseID, userID string) ([]models.Submission, error) {
	const query = `SELECT s.id, s.assignment_id, s.user_id, s.status, s.points_earned, s.feedback, s.graded_by, s.graded_at, s.updated_at
	FROM submissions s
	JOIN assignments a ON a.id = s.assignment_id
	WHERE a.course_id = $1 AND s.user_id = $2`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, courseID, userID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// FindSubmission returns a submission or sql.ErrNoRows.
func (r *GradeRepository) FindSubmission(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, user_id, status, points_earned, feedback, graded_by, graded_at, updated_at FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// GradeSubmission stores points and feedback and marks the submission graded. Drafts are never graded.
func (r *GradeRepository) GradeSubmission(ctx context.Context, id string, points float64, feedback *string, grader string, at time.Time) error {
	const query = `UPDATE submissions SET status = 'graded', points_earned = $2, feedback = $3, graded_by = $4, graded_at = $5, updated_at = $5
	WHERE id = $1 AND status <> 'draft'`
	res, err := r.db.ExecContext(ctx, query, id, points, feedback, grader, at)
	if err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("grade submission rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
