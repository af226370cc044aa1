package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-core-api/internal/models"
)

const requestColumns = `id, course_id, method_id, user_id, status, message, requested_at, reviewed_by, reviewed_at, note`

// ErrPendingRequestExists reports that the learner already has an open request for the course.
var ErrPendingRequestExists = errors.New("enrollment request already pending")

// EnrollmentRequestRepository persists approval-gated enrollment requests.
type EnrollmentRequestRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRequestRepository constructs the repository.
func NewEnrollmentRequestRepository(db *sqlx.DB) *EnrollmentRequestRepository {
	return &EnrollmentRequestRepository{db: db}
}

// Create inserts a pending request. A second open request for the same learner and course returns
// ErrPendingRequestExists.
func (r *EnrollmentRequestRepository) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_requests (id, course_id, method_id, user_id, status, message, requested_at)
	VALUES (:id, :course_id, :method_id, :user_id, :status, :message, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrPendingRequestExists
		}
		return fmt.Errorf("create enrollment request: %w", err)
	}
	return nil
}

// FindByID returns a request or sql.ErrNoRows.
func (r *EnrollmentRequestRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM enrollment_requests WHERE id = $1`
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindPending returns the user's open request for the course, or sql.ErrNoRows.
func (r *EnrollmentRequestRepository) FindPending(ctx context.Context, userID, courseID string) (*models.EnrollmentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM enrollment_requests
	WHERE user_id = $1 AND course_id = $2 AND status = 'pending' ORDER BY requested_at DESC LIMIT 1`
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, userID, courseID); err != nil {
		return nil, err
	}
	return &request, nil
}

// ListByCourse returns requests for a course, optionally filtered by status, oldest first.
func (r *EnrollmentRequestRepository) ListByCourse(ctx context.Context, courseID string, status models.EnrollmentRequestStatus) ([]models.EnrollmentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM enrollment_requests WHERE course_id = $1`
	args := []interface{}{courseID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY requested_at`
	var requests []models.EnrollmentRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollment requests: %w", err)
	}
	return requests, nil
}

// Review records a decision on a request that is still pending. A request already reviewed yields sql.ErrNoRows.
func (r *EnrollmentRequestRepository) Review(ctx context.Context, id string, status models.EnrollmentRequestStatus, reviewer string, note *string, at time.Time) error {
	const query = `UPDATE enrollment_requests SET status = $2, reviewed_by = $3, reviewed_at = $4, note = $5
	WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, status, reviewer, at, note)
	if err != nil {
		return fmt.Errorf("review enrollment request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check enrollment request update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Reopen puts a request back to pending after an approval whose admission was refused.
func (r *EnrollmentRequestRepository) Reopen(ctx context.Context, id string) error {
	const query = `UPDATE enrollment_requests SET status = 'pending', reviewed_by = NULL, reviewed_at = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("reopen enrollment request: %w", err)
	}
	return nil
}
