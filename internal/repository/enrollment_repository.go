package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/pkg/database"
)

const enrollmentColumns = `id, user_id, course_id, method_id, status, course_role, progress_percentage, enrolled_at, enrolled_by, updated_at`

const uniqueViolation = "23505"

var (
	errMethodFull    = errors.New("method capacity reached")
	errCourseFull    = errors.New("course capacity reached")
	errAlreadyActive = errors.New("enrollment already active")
)

// AdmitParams describes a single admission write.
type AdmitParams struct {
	UserID     string
	CourseID   string
	MethodID   *string
	Role       models.CourseRole
	EnrolledBy *string
}

// BatchAdmitParams describes a staff batch admission through one method.
type BatchAdmitParams struct {
	CourseID   string
	MethodID   *string
	UserIDs    []string
	Role       models.CourseRole
	EnrolledBy *string
}

// EnrollmentRepository persists enrollments and keeps the denormalized counters on courses and methods in step.
// Every write that changes the active set takes the course row lock first, then the method row.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment or sql.ErrNoRows.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindCurrent returns the user's active or suspended enrollment in the course, or sql.ErrNoRows.
func (r *EnrollmentRepository) FindCurrent(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
	WHERE user_id = $1 AND course_id = $2 AND status IN ('active', 'suspended') LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// List returns enrollments joined with participant details.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	where := sq.And{}
	if filter.CourseID != "" {
		where = append(where, sq.Eq{"e.course_id": filter.CourseID})
	}
	if filter.UserID != "" {
		where = append(where, sq.Eq{"e.user_id": filter.UserID})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"e.status": filter.Status})
	}
	if filter.Role != "" {
		where = append(where, sq.Eq{"e.course_role": filter.Role})
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	order := orderClause(map[string]string{
		"enrolled_at": "e.enrolled_at",
		"user_name":   "u.full_name",
		"progress":    "e.progress_percentage",
	}, filter.SortBy, "e.enrolled_at", filter.SortOrder)

	query, args, err := psql.Select(
		"e.id", "e.user_id", "e.course_id", "e.method_id", "e.status", "e.course_role",
		"e.progress_percentage", "e.enrolled_at", "e.enrolled_by", "e.updated_at",
		"u.full_name AS user_name", "u.email AS user_email",
	).From("enrollments e").
		Join("users u ON u.id = e.user_id").
		Where(where).OrderBy(order).
		Limit(uint64(size)).Offset(uint64((page - 1) * size)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build enrollment list query: %w", err)
	}
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("enrollments e").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build enrollment count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// Admit reserves a seat on the course and the method with conditional increments and inserts the enrollment,
// all in one transaction. Refusals are reported through the result status, not as errors.
func (r *EnrollmentRepository) Admit(ctx context.Context, params AdmitParams) (*models.AdmissionResult, error) {
	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		UserID:     params.UserID,
		CourseID:   params.CourseID,
		MethodID:   params.MethodID,
		Status:     models.EnrollmentStatusActive,
		CourseRole: params.Role,
		EnrolledBy: params.EnrolledBy,
	}
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := reserveSeat(ctx, tx, params.CourseID, params.MethodID); err != nil {
			return err
		}
		return insertEnrollment(ctx, tx, enrollment)
	})
	status, err := admissionStatus(err)
	if err != nil {
		return nil, fmt.Errorf("admit enrollment: %w", err)
	}
	result := &models.AdmissionResult{UserID: params.UserID, Status: status}
	if status == models.AdmissionAdmitted {
		result.Enrollment = enrollment
	}
	return result, nil
}

// AdmitBatch locks the course and method rows, admits users in order until the projected capacity runs out,
// and bumps both counters by the admitted count.
func (r *EnrollmentRepository) AdmitBatch(ctx context.Context, params BatchAdmitParams) ([]models.AdmissionResult, error) {
	var results []models.AdmissionResult
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		results = make([]models.AdmissionResult, 0, len(params.UserIDs))

		var course struct {
			MaxStudents   *int `db:"max_students"`
			EnrolledCount int  `db:"enrolled_count"`
		}
		if err := tx.GetContext(ctx, &course, `SELECT max_students, enrolled_count FROM courses WHERE id = $1 FOR UPDATE`, params.CourseID); err != nil {
			return fmt.Errorf("lock course: %w", err)
		}
		courseLeft := remaining(course.MaxStudents, course.EnrolledCount)

		methodLeft := -1
		if params.MethodID != nil {
			var method struct {
				MaxEnrollments     *int `db:"max_enrollments"`
				CurrentEnrollments int  `db:"current_enrollments"`
			}
			if err := tx.GetContext(ctx, &method, `SELECT max_enrollments, current_enrollments FROM enrollment_methods WHERE id = $1 FOR UPDATE`, *params.MethodID); err != nil {
				return fmt.Errorf("lock enrollment method: %w", err)
			}
			methodLeft = remaining(method.MaxEnrollments, method.CurrentEnrollments)
		}

		var current []string
		if err := tx.SelectContext(ctx, &current, `SELECT user_id FROM enrollments
		WHERE course_id = $1 AND status IN ('active', 'suspended') AND user_id = ANY($2)`, params.CourseID, pq.Array(params.UserIDs)); err != nil {
			return fmt.Errorf("load current enrollments: %w", err)
		}
		seen := make(map[string]struct{}, len(params.UserIDs))
		for _, id := range current {
			seen[id] = struct{}{}
		}

		admitted := 0
		for _, userID := range params.UserIDs {
			if _, dup := seen[userID]; dup {
				results = append(results, models.AdmissionResult{UserID: userID, Status: models.AdmissionAlreadyActive})
				continue
			}
			seen[userID] = struct{}{}
			if methodLeft == 0 {
				results = append(results, models.AdmissionResult{UserID: userID, Status: models.AdmissionMethodFull})
				continue
			}
			if courseLeft == 0 {
				results = append(results, models.AdmissionResult{UserID: userID, Status: models.AdmissionCourseFull})
				continue
			}
			enrollment := &models.Enrollment{
				ID:         uuid.NewString(),
				UserID:     userID,
				CourseID:   params.CourseID,
				MethodID:   params.MethodID,
				Status:     models.EnrollmentStatusActive,
				CourseRole: params.Role,
				EnrolledBy: params.EnrolledBy,
			}
			if err := insertEnrollment(ctx, tx, enrollment); err != nil {
				return err
			}
			results = append(results, models.AdmissionResult{UserID: userID, Status: models.AdmissionAdmitted, Enrollment: enrollment})
			admitted++
			courseLeft = decrementLeft(courseLeft)
			methodLeft = decrementLeft(methodLeft)
		}

		if admitted == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE courses SET enrolled_count = enrolled_count + $2, updated_at = NOW() WHERE id = $1`, params.CourseID, admitted); err != nil {
			return fmt.Errorf("increment course count: %w", err)
		}
		if params.MethodID != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE enrollment_methods SET current_enrollments = current_enrollments + $2, updated_at = NOW() WHERE id = $1`, *params.MethodID, admitted); err != nil {
				return fmt.Errorf("increment method count: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("admit batch: %w", err)
	}
	return results, nil
}

// TransitionStatus moves an enrollment from one status to another and adjusts the counters when it enters or
// leaves the active set. Reactivation must find a free seat. A stale from status yields sql.ErrNoRows.
func (r *EnrollmentRepository) TransitionStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (models.AdmissionStatus, error) {
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var row struct {
			CourseID string  `db:"course_id"`
			MethodID *string `db:"method_id"`
		}
		if err := tx.GetContext(ctx, &row, `UPDATE enrollments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2 RETURNING course_id, method_id`, id, from, to); err != nil {
			return err
		}
		switch {
		case from == models.EnrollmentStatusActive && to != models.EnrollmentStatusActive:
			return releaseSeat(ctx, tx, row.CourseID, row.MethodID)
		case from != models.EnrollmentStatusActive && to == models.EnrollmentStatusActive:
			return reserveSeat(ctx, tx, row.CourseID, row.MethodID)
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	status, err := admissionStatus(err)
	if err != nil {
		return "", fmt.Errorf("transition enrollment status: %w", err)
	}
	return status, nil
}

// UpdateProgress sets the completion percentage.
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, id string, progress float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollments SET progress_percentage = $2, updated_at = NOW() WHERE id = $1`, id, progress)
	if err != nil {
		return fmt.Errorf("update enrollment progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment progress rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Remove deletes an enrollment together with the user's group memberships in that course, releasing the seat
// when the enrollment was active.
func (r *EnrollmentRepository) Remove(ctx context.Context, id string) (*models.Enrollment, error) {
	var removed models.Enrollment
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `DELETE FROM enrollments WHERE id = $1 RETURNING ` + enrollmentColumns
		if err := tx.GetContext(ctx, &removed, query, id); err != nil {
			return err
		}
		if removed.Status == models.EnrollmentStatusActive {
			if err := releaseSeat(ctx, tx, removed.CourseID, removed.MethodID); err != nil {
				return err
			}
		}
		const groups = `WITH gone AS (
			DELETE FROM group_members gm USING groups g
			WHERE gm.group_id = g.id AND g.course_id = $1 AND gm.user_id = $2
			RETURNING gm.group_id
		)
		UPDATE groups SET current_members = GREATEST(current_members - 1, 0)
		WHERE id IN (SELECT group_id FROM gone)`
		if _, err := tx.ExecContext(ctx, groups, removed.CourseID, removed.UserID); err != nil {
			return fmt.Errorf("remove group memberships: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("remove enrollment: %w", err)
	}
	return &removed, nil
}

// Reconcile recomputes the course and method counters from the active enrollment rows and reports what drifted.
func (r *EnrollmentRepository) Reconcile(ctx context.Context, courseID string) (*models.CounterReport, error) {
	report := &models.CounterReport{CourseID: courseID, Drifts: []models.CounterDrift{}}
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var stored int
		if err := tx.GetContext(ctx, &stored, `SELECT enrolled_count FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `SELECT id FROM enrollment_methods WHERE course_id = $1 FOR UPDATE`, courseID); err != nil {
			return fmt.Errorf("lock enrollment methods: %w", err)
		}

		var actual int
		if err := tx.GetContext(ctx, &actual, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = 'active'`, courseID); err != nil {
			return fmt.Errorf("count active enrollments: %w", err)
		}
		if actual != stored {
			if _, err := tx.ExecContext(ctx, `UPDATE courses SET enrolled_count = $2, updated_at = NOW() WHERE id = $1`, courseID, actual); err != nil {
				return fmt.Errorf("repair course count: %w", err)
			}
			report.Drifts = append(report.Drifts, models.CounterDrift{Entity: "course", EntityID: courseID, Stored: stored, Actual: actual})
		}

		var methods []struct {
			ID     string `db:"id"`
			Stored int    `db:"current_enrollments"`
			Actual int    `db:"actual"`
		}
		const methodQuery = `SELECT m.id, m.current_enrollments, COUNT(e.id) AS actual
		FROM enrollment_methods m
		LEFT JOIN enrollments e ON e.method_id = m.id AND e.status = 'active'
		WHERE m.course_id = $1
		GROUP BY m.id, m.current_enrollments
		ORDER BY m.id`
		if err := tx.SelectContext(ctx, &methods, methodQuery, courseID); err != nil {
			return fmt.Errorf("count method enrollments: %w", err)
		}
		for _, m := range methods {
			if m.Stored == m.Actual {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE enrollment_methods SET current_enrollments = $2, updated_at = NOW() WHERE id = $1`, m.ID, m.Actual); err != nil {
				return fmt.Errorf("repair method count: %w", err)
			}
			report.Drifts = append(report.Drifts, models.CounterDrift{Entity: "enrollment_method", EntityID: m.ID, Stored: m.Stored, Actual: m.Actual})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("reconcile course %s: %w", courseID, err)
	}
	return report, nil
}

func reserveSeat(ctx context.Context, tx *sqlx.Tx, courseID string, methodID *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE courses SET enrolled_count = enrolled_count + 1, updated_at = NOW()
	WHERE id = $1 AND (max_students IS NULL OR enrolled_count < max_students)`, courseID)
	if err != nil {
		return fmt.Errorf("increment course count: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("increment course count rows affected: %w", err)
	} else if affected == 0 {
		return errCourseFull
	}

	if methodID == nil {
		return nil
	}
	res, err = tx.ExecContext(ctx, `UPDATE enrollment_methods SET current_enrollments = current_enrollments + 1, updated_at = NOW()
	WHERE id = $1 AND (max_enrollments IS NULL OR current_enrollments < max_enrollments)`, *methodID)
	if err != nil {
		return fmt.Errorf("increment method count: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("increment method count rows affected: %w", err)
	} else if affected == 0 {
		return errMethodFull
	}
	return nil
}

func releaseSeat(ctx context.Context, tx *sqlx.Tx, courseID string, methodID *string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE courses SET enrolled_count = GREATEST(enrolled_count - 1, 0), updated_at = NOW() WHERE id = $1`, courseID); err != nil {
		return fmt.Errorf("decrement course count: %w", err)
	}
	if methodID == nil {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE enrollment_methods SET current_enrollments = GREATEST(current_enrollments - 1, 0), updated_at = NOW() WHERE id = $1`, *methodID); err != nil {
		return fmt.Errorf("decrement method count: %w", err)
	}
	return nil
}

func insertEnrollment(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	now := time.Now().UTC()
	enrollment.EnrolledAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, user_id, course_id, method_id, status, course_role, progress_percentage, enrolled_at, enrolled_by, updated_at)
	VALUES (:id, :user_id, :course_id, :method_id, :status, :course_role, :progress_percentage, :enrolled_at, :enrolled_by, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return errAlreadyActive
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func admissionStatus(err error) (models.AdmissionStatus, error) {
	switch {
	case err == nil:
		return models.AdmissionAdmitted, nil
	case errors.Is(err, errMethodFull):
		return models.AdmissionMethodFull, nil
	case errors.Is(err, errCourseFull):
		return models.AdmissionCourseFull, nil
	case errors.Is(err, errAlreadyActive):
		return models.AdmissionAlreadyActive, nil
	default:
		return "", err
	}
}

func remaining(max *int, current int) int {
	if max == nil {
		return -1
	}
	if left := *max - current; left > 0 {
		return left
	}
	return 0
}

func decrementLeft(left int) int {
	if left > 0 {
		return left - 1
	}
	return left
}
