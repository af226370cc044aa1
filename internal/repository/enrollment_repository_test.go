package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-core-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func strPtr(s string) *string { return &s }

func TestEnrollmentRepositoryAdmitReservesCourseThenMethod(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + 1")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_methods SET current_enrollments = current_enrollments + 1")).
		WithArgs("method-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.Admit(context.Background(), AdmitParams{
		UserID:   "user-1",
		CourseID: "course-1",
		MethodID: strPtr("method-1"),
		Role:     models.CourseRoleStudent,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionAdmitted, result.Status)
	require.NotNil(t, result.Enrollment)
	assert.NotEmpty(t, result.Enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitMethodFullRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_methods SET current_enrollments = current_enrollments + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	result, err := repo.Admit(context.Background(), AdmitParams{UserID: "user-1", CourseID: "course-1", MethodID: strPtr("method-1")})
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionMethodFull, result.Status)
	assert.Nil(t, result.Enrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitCourseFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	result, err := repo.Admit(context.Background(), AdmitParams{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionCourseFull, result.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	result, err := repo.Admit(context.Background(), AdmitParams{UserID: "user-1", CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionAlreadyActive, result.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitBatchStopsAtProjectedCapacity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students, enrolled_count FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students", "enrolled_count"}).AddRow(nil, 10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_enrollments, current_enrollments FROM enrollment_methods WHERE id = $1 FOR UPDATE")).
		WithArgs("method-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_enrollments", "current_enrollments"}).AddRow(3, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM enrollments")).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u2"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + $2")).
		WithArgs("course-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_methods SET current_enrollments = current_enrollments + $2")).
		WithArgs("method-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results, err := repo.AdmitBatch(context.Background(), BatchAdmitParams{
		CourseID: "course-1",
		MethodID: strPtr("method-1"),
		UserIDs:  []string{"u1", "u2", "u3", "u4", "u1"},
		Role:     models.CourseRoleStudent,
	})
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, models.AdmissionAdmitted, results[0].Status)
	assert.Equal(t, models.AdmissionAlreadyActive, results[1].Status)
	assert.Equal(t, models.AdmissionAdmitted, results[2].Status)
	assert.Equal(t, models.AdmissionMethodFull, results[3].Status)
	assert.Equal(t, models.AdmissionAlreadyActive, results[4].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransitionStatusReleasesSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE enrollments SET status = $3")).
		WithArgs("enr-1", models.EnrollmentStatusActive, models.EnrollmentStatusDropped).
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "method_id"}).AddRow("course-1", "method-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = GREATEST(enrolled_count - 1, 0)")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_methods SET current_enrollments = GREATEST(current_enrollments - 1, 0)")).
		WithArgs("method-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status, err := repo.TransitionStatus(context.Background(), "enr-1", models.EnrollmentStatusActive, models.EnrollmentStatusDropped)
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionAdmitted, status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryTransitionStatusStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE enrollments SET status = $3")).
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "method_id"}))
	mock.ExpectRollback()

	_, err := repo.TransitionStatus(context.Background(), "enr-1", models.EnrollmentStatusSuspended, models.EnrollmentStatusActive)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReactivationNeedsSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE enrollments SET status = $3")).
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "method_id"}).AddRow("course-1", nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = enrolled_count + 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	status, err := repo.TransitionStatus(context.Background(), "enr-1", models.EnrollmentStatusSuspended, models.EnrollmentStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionCourseFull, status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRemoveActiveReleasesSeatAndGroups(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1 RETURNING")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "course_id", "method_id", "status", "course_role", "progress_percentage", "enrolled_at", "enrolled_by", "updated_at"}).
			AddRow("enr-1", "user-1", "course-1", nil, "active", "student", 0.0, now, nil, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = GREATEST")).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM group_members")).
		WithArgs("course-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	removed, err := repo.Remove(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", removed.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReconcileRepairsDrift(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT enrolled_count FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled_count"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("SELECT id FROM enrollment_methods WHERE course_id = $1 FOR UPDATE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = 'active'")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET enrolled_count = $2")).
		WithArgs("course-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT m.id, m.current_enrollments, COUNT(e.id) AS actual")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "current_enrollments", "actual"}).
			AddRow("m1", 1, 1).
			AddRow("m2", 2, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_methods SET current_enrollments = $2")).
		WithArgs("m2", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	report, err := repo.Reconcile(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, report.Drifts, 2)
	assert.Equal(t, models.CounterDrift{Entity: "course", EntityID: "course-1", Stored: 3, Actual: 2}, report.Drifts[0])
	assert.Equal(t, "m2", report.Drifts[1].EntityID)
	assert.True(t, report.Repaired())
	require.NoError(t, mock.ExpectationsWereMet())
}
