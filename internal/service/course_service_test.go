package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type courseStoreStub struct {
	courses    map[string]*models.Course
	lastFilter models.CourseFilter
	seq        int
}

func newCourseStoreStub(courses ...*models.Course) *courseStoreStub {
	s := &courseStoreStub{courses: map[string]*models.Course{}}
	for _, c := range courses {
		s.courses[c.ID] = c
	}
	return s
}

func (s *courseStoreStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (s *courseStoreStub) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	s.lastFilter = filter
	var out []models.Course
	for _, c := range s.courses {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *courseStoreStub) Create(ctx context.Context, course *models.Course) error {
	s.seq++
	course.ID = fmt.Sprintf("course-%d", s.seq)
	copied := *course
	s.courses[course.ID] = &copied
	return nil
}

func (s *courseStoreStub) UpdateDetails(ctx context.Context, course *models.Course) error {
	if _, ok := s.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *course
	s.courses[course.ID] = &copied
	return nil
}

func (s *courseStoreStub) UpdateLifecycle(ctx context.Context, course *models.Course, expected models.LifecycleState) error {
	stored, ok := s.courses[course.ID]
	if !ok || stored.State() != expected {
		return sql.ErrNoRows
	}
	copied := *course
	s.courses[course.ID] = &copied
	return nil
}

func (s *courseStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.courses, id)
	return nil
}

func newCourseServiceForTest(store *courseStoreStub, audit *auditSink, opts ...CourseServiceOption) *CourseService {
	opts = append([]CourseServiceOption{WithCourseClock(func() time.Time { return lifecycleNow })}, opts...)
	return NewCourseService(store, audit, NewMetricsService(), nil, zap.NewNop(), opts...)
}

func TestCourseServiceCreate(t *testing.T) {
	store := newCourseStoreStub()
	svc := newCourseServiceForTest(store, &auditSink{})

	_, err := svc.Create(context.Background(), learnerAccess("learner-1"), CreateCourseRequest{Title: "Go"})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = svc.Create(context.Background(), instructorAccess("inst-1"), CreateCourseRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	course, err := svc.Create(context.Background(), instructorAccess("inst-1"), CreateCourseRequest{Title: "  Concurrency in Go "})
	require.NoError(t, err)
	assert.Equal(t, "Concurrency in Go", course.Title)
	assert.Equal(t, "inst-1", course.InstructorID)
	assert.Equal(t, models.CourseStatusDraft, course.Status)
	assert.Equal(t, models.ApprovalStatusDraft, course.ApprovalStatus)
	assert.Equal(t, models.VisibilityPrivate, course.Visibility)
}

func TestCourseServiceApprovalFlow(t *testing.T) {
	store := newCourseStoreStub(draftCourse())
	audit := &auditSink{}
	metrics := NewMetricsService()
	svc := NewCourseService(store, audit, metrics, nil, zap.NewNop(), WithCourseClock(func() time.Time { return lifecycleNow }))
	ctx := context.Background()

	_, err := svc.SubmitForApproval(ctx, instructorAccess("inst-1"), "course-1")
	require.NoError(t, err)
	_, err = svc.Publish(ctx, instructorAccess("inst-1"), "course-1")
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, errorCode(err))

	_, err = svc.Approve(ctx, adminAccess(), "course-1")
	require.NoError(t, err)
	course, err := svc.Publish(ctx, instructorAccess("inst-1"), "course-1")
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPublished, course.Status)
	assert.Equal(t, models.CourseStatusPublished, store.courses["course-1"].Status)

	assert.Equal(t, []string{models.AuditActionCourseSubmit, models.AuditActionCourseApprove, models.AuditActionCoursePublish}, audit.actions())
	assert.Equal(t, uint64(3), metrics.Snapshot().LifecycleTransitions)
}

func TestCourseServiceApproveAutoPublishes(t *testing.T) {
	course := draftCourse()
	course.ApprovalStatus = models.ApprovalStatusPendingApproval
	store := newCourseStoreStub(course)
	svc := newCourseServiceForTest(store, &auditSink{}, WithAutoPublishOnApprove(true))

	approved, err := svc.Approve(context.Background(), adminAccess(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, approved.ApprovalStatus)
	assert.Equal(t, models.CourseStatusPublished, approved.Status)
}

func TestCourseServiceRejectInsufficientContent(t *testing.T) {
	course := draftCourse()
	course.ApprovalStatus = models.ApprovalStatusPendingApproval
	store := newCourseStoreStub(course)
	svc := newCourseServiceForTest(store, &auditSink{})

	rejected, err := svc.Reject(context.Background(), adminAccess(), "course-1", "insufficient content")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusRejected, rejected.ApprovalStatus)
	assert.Equal(t, "insufficient content", *store.courses["course-1"].RejectionReason)
	assert.Equal(t, models.CourseStatusDraft, store.courses["course-1"].Status)
}

func TestCourseServiceTransitionConflict(t *testing.T) {
	store := newCourseStoreStub(draftCourse())
	svc := newCourseServiceForTest(store, &auditSink{})

	stale := &staleCourseStore{courseStoreStub: store}
	svc.repo = stale
	_, err := svc.SubmitForApproval(context.Background(), instructorAccess("inst-1"), "course-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(err))
}

// staleCourseStore simulates a concurrent writer moving the course between the read and the conditional write.
type staleCourseStore struct {
	*courseStoreStub
}

func (s *staleCourseStore) UpdateLifecycle(ctx context.Context, course *models.Course, expected models.LifecycleState) error {
	s.courses[course.ID].ApprovalStatus = models.ApprovalStatusPendingApproval
	return s.courseStoreStub.UpdateLifecycle(ctx, course, expected)
}

func TestCourseServiceGetHidesPrivateCourses(t *testing.T) {
	store := newCourseStoreStub(draftCourse())
	svc := newCourseServiceForTest(store, &auditSink{})

	_, err := svc.Get(context.Background(), learnerAccess("learner-1"), "course-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	viewer := &models.AccessContext{UserID: "obs-1", Role: models.RoleStudent, Grants: map[string]models.PermissionLevel{"course-1": models.PermissionView}}
	course, err := svc.Get(context.Background(), viewer, "course-1")
	require.NoError(t, err)
	assert.Equal(t, "course-1", course.ID)

	store.courses["course-1"].Status = models.CourseStatusPublished
	_, err = svc.Get(context.Background(), learnerAccess("learner-1"), "course-1")
	assert.NoError(t, err)
}

func TestCourseServiceListScopes(t *testing.T) {
	store := newCourseStoreStub(draftCourse())
	svc := newCourseServiceForTest(store, &auditSink{})

	_, page, err := svc.List(context.Background(), learnerAccess("learner-1"), models.CourseFilter{Status: models.CourseStatusDraft, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPublished, store.lastFilter.Status)
	assert.Equal(t, models.VisibilityPublic, store.lastFilter.Visibility)
	assert.Equal(t, 20, page.PageSize)

	grantee := &models.AccessContext{UserID: "ta-1", Role: models.RoleInstructor, Grants: map[string]models.PermissionLevel{"course-9": models.PermissionEdit}}
	_, _, err = svc.List(context.Background(), grantee, models.CourseFilter{Mine: true})
	require.NoError(t, err)
	assert.Equal(t, "ta-1", store.lastFilter.ScopeUserID)
	assert.Equal(t, []string{"course-9"}, store.lastFilter.ScopeIDs)

	_, _, err = svc.List(context.Background(), adminAccess(), models.CourseFilter{Status: models.CourseStatusDraft})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusDraft, store.lastFilter.Status)
}

func TestCourseServiceUpdate(t *testing.T) {
	course := draftCourse()
	course.EnrolledCount = 5
	store := newCourseStoreStub(course)
	svc := newCourseServiceForTest(store, &auditSink{})

	_, err := svc.Update(context.Background(), instructorAccess("inst-1"), "course-1", UpdateCourseRequest{MaxStudents: intPtr(3)})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	_, err = svc.Update(context.Background(), learnerAccess("learner-1"), "course-1", UpdateCourseRequest{Title: strRef("x")})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	updated, err := svc.Update(context.Background(), instructorAccess("inst-1"), "course-1", UpdateCourseRequest{Title: strRef("Advanced Go"), MaxStudents: intPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, "Advanced Go", updated.Title)
	assert.Equal(t, 10, *store.courses["course-1"].MaxStudents)
}

func TestCourseServiceDelete(t *testing.T) {
	store := newCourseStoreStub(draftCourse())
	audit := &auditSink{}
	svc := newCourseServiceForTest(store, audit)

	editor := &models.AccessContext{UserID: "ed-1", Role: models.RoleInstructor, Grants: map[string]models.PermissionLevel{"course-1": models.PermissionEdit}}
	err := svc.Delete(context.Background(), editor, "course-1")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	require.NoError(t, svc.Delete(context.Background(), instructorAccess("inst-1"), "course-1"))
	assert.Empty(t, store.courses)
	assert.Equal(t, []string{models.AuditActionCourseDelete}, audit.actions())

	err = svc.Delete(context.Background(), adminAccess(), "course-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))
}
