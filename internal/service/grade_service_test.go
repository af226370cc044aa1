package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

// memoryCache mimics the Redis repository: values are stored as JSON so decoding behaves the same way.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
		c.deletes = append(c.deletes, key)
	}
	return nil
}

type gradeStoreStub struct {
	categories      []models.GradeCategory
	assignments     []models.Assignment
	submissions     map[string]*models.Submission
	submissionLoads int
	gradeErr        error
}

func (s *gradeStoreStub) ListCategories(ctx context.Context, courseID string) ([]models.GradeCategory, error) {
	return s.categories, nil
}

func (s *gradeStoreStub) ListAssignments(ctx context.Context, courseID string) ([]models.Assignment, error) {
	return s.assignments, nil
}

func (s *gradeStoreStub) FindAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	for _, a := range s.assignments {
		if a.ID == id {
			copied := a
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *gradeStoreStub) ListSubmissions(ctx context.Context, courseID, userID string) ([]models.Submission, error) {
	s.submissionLoads++
	var out []models.Submission
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *gradeStoreStub) FindSubmission(ctx context.Context, id string) (*models.Submission, error) {
	sub, ok := s.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *sub
	return &copied, nil
}

func (s *gradeStoreStub) GradeSubmission(ctx context.Context, id string, points float64, feedback *string, grader string, at time.Time) error {
	if s.gradeErr != nil {
		return s.gradeErr
	}
	sub := s.submissions[id]
	sub.Status = models.SubmissionGraded
	sub.PointsEarned = &points
	return nil
}

func newGradeFixture() (*gradeStoreStub, *memoryCache, *GradeService) {
	store := &gradeStoreStub{
		categories: []models.GradeCategory{
			{ID: "cat-a", CourseID: "course-1", Name: "Homework", Weight: 50},
			{ID: "cat-b", CourseID: "course-1", Name: "Exams", Weight: 50},
		},
		assignments: []models.Assignment{
			{ID: "a1", CourseID: "course-1", CategoryID: strRef("cat-a"), MaxPoints: 100},
			{ID: "a2", CourseID: "course-1", CategoryID: strRef("cat-a"), MaxPoints: 100},
			{ID: "a3", CourseID: "course-1", CategoryID: strRef("cat-b"), MaxPoints: 100},
		},
		submissions: map[string]*models.Submission{},
	}
	for _, s := range []models.Submission{
		gradedSubmission("s1", "a1", 80),
		gradedSubmission("s2", "a2", 90),
		{ID: "s3", AssignmentID: "a3", UserID: "learner-1", Status: models.SubmissionSubmitted},
	} {
		sub := s
		store.submissions[sub.ID] = &sub
	}
	cache := newMemoryCache()
	courses := newCourseStoreStub(draftCourse())
	svc := NewGradeService(courses, store, NewCacheService(cache, nil, time.Minute, zap.NewNop(), true), time.Minute, nil, zap.NewNop())
	svc.now = func() time.Time { return lifecycleNow }
	return store, cache, svc
}

func TestGradeSummaryCachesUntilGraded(t *testing.T) {
	store, cache, svc := newGradeFixture()
	ctx := context.Background()

	summary, err := svc.Summary(ctx, learnerAccess("learner-1"), "course-1", "")
	require.NoError(t, err)
	assert.Equal(t, "learner-1", summary.UserID)
	assert.Equal(t, 85.0, *summary.OverallPercentage)
	assert.Equal(t, 1, summary.PendingCount)

	_, err = svc.Summary(ctx, learnerAccess("learner-1"), "course-1", "learner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.submissionLoads, "second read is served from cache")

	_, err = svc.GradeSubmission(ctx, instructorAccess("inst-1"), "s3", GradeSubmissionRequest{Points: floatRef(100)})
	require.NoError(t, err)
	assert.Contains(t, cache.deletes, gradeSummaryCacheKey("course-1", "learner-1"))

	summary, err = svc.Summary(ctx, learnerAccess("learner-1"), "course-1", "")
	require.NoError(t, err)
	assert.Equal(t, 92.5, *summary.OverallPercentage)
	assert.Equal(t, 2, store.submissionLoads)
}

func TestGradeSummaryPermissions(t *testing.T) {
	_, _, svc := newGradeFixture()

	_, err := svc.Summary(context.Background(), learnerAccess("learner-2"), "course-1", "learner-1")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	viewer := &models.AccessContext{UserID: "obs-1", Role: models.RoleStudent, Grants: map[string]models.PermissionLevel{"course-1": models.PermissionView}}
	summary, err := svc.Summary(context.Background(), viewer, "course-1", "learner-1")
	require.NoError(t, err)
	assert.Equal(t, "learner-1", summary.UserID)
}

func TestGradeSubmissionValidation(t *testing.T) {
	store, _, svc := newGradeFixture()
	store.submissions["draft"] = &models.Submission{ID: "draft", AssignmentID: "a3", UserID: "learner-1", Status: models.SubmissionDraft}
	ctx := context.Background()

	_, err := svc.GradeSubmission(ctx, instructorAccess("inst-1"), "s3", GradeSubmissionRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	_, err = svc.GradeSubmission(ctx, instructorAccess("inst-1"), "s3", GradeSubmissionRequest{Points: floatRef(-1)})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	_, err = svc.GradeSubmission(ctx, instructorAccess("inst-1"), "s3", GradeSubmissionRequest{Points: floatRef(100.5)})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))

	_, err = svc.GradeSubmission(ctx, learnerAccess("learner-1"), "s3", GradeSubmissionRequest{Points: floatRef(50)})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = svc.GradeSubmission(ctx, instructorAccess("inst-1"), "draft", GradeSubmissionRequest{Points: floatRef(50)})
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, errorCode(err))

	_, err = svc.GradeSubmission(ctx, instructorAccess("inst-1"), "missing", GradeSubmissionRequest{Points: floatRef(50)})
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	graded, err := svc.GradeSubmission(ctx, instructorAccess("inst-1"), "s3", GradeSubmissionRequest{Points: floatRef(0), Feedback: strRef("see rubric")})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionGraded, graded.Status)
	assert.Equal(t, 0.0, *graded.PointsEarned)
	assert.Equal(t, "inst-1", *graded.GradedBy)
}

func floatRef(v float64) *float64 { return &v }
