package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type gradeStore interface {
	ListCategories(ctx context.Context, courseID string) ([]models.GradeCategory, error)
	ListAssignments(ctx context.Context, courseID string) ([]models.Assignment, error)
	FindAssignment(ctx context.Context, id string) (*models.Assignment, error)
	ListSubmissions(ctx context.Context, courseID, userID string) ([]models.Submission, error)
	FindSubmission(ctx context.Context, id string) (*models.Submission, error)
	GradeSubmission(ctx context.Context, id string, points float64, feedback *string, grader string, at time.Time) error
}

// GradeSubmissionRequest carries the score awarded to a submission.
type GradeSubmissionRequest struct {
	Points   *float64 `json:"points" validate:"required,gte=0"`
	Feedback *string  `json:"feedback" validate:"omitempty,max=5000"`
}

// GradeService computes learner grade summaries and records grading.
type GradeService struct {
	courses   courseReader
	grades    gradeStore
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs the service. cache may be nil.
func NewGradeService(courses courseReader, grades gradeStore, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GradeService{
		courses:   courses,
		grades:    grades,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns userID's aggregated grades for a course. Learners may read their own summary; anyone else
// needs view permission on the course. An empty userID means the caller.
func (s *GradeService) Summary(ctx context.Context, access *models.AccessContext, courseID, userID string) (*models.GradeSummary, error) {
	if userID == "" {
		userID = access.UserID
	}
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if userID != access.UserID && !access.CanView(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "view permission required")
	}

	key := gradeSummaryCacheKey(course.ID, userID)
	var cached models.GradeSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	categories, err := s.grades.ListCategories(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade categories")
	}
	assignments, err := s.grades.ListAssignments(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	submissions, err := s.grades.ListSubmissions(ctx, course.ID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	summary := AggregateGrades(submissions, assignments, categories)
	summary.CourseID = course.ID
	summary.UserID = userID
	summary.GeneratedAt = s.now()
	_ = s.cache.Set(ctx, key, summary, s.cacheTTL)
	return &summary, nil
}

// GradeSubmission scores a submitted piece of work and drops the learner's cached summary.
func (s *GradeService) GradeSubmission(ctx context.Context, access *models.AccessContext, submissionID string, req GradeSubmissionRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	submission, err := s.grades.FindSubmission(ctx, submissionID)
	if err != nil {
		return nil, notFoundOr(err, "submission not found", "failed to load submission")
	}
	assignment, err := s.grades.FindAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, notFoundOr(err, "assignment not found", "failed to load assignment")
	}
	course, err := loadCourse(ctx, s.courses, assignment.CourseID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	points := *req.Points
	if points > assignment.MaxPoints {
		return nil, appErrors.Clone(appErrors.ErrValidation, sprintf("points cannot exceed %g", assignment.MaxPoints))
	}
	if submission.Status == models.SubmissionDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "draft submissions cannot be graded")
	}

	now := s.now()
	if err := s.grades.GradeSubmission(ctx, submission.ID, points, req.Feedback, access.UserID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "draft submissions cannot be graded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}

	grader := access.UserID
	submission.Status = models.SubmissionGraded
	submission.PointsEarned = &points
	submission.Feedback = req.Feedback
	submission.GradedBy = &grader
	submission.GradedAt = &now
	_ = s.cache.Delete(ctx, gradeSummaryCacheKey(course.ID, submission.UserID))
	s.logger.Info("submission graded",
		zap.String("submission_id", submission.ID),
		zap.String("course_id", course.ID),
		zap.Float64("points", points),
	)
	return submission, nil
}
