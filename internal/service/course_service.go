package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type courseStore interface {
	courseReader
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	UpdateDetails(ctx context.Context, course *models.Course) error
	UpdateLifecycle(ctx context.Context, course *models.Course, expected models.LifecycleState) error
	Delete(ctx context.Context, id string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Title           string                  `json:"title" validate:"required,max=200"`
	Summary         string                  `json:"summary" validate:"max=2000"`
	Visibility      models.CourseVisibility `json:"visibility" validate:"omitempty,oneof=public private unlisted"`
	AllowEnrollment *bool                   `json:"allow_enrollment"`
	MaxStudents     *int                    `json:"max_students" validate:"omitempty,min=1"`
}

// UpdateCourseRequest carries the editable course fields; nil fields are left alone.
type UpdateCourseRequest struct {
	Title           *string                  `json:"title" validate:"omitempty,max=200"`
	Summary         *string                  `json:"summary" validate:"omitempty,max=2000"`
	Visibility      *models.CourseVisibility `json:"visibility" validate:"omitempty,oneof=public private unlisted"`
	AllowEnrollment *bool                    `json:"allow_enrollment"`
	MaxStudents     *int                     `json:"max_students" validate:"omitempty,min=1"`
	ClearMaxStudent bool                     `json:"clear_max_students"`
}

// CourseServiceOption configures the service.
type CourseServiceOption func(*CourseService)

// WithAutoPublishOnApprove publishes courses as soon as an admin approves them.
func WithAutoPublishOnApprove(enabled bool) CourseServiceOption {
	return func(s *CourseService) {
		s.autoPublish = enabled
	}
}

// WithCourseClock overrides the time source.
func WithCourseClock(now func() time.Time) CourseServiceOption {
	return func(s *CourseService) {
		if now != nil {
			s.now = now
		}
	}
}

// CourseService owns course CRUD and drives the lifecycle functions against storage.
type CourseService struct {
	repo        courseStore
	audit       auditLogger
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	autoPublish bool
	now         func() time.Time
}

// NewCourseService constructs the service.
func NewCourseService(repo courseStore, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, opts ...CourseServiceOption) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &CourseService{
		repo:      repo,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create registers a new draft course owned by the caller.
func (s *CourseService) Create(ctx context.Context, access *models.AccessContext, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if access == nil || (access.Role != models.RoleInstructor && !access.IsAdmin()) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can create courses")
	}
	course := &models.Course{
		Title:           strings.TrimSpace(req.Title),
		Summary:         strings.TrimSpace(req.Summary),
		InstructorID:    access.UserID,
		Status:          models.CourseStatusDraft,
		ApprovalStatus:  models.ApprovalStatusDraft,
		Visibility:      req.Visibility,
		AllowEnrollment: true,
		MaxStudents:     req.MaxStudents,
	}
	if course.Visibility == "" {
		course.Visibility = models.VisibilityPrivate
	}
	if req.AllowEnrollment != nil {
		course.AllowEnrollment = *req.AllowEnrollment
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Get returns a course the caller may see. Published public courses are visible to everyone.
func (s *CourseService) Get(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error) {
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !canSeeCourse(access, course) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, nil
}

// List returns courses. Mine narrows to courses the caller owns or holds a grant on; otherwise non-admins see
// the public catalogue unless filtering by themselves as instructor.
func (s *CourseService) List(ctx context.Context, access *models.AccessContext, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	switch {
	case filter.Mine:
		filter.ScopeUserID = access.UserID
		filter.ScopeIDs = grantedCourseIDs(access)
	case access.IsAdmin():
	case filter.InstructorID != "" && filter.InstructorID == access.UserID:
	default:
		filter.Status = models.CourseStatusPublished
		filter.Visibility = models.VisibilityPublic
		filter.ApprovalStatus = ""
	}
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Update edits descriptive and enrollment policy fields.
func (s *CourseService) Update(ctx context.Context, access *models.AccessContext, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Summary != nil {
		course.Summary = strings.TrimSpace(*req.Summary)
	}
	if req.Visibility != nil {
		course.Visibility = *req.Visibility
	}
	if req.AllowEnrollment != nil {
		course.AllowEnrollment = *req.AllowEnrollment
	}
	if req.ClearMaxStudent {
		course.MaxStudents = nil
	} else if req.MaxStudents != nil {
		if *req.MaxStudents < course.EnrolledCount {
			return nil, appErrors.Clone(appErrors.ErrValidation, "max_students cannot be below the current enrolled count")
		}
		course.MaxStudents = req.MaxStudents
	}
	if err := s.repo.UpdateDetails(ctx, course); err != nil {
		return nil, notFoundOr(err, "course not found", "failed to update course")
	}
	return course, nil
}

// SubmitForApproval queues the course for admin review.
func (s *CourseService) SubmitForApproval(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error) {
	return s.transition(ctx, access, id, LifecycleSubmit, models.AuditActionCourseSubmit, func(c *models.Course, now time.Time) error {
		return SubmitForApproval(c, access, now)
	})
}

// Approve accepts a pending course, publishing it too when auto-publish is on.
func (s *CourseService) Approve(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error) {
	return s.transition(ctx, access, id, LifecycleApprove, models.AuditActionCourseApprove, func(c *models.Course, now time.Time) error {
		if err := Approve(c, access, now); err != nil {
			return err
		}
		if s.autoPublish && c.Status == models.CourseStatusDraft {
			return Publish(c, access)
		}
		return nil
	})
}

// Reject turns a pending course down with a reason.
func (s *CourseService) Reject(ctx context.Context, access *models.AccessContext, id, reason string) (*models.Course, error) {
	return s.transition(ctx, access, id, LifecycleReject, models.AuditActionCourseReject, func(c *models.Course, now time.Time) error {
		return Reject(c, access, reason, now)
	})
}

// Publish makes the course live.
func (s *CourseService) Publish(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error) {
	return s.transition(ctx, access, id, LifecyclePublish, models.AuditActionCoursePublish, func(c *models.Course, _ time.Time) error {
		return Publish(c, access)
	})
}

// Archive retires the course.
func (s *CourseService) Archive(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error) {
	return s.transition(ctx, access, id, LifecycleArchive, models.AuditActionCourseArchive, func(c *models.Course, _ time.Time) error {
		return Archive(c, access)
	})
}

// Restore brings an archived course back.
func (s *CourseService) Restore(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error) {
	return s.transition(ctx, access, id, LifecycleRestore, models.AuditActionCourseRestore, func(c *models.Course, _ time.Time) error {
		return Restore(c, access)
	})
}

// Delete hard-deletes the course; storage cascades to methods, enrollments and grading rows.
func (s *CourseService) Delete(ctx context.Context, access *models.AccessContext, id string) error {
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if err := CanDestroy(course, access); err != nil {
		s.metrics.RecordLifecycleTransition(LifecycleDestroy, appErrors.FromError(err).Code)
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "course not found", "failed to delete course")
	}
	s.metrics.RecordLifecycleTransition(LifecycleDestroy, "ok")
	s.recordAudit(ctx, access, models.AuditActionCourseDelete, course.ID, course, nil)
	return nil
}

func (s *CourseService) transition(ctx context.Context, access *models.AccessContext, id, action, auditAction string, apply func(*models.Course, time.Time) error) (*models.Course, error) {
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	before := *course
	expected := course.State()
	if err := apply(course, s.now()); err != nil {
		s.metrics.RecordLifecycleTransition(action, appErrors.FromError(err).Code)
		return nil, err
	}
	if err := s.repo.UpdateLifecycle(ctx, course, expected); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordLifecycleTransition(action, appErrors.ErrConflict.Code)
			return nil, appErrors.Clone(appErrors.ErrConflict, "course changed concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.metrics.RecordLifecycleTransition(action, "ok")
	s.recordAudit(ctx, access, auditAction, course.ID, before.State(), course.State())
	s.logger.Info("course lifecycle transition",
		zap.String("course_id", course.ID),
		zap.String("action", action),
		zap.String("status", string(course.Status)),
		zap.String("approval_status", string(course.ApprovalStatus)),
	)
	return course, nil
}

func (s *CourseService) recordAudit(ctx context.Context, access *models.AccessContext, action, courseID string, oldValue, newValue interface{}) {
	writeAudit(ctx, s.audit, s.logger, access, action, "course", courseID, oldValue, newValue)
}

func writeAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, access *models.AccessContext, action, resource, resourceID string, oldValue, newValue interface{}) {
	if audit == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: resource, ResourceID: &resourceID}
	if access != nil && access.UserID != "" {
		actor := access.UserID
		entry.UserID = &actor
	}
	if oldValue != nil {
		entry.OldValues, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		entry.NewValues, _ = json.Marshal(newValue)
	}
	if err := audit.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}

func loadCourse(ctx context.Context, repo courseReader, id string) (*models.Course, error) {
	course, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}
	return course, nil
}

func canSeeCourse(access *models.AccessContext, course *models.Course) bool {
	if course.Status == models.CourseStatusPublished && course.Visibility != models.VisibilityPrivate {
		return true
	}
	return access.CanView(course)
}

func grantedCourseIDs(access *models.AccessContext) []string {
	ids := make([]string, 0, len(access.Grants))
	for id := range access.Grants {
		ids = append(ids, id)
	}
	return ids
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
