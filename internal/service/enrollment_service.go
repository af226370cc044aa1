package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/repository"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type methodReader interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentMethod, error)
	ListByCourse(ctx context.Context, courseID string, enabledOnly bool) ([]models.EnrollmentMethod, error)
}

type enrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindCurrent(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Admit(ctx context.Context, params repository.AdmitParams) (*models.AdmissionResult, error)
	AdmitBatch(ctx context.Context, params repository.BatchAdmitParams) ([]models.AdmissionResult, error)
	TransitionStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (models.AdmissionStatus, error)
	UpdateProgress(ctx context.Context, id string, progress float64) error
	Remove(ctx context.Context, id string) (*models.Enrollment, error)
}

type requestStore interface {
	Create(ctx context.Context, request *models.EnrollmentRequest) error
	FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	FindPending(ctx context.Context, userID, courseID string) (*models.EnrollmentRequest, error)
	ListByCourse(ctx context.Context, courseID string, status models.EnrollmentRequestStatus) ([]models.EnrollmentRequest, error)
	Review(ctx context.Context, id string, status models.EnrollmentRequestStatus, reviewer string, note *string, at time.Time) error
	Reopen(ctx context.Context, id string) error
}

type groupAssigner interface {
	Assign(ctx context.Context, groupID, userID string) (models.GroupAssignment, error)
}

type enrollmentNotifier interface {
	NotifyWelcome(ctx context.Context, course *models.Course, method *models.EnrollmentMethod, userID string) error
	NotifyInstructor(ctx context.Context, course *models.Course, userID string) error
	NotifyApprovalRequested(ctx context.Context, course *models.Course, request *models.EnrollmentRequest) error
	NotifyRequestReviewed(ctx context.Context, course *models.Course, request *models.EnrollmentRequest) error
}

// EnrollRequest is the learner payload for enrolling through a method.
type EnrollRequest struct {
	Key     string  `json:"key"`
	Message *string `json:"message" validate:"omitempty,max=1000"`
}

// ReviewRequestInput records an approve or deny decision.
type ReviewRequestInput struct {
	Approve bool    `json:"approve"`
	Note    *string `json:"note" validate:"omitempty,max=1000"`
}

// ReviewResult reports the request after review and, for approvals, the admission outcome.
type ReviewResult struct {
	Request *models.EnrollmentRequest `json:"request"`
	Outcome *models.EnrollmentOutcome `json:"outcome,omitempty"`
}

// EnrollmentServiceOption configures the service.
type EnrollmentServiceOption func(*EnrollmentService)

// WithEnrollmentNotifier sets the notification dispatcher.
func WithEnrollmentNotifier(n enrollmentNotifier) EnrollmentServiceOption {
	return func(s *EnrollmentService) { s.notifier = n }
}

// WithGroupAssigner enables auto group assignment.
func WithGroupAssigner(g groupAssigner) EnrollmentServiceOption {
	return func(s *EnrollmentService) { s.groups = g }
}

// WithEnrollmentAudit records admissions and participant changes.
func WithEnrollmentAudit(a auditLogger) EnrollmentServiceOption {
	return func(s *EnrollmentService) { s.audit = a }
}

// WithEnrollmentMetrics records outcome counters.
func WithEnrollmentMetrics(m *MetricsService) EnrollmentServiceOption {
	return func(s *EnrollmentService) { s.metrics = m }
}

// WithBulkMaxBatch caps the size of staff batch enrollments.
func WithBulkMaxBatch(n int) EnrollmentServiceOption {
	return func(s *EnrollmentService) {
		if n > 0 {
			s.bulkMax = n
		}
	}
}

// WithEnrollmentClock overrides the time source.
func WithEnrollmentClock(now func() time.Time) EnrollmentServiceOption {
	return func(s *EnrollmentService) {
		if now != nil {
			s.now = now
		}
	}
}

// EnrollmentService runs enrollment attempts end to end: idempotency, the resolver verdict, the atomic
// admission and its side effects. Side effects never undo an admission; their failures come back as warnings.
type EnrollmentService struct {
	courses     courseReader
	methods     methodReader
	enrollments enrollmentStore
	requests    requestStore
	users       userDirectory
	groups      groupAssigner
	notifier    enrollmentNotifier
	audit       auditLogger
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	bulkMax     int
	now         func() time.Time
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(courses courseReader, methods methodReader, enrollments enrollmentStore, requests requestStore, users userDirectory, validate *validator.Validate, logger *zap.Logger, opts ...EnrollmentServiceOption) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &EnrollmentService{
		courses:     courses,
		methods:     methods,
		enrollments: enrollments,
		requests:    requests,
		users:       users,
		validator:   validate,
		logger:      logger,
		bulkMax:     500,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Enroll evaluates the caller's attempt to join a course through methodID. Refusals come back as outcomes;
// the error return is reserved for missing entities and infrastructure failures.
func (s *EnrollmentService) Enroll(ctx context.Context, access *models.AccessContext, methodID string, req EnrollRequest) (*models.EnrollmentOutcome, error) {
	if access == nil || access.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	method, err := s.loadMethod(ctx, methodID)
	if err != nil {
		return nil, err
	}
	course, err := loadCourse(ctx, s.courses, method.CourseID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.evaluate(ctx, access, course, method, req)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordEnrollmentOutcome(method.MethodType, outcome.Code)
	return outcome, nil
}

func (s *EnrollmentService) evaluate(ctx context.Context, access *models.AccessContext, course *models.Course, method *models.EnrollmentMethod, req EnrollRequest) (*models.EnrollmentOutcome, error) {
	if current, err := s.currentEnrollment(ctx, access.UserID, course.ID); err != nil {
		return nil, err
	} else if current != nil {
		outcome := outcomeFor(models.OutcomeAlreadyEnrolled)
		outcome.Enrollment = current
		return outcome, nil
	}
	if !course.OpenForEnrollment() {
		outcome := outcomeFor(models.OutcomeMethodDisabled)
		outcome.Message = "course is not open for enrollment"
		return outcome, nil
	}

	decision := ResolveEnrollment(method, EnrollmentAttempt{Key: req.Key, Message: req.Message}, s.now())
	switch {
	case decision.Defer():
		return s.fileRequest(ctx, course, method, access.UserID, req.Message, decision.Message)
	case !decision.Admit():
		return &models.EnrollmentOutcome{Code: decision.Code, Message: decision.Message}, nil
	}
	return s.admit(ctx, access, course, method, access.UserID, "", nil)
}

func (s *EnrollmentService) fileRequest(ctx context.Context, course *models.Course, method *models.EnrollmentMethod, userID string, message *string, notice string) (*models.EnrollmentOutcome, error) {
	outcome := outcomeFor(models.OutcomePendingApproval)
	outcome.Message = notice

	existing, err := s.requests.FindPending(ctx, userID, course.ID)
	if err == nil {
		outcome.Request = existing
		return outcome, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment requests")
	}

	request := &models.EnrollmentRequest{CourseID: course.ID, MethodID: method.ID, UserID: userID, Message: message}
	if err := s.requests.Create(ctx, request); err != nil {
		if !errors.Is(err, repository.ErrPendingRequestExists) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to file enrollment request")
		}
		// A concurrent attempt filed first; hand back its request.
		existing, err := s.requests.FindPending(ctx, userID, course.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment request")
		}
		outcome.Request = existing
		return outcome, nil
	}
	outcome.Request = request
	if s.notifier != nil {
		if err := s.notifier.NotifyApprovalRequested(ctx, course, request); err != nil {
			outcome.Warnings = append(outcome.Warnings, "course manager notification was not queued")
			s.logger.Warn("approval request notification failed", zap.String("request_id", request.ID), zap.Error(err))
		}
	}
	return outcome, nil
}

// admit performs the atomic admission and, on success, the side effects. method may be nil for staff adds
// that bypass method counters.
func (s *EnrollmentService) admit(ctx context.Context, access *models.AccessContext, course *models.Course, method *models.EnrollmentMethod, userID string, role models.CourseRole, enrolledBy *string) (*models.EnrollmentOutcome, error) {
	params := repository.AdmitParams{UserID: userID, CourseID: course.ID, Role: role, EnrolledBy: enrolledBy}
	if method != nil {
		params.MethodID = &method.ID
		if params.Role == "" {
			params.Role = method.DefaultRole
		}
	}
	if params.Role == "" {
		params.Role = models.CourseRoleStudent
	}

	result, err := s.enrollments.Admit(ctx, params)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to admit enrollment")
	}
	outcome := outcomeFor(admissionOutcome(result.Status))
	if result.Status == models.AdmissionAlreadyActive {
		current, err := s.currentEnrollment(ctx, userID, course.ID)
		if err != nil {
			s.logger.Warn("existing enrollment lookup failed", zap.String("course_id", course.ID), zap.String("user_id", userID), zap.Error(err))
		}
		outcome.Enrollment = current
		return outcome, nil
	}
	if result.Status != models.AdmissionAdmitted {
		if result.Status == models.AdmissionCourseFull {
			outcome.Message = "course is full"
		}
		return outcome, nil
	}

	outcome.Enrollment = result.Enrollment
	if method != nil {
		outcome.Welcome = method.WelcomeMessage
	}
	outcome.Warnings = append(outcome.Warnings, s.applySideEffects(ctx, course, method, result.Enrollment)...)
	writeAudit(ctx, s.audit, s.logger, access, models.AuditActionEnrollmentAdmit, "enrollment", result.Enrollment.ID, nil, result.Enrollment)
	s.logger.Info("enrollment admitted",
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("course_id", course.ID),
		zap.String("user_id", userID),
	)
	return outcome, nil
}

func (s *EnrollmentService) applySideEffects(ctx context.Context, course *models.Course, method *models.EnrollmentMethod, enrollment *models.Enrollment) []string {
	if method == nil {
		return nil
	}
	var warnings []string
	if method.AutoAssignGroupID != nil && s.groups != nil {
		groupID := *method.AutoAssignGroupID
		assignment, err := s.groups.Assign(ctx, groupID, enrollment.UserID)
		switch {
		case err != nil:
			warnings = append(warnings, "group assignment failed")
			s.logger.Warn("group auto-assignment failed", zap.String("group_id", groupID), zap.String("user_id", enrollment.UserID), zap.Error(err))
		case assignment == models.GroupFull:
			warnings = append(warnings, fmt.Sprintf("group %s is full, assignment skipped", groupID))
		case assignment == models.GroupMissing:
			warnings = append(warnings, fmt.Sprintf("group %s no longer exists, assignment skipped", groupID))
		}
	}
	if s.notifier == nil {
		return warnings
	}
	if method.SendWelcomeEmail {
		if err := s.notifier.NotifyWelcome(ctx, course, method, enrollment.UserID); err != nil {
			warnings = append(warnings, "welcome email was not queued")
			s.logger.Warn("welcome notification failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		}
	}
	if method.NotifyInstructor {
		if err := s.notifier.NotifyInstructor(ctx, course, enrollment.UserID); err != nil {
			warnings = append(warnings, "instructor notification was not queued")
			s.logger.Warn("instructor notification failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		}
	}
	return warnings
}

// ListRequests returns a course's enrollment requests; edit permission required.
func (s *EnrollmentService) ListRequests(ctx context.Context, access *models.AccessContext, courseID string, status models.EnrollmentRequestStatus) ([]models.EnrollmentRequest, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	requests, err := s.requests.ListByCourse(ctx, courseID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment requests")
	}
	return requests, nil
}

// ReviewRequest approves or denies a pending request. Approval needs the course to be open for enrollment and
// runs the atomic admission; when no seat is left the request goes back to pending and the outcome says so.
func (s *EnrollmentService) ReviewRequest(ctx context.Context, access *models.AccessContext, requestID string, input ReviewRequestInput) (*ReviewResult, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment request not found", "failed to load enrollment request")
	}
	course, err := loadCourse(ctx, s.courses, request.CourseID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	if request.Status != models.RequestStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment request already reviewed")
	}
	// Approval admits through the learner path, so it honours the course gate; denial is always allowed.
	if input.Approve && !course.OpenForEnrollment() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not open for enrollment, the request stays pending")
	}

	status := models.RequestStatusDenied
	if input.Approve {
		status = models.RequestStatusApproved
	}
	now := s.now()
	if err := s.requests.Review(ctx, request.ID, status, access.UserID, input.Note, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment request already reviewed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review enrollment request")
	}
	reviewer := access.UserID
	request.Status = status
	request.ReviewedBy = &reviewer
	request.ReviewedAt = &now
	request.Note = input.Note

	result := &ReviewResult{Request: request}
	if input.Approve {
		method, err := s.methods.FindByID(ctx, request.MethodID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment method")
		}
		outcome, err := s.admit(ctx, access, course, method, request.UserID, "", &reviewer)
		if err != nil {
			return nil, err
		}
		result.Outcome = outcome
		methodType := models.MethodApproval
		if method != nil {
			methodType = method.MethodType
		}
		s.metrics.RecordEnrollmentOutcome(methodType, outcome.Code)
		if outcome.Code == models.OutcomeCapacityExceeded {
			if err := s.requests.Reopen(ctx, request.ID); err != nil {
				s.logger.Warn("failed to reopen enrollment request", zap.String("request_id", request.ID), zap.Error(err))
			} else {
				request.Status = models.RequestStatusPending
				request.ReviewedBy = nil
				request.ReviewedAt = nil
			}
			return result, nil
		}
	}

	writeAudit(ctx, s.audit, s.logger, access, models.AuditActionRequestReview, "enrollment_request", request.ID, nil, request)
	if s.notifier != nil {
		if err := s.notifier.NotifyRequestReviewed(ctx, course, request); err != nil {
			s.logger.Warn("review notification failed", zap.String("request_id", request.ID), zap.Error(err))
		}
	}
	return result, nil
}

func (s *EnrollmentService) loadMethod(ctx context.Context, id string) (*models.EnrollmentMethod, error) {
	method, err := s.methods.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "enrollment method not found", "failed to load enrollment method")
	}
	return method, nil
}

func (s *EnrollmentService) currentEnrollment(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	current, err := s.enrollments.FindCurrent(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	return current, nil
}
