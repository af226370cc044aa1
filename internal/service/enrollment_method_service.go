package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type methodStore interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentMethod, error)
	ListByCourse(ctx context.Context, courseID string, enabledOnly bool) ([]models.EnrollmentMethod, error)
	Create(ctx context.Context, method *models.EnrollmentMethod) error
	Update(ctx context.Context, method *models.EnrollmentMethod) error
	Delete(ctx context.Context, id string) error
}

// EnrollmentMethodRequest is the create and update payload for an enrollment method.
type EnrollmentMethodRequest struct {
	MethodType          models.EnrollmentMethodType `json:"method_type" validate:"required,oneof=manual self key approval bulk cohort"`
	Name                string                      `json:"name" validate:"required,max=120"`
	IsEnabled           *bool                       `json:"is_enabled"`
	SortOrder           int                         `json:"sort_order" validate:"gte=0"`
	MaxEnrollments      *int                        `json:"max_enrollments" validate:"omitempty,min=1"`
	DefaultRole         models.CourseRole           `json:"default_role" validate:"omitempty,oneof=student teacher manager teaching_assistant non_editing_teacher observer guest"`
	EnrollmentStartDate *time.Time                  `json:"enrollment_start_date"`
	EnrollmentEndDate   *time.Time                  `json:"enrollment_end_date"`
	EnrollmentKey       *string                     `json:"enrollment_key" validate:"omitempty,max=100"`
	KeyCaseSensitive    bool                        `json:"key_case_sensitive"`
	RequiresApproval    bool                        `json:"requires_approval"`
	ApprovalMessage     *string                     `json:"approval_message" validate:"omitempty,max=1000"`
	WelcomeMessage      *string                     `json:"welcome_message" validate:"omitempty,max=2000"`
	AutoAssignGroupID   *string                     `json:"auto_assign_group_id"`
	SendWelcomeEmail    bool                        `json:"send_welcome_email"`
	NotifyInstructor    bool                        `json:"notify_instructor"`
}

// EnrollmentMethodService manages the enrollment methods attached to a course.
type EnrollmentMethodService struct {
	courses   courseReader
	methods   methodStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentMethodService constructs the service.
func NewEnrollmentMethodService(courses courseReader, methods methodStore, validate *validator.Validate, logger *zap.Logger) *EnrollmentMethodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentMethodService{courses: courses, methods: methods, validator: validate, logger: logger}
}

// ListAvailable returns the enabled methods a learner can see on a published course.
func (s *EnrollmentMethodService) ListAvailable(ctx context.Context, access *models.AccessContext, courseID string) ([]models.EnrollmentMethod, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !canSeeCourse(access, course) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	if !course.OpenForEnrollment() {
		return []models.EnrollmentMethod{}, nil
	}
	methods, err := s.methods.ListByCourse(ctx, course.ID, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment methods")
	}
	available := make([]models.EnrollmentMethod, 0, len(methods))
	for _, method := range methods {
		if method.MethodType.LearnerFacing() {
			available = append(available, method)
		}
	}
	return available, nil
}

// List returns every method of the course for staff.
func (s *EnrollmentMethodService) List(ctx context.Context, access *models.AccessContext, courseID string) ([]models.EnrollmentMethod, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	methods, err := s.methods.ListByCourse(ctx, course.ID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment methods")
	}
	return methods, nil
}

// Create attaches a new method to the course.
func (s *EnrollmentMethodService) Create(ctx context.Context, access *models.AccessContext, courseID string, req EnrollmentMethodRequest) (*models.EnrollmentMethod, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	method := &models.EnrollmentMethod{CourseID: course.ID, IsEnabled: true}
	applyMethodRequest(method, req)
	if err := s.methods.Create(ctx, method); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment method")
	}
	s.logger.Info("enrollment method created", zap.String("method_id", method.ID), zap.String("course_id", course.ID), zap.String("type", string(method.MethodType)))
	return method, nil
}

// Update replaces a method's configuration. The occupancy counter is never written here.
func (s *EnrollmentMethodService) Update(ctx context.Context, access *models.AccessContext, methodID string, req EnrollmentMethodRequest) (*models.EnrollmentMethod, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	method, err := s.loadEditable(ctx, access, methodID)
	if err != nil {
		return nil, err
	}
	if req.MethodType != method.MethodType {
		return nil, appErrors.Clone(appErrors.ErrValidation, "method type cannot be changed")
	}
	if req.MaxEnrollments != nil && *req.MaxEnrollments < method.CurrentEnrollments {
		return nil, appErrors.Clone(appErrors.ErrValidation, sprintf("max_enrollments cannot be below the %d active enrollments", method.CurrentEnrollments))
	}
	applyMethodRequest(method, req)
	if err := s.methods.Update(ctx, method); err != nil {
		return nil, notFoundOr(err, "enrollment method not found", "failed to update enrollment method")
	}
	return method, nil
}

// Delete removes a method. Enrollments made through it keep their rows with the method cleared.
func (s *EnrollmentMethodService) Delete(ctx context.Context, access *models.AccessContext, methodID string) error {
	method, err := s.loadEditable(ctx, access, methodID)
	if err != nil {
		return err
	}
	if err := s.methods.Delete(ctx, method.ID); err != nil {
		return notFoundOr(err, "enrollment method not found", "failed to delete enrollment method")
	}
	return nil
}

func (s *EnrollmentMethodService) loadEditable(ctx context.Context, access *models.AccessContext, methodID string) (*models.EnrollmentMethod, error) {
	method, err := s.methods.FindByID(ctx, methodID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment method not found", "failed to load enrollment method")
	}
	course, err := loadCourse(ctx, s.courses, method.CourseID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	return method, nil
}

func (s *EnrollmentMethodService) validate(req EnrollmentMethodRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment method payload")
	}
	if req.MethodType == models.MethodKey && (req.EnrollmentKey == nil || strings.TrimSpace(*req.EnrollmentKey) == "") {
		return appErrors.Clone(appErrors.ErrValidation, "key methods require an enrollment key")
	}
	if req.EnrollmentStartDate != nil && req.EnrollmentEndDate != nil && !req.EnrollmentEndDate.After(*req.EnrollmentStartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "enrollment_end_date must be after enrollment_start_date")
	}
	return nil
}

func applyMethodRequest(method *models.EnrollmentMethod, req EnrollmentMethodRequest) {
	method.MethodType = req.MethodType
	method.Name = strings.TrimSpace(req.Name)
	if req.IsEnabled != nil {
		method.IsEnabled = *req.IsEnabled
	}
	method.SortOrder = req.SortOrder
	method.MaxEnrollments = req.MaxEnrollments
	method.DefaultRole = req.DefaultRole
	if method.DefaultRole == "" {
		method.DefaultRole = models.CourseRoleStudent
	}
	method.EnrollmentStartDate = req.EnrollmentStartDate
	method.EnrollmentEndDate = req.EnrollmentEndDate
	method.EnrollmentKey = req.EnrollmentKey
	method.KeyCaseSensitive = req.KeyCaseSensitive
	method.RequiresApproval = req.RequiresApproval
	method.ApprovalMessage = req.ApprovalMessage
	method.WelcomeMessage = req.WelcomeMessage
	method.AutoAssignGroupID = req.AutoAssignGroupID
	method.SendWelcomeEmail = req.SendWelcomeEmail
	method.NotifyInstructor = req.NotifyInstructor
}
