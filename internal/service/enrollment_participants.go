package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/repository"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

// AddParticipantRequest is the staff payload for the manual enrollment path.
type AddParticipantRequest struct {
	UserID   string            `json:"user_id" validate:"required"`
	Role     models.CourseRole `json:"role" validate:"omitempty,oneof=student teacher manager teaching_assistant non_editing_teacher observer guest"`
	MethodID *string           `json:"method_id"`
}

// BulkEnrollRequest lists the users a bulk or cohort method admits in one batch.
type BulkEnrollRequest struct {
	UserIDs []string          `json:"user_ids" validate:"required,min=1,dive,required"`
	Role    models.CourseRole `json:"role" validate:"omitempty,oneof=student teacher manager teaching_assistant non_editing_teacher observer guest"`
}

// UpdateStatusRequest moves an enrollment to a new status.
type UpdateStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=active suspended completed dropped"`
}

// UpdateProgressRequest sets the completion percentage.
type UpdateProgressRequest struct {
	Progress float64 `json:"progress" validate:"gte=0,lte=100"`
}

var allowedStatusTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentStatusActive:    {models.EnrollmentStatusSuspended, models.EnrollmentStatusCompleted, models.EnrollmentStatusDropped},
	models.EnrollmentStatusSuspended: {models.EnrollmentStatusActive, models.EnrollmentStatusDropped},
}

// AddParticipant enrolls a user on a staff member's behalf. Learner-facing checks are skipped but course and
// method capacity still apply. Without a method id the course's first manual method is charged, if it has one.
func (s *EnrollmentService) AddParticipant(ctx context.Context, access *models.AccessContext, courseID string, req AddParticipantRequest) (*models.EnrollmentOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid participant payload")
	}
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}

	var method *models.EnrollmentMethod
	if req.MethodID != nil && *req.MethodID != "" {
		if method, err = s.loadMethod(ctx, *req.MethodID); err != nil {
			return nil, err
		}
		if method.CourseID != course.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment method belongs to another course")
		}
		if method.MethodType.LearnerFacing() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "participants can only be added through a manual, bulk or cohort method")
		}
	} else if method, err = s.manualMethod(ctx, course.ID); err != nil {
		return nil, err
	}

	if missing, err := s.missingUsers(ctx, []string{req.UserID}); err != nil {
		return nil, err
	} else if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	methodType := models.MethodManual
	if method != nil {
		methodType = method.MethodType
	}
	current, err := s.currentEnrollment(ctx, req.UserID, course.ID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		outcome := outcomeFor(models.OutcomeAlreadyEnrolled)
		outcome.Enrollment = current
		s.metrics.RecordEnrollmentOutcome(methodType, outcome.Code)
		return outcome, nil
	}

	actor := access.UserID
	outcome, err := s.admit(ctx, access, course, method, req.UserID, req.Role, &actor)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordEnrollmentOutcome(methodType, outcome.Code)
	return outcome, nil
}

// manualMethod returns the manual method in lowest sort order, or nil when the course has none. Disabled
// methods count: the enabled flag only gates learners.
func (s *EnrollmentService) manualMethod(ctx context.Context, courseID string) (*models.EnrollmentMethod, error) {
	methods, err := s.methods.ListByCourse(ctx, courseID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment methods")
	}
	for i := range methods {
		if methods[i].MethodType == models.MethodManual {
			return &methods[i], nil
		}
	}
	return nil, nil
}

// BulkEnroll admits a batch of users through a bulk or cohort method in one transaction. Capacity is
// projected across the batch, so a list larger than the remaining seats admits a prefix and reports the rest.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, access *models.AccessContext, methodID string, req BulkEnrollRequest) (*models.BulkEnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment payload")
	}
	userIDs := dedupe(req.UserIDs)
	if len(userIDs) > s.bulkMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, sprintf("batch exceeds the limit of %d users", s.bulkMax))
	}
	method, err := s.loadMethod(ctx, methodID)
	if err != nil {
		return nil, err
	}
	if method.MethodType != models.MethodBulk && method.MethodType != models.MethodCohort {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment method does not accept batch enrollment")
	}
	course, err := loadCourse(ctx, s.courses, method.CourseID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}

	missing, err := s.missingUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown users: "+strings.Join(missing, ", "))
	}

	role := req.Role
	if role == "" {
		role = method.DefaultRole
	}
	actor := access.UserID
	results, err := s.enrollments.AdmitBatch(ctx, repository.BatchAdmitParams{
		CourseID:   course.ID,
		MethodID:   &method.ID,
		UserIDs:    userIDs,
		Role:       role,
		EnrolledBy: &actor,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to admit batch")
	}

	summary := &models.BulkEnrollResult{MethodID: method.ID, Results: make([]models.BulkEnrollOutcome, 0, len(results))}
	for _, result := range results {
		code := admissionOutcome(result.Status)
		entry := models.BulkEnrollOutcome{UserID: result.UserID, Code: code}
		if result.Enrollment != nil && code == models.OutcomeEnrolled {
			entry.EnrollmentID = result.Enrollment.ID
			summary.Admitted++
			for _, warning := range s.applySideEffects(ctx, course, method, result.Enrollment) {
				s.logger.Warn("bulk enrollment side effect", zap.String("user_id", result.UserID), zap.String("warning", warning))
			}
		}
		s.metrics.RecordEnrollmentOutcome(method.MethodType, code)
		summary.Results = append(summary.Results, entry)
	}

	writeAudit(ctx, s.audit, s.logger, access, models.AuditActionEnrollmentAdmit, "enrollment_method", method.ID, nil, summary)
	s.logger.Info("bulk enrollment processed",
		zap.String("method_id", method.ID),
		zap.Int("requested", len(userIDs)),
		zap.Int("admitted", summary.Admitted),
	)
	return summary, nil
}

// ListParticipants lists a course's enrollments for staff with view permission.
func (s *EnrollmentService) ListParticipants(ctx context.Context, access *models.AccessContext, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, nil, err
	}
	if !access.CanView(course) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "view permission required")
	}
	filter.CourseID = course.ID
	return s.list(ctx, filter)
}

// ListMyEnrollments lists the caller's own enrollments.
func (s *EnrollmentService) ListMyEnrollments(ctx context.Context, access *models.AccessContext, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if access == nil || access.UserID == "" {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter.UserID = access.UserID
	return s.list(ctx, filter)
}

func (s *EnrollmentService) list(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return items, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// UpdateStatus moves an enrollment between statuses. Leaving active frees the seat; returning to active
// takes one back under the same capacity rules as a new admission.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, access *models.AccessContext, enrollmentID string, req UpdateStatusRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	enrollment, course, err := s.loadManaged(ctx, access, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !statusTransitionAllowed(enrollment.Status, req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, sprintf("cannot move enrollment from %s to %s", enrollment.Status, req.Status))
	}

	status, err := s.enrollments.TransitionStatus(ctx, enrollment.ID, enrollment.Status, req.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	switch status {
	case models.AdmissionCourseFull:
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "course is full")
	case models.AdmissionMethodFull:
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "enrollment method is full")
	}

	before := *enrollment
	enrollment.Status = req.Status
	writeAudit(ctx, s.audit, s.logger, access, models.AuditActionEnrollmentStatus, "enrollment", enrollment.ID, before, enrollment)
	s.logger.Info("enrollment status changed",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("course_id", course.ID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(req.Status)),
	)
	return enrollment, nil
}

// UpdateProgress records a learner's completion percentage.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, access *models.AccessContext, enrollmentID string, req UpdateProgressRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "progress must be between 0 and 100")
	}
	enrollment, _, err := s.loadManaged(ctx, access, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := s.enrollments.UpdateProgress(ctx, enrollment.ID, req.Progress); err != nil {
		return nil, notFoundOr(err, "enrollment not found", "failed to update progress")
	}
	enrollment.ProgressPercentage = req.Progress
	return enrollment, nil
}

// Remove deletes an enrollment, releasing its seat when it was active.
func (s *EnrollmentService) Remove(ctx context.Context, access *models.AccessContext, enrollmentID string) error {
	enrollment, _, err := s.loadManaged(ctx, access, enrollmentID)
	if err != nil {
		return err
	}
	removed, err := s.enrollments.Remove(ctx, enrollment.ID)
	if err != nil {
		return notFoundOr(err, "enrollment not found", "failed to remove enrollment")
	}
	writeAudit(ctx, s.audit, s.logger, access, models.AuditActionEnrollmentRemove, "enrollment", removed.ID, removed, nil)
	return nil
}

func (s *EnrollmentService) loadManaged(ctx context.Context, access *models.AccessContext, enrollmentID string) (*models.Enrollment, *models.Course, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, nil, notFoundOr(err, "enrollment not found", "failed to load enrollment")
	}
	course, err := loadCourse(ctx, s.courses, enrollment.CourseID)
	if err != nil {
		return nil, nil, err
	}
	if !access.CanEdit(course) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	return enrollment, course, nil
}

func (s *EnrollmentService) missingUsers(ctx context.Context, ids []string) ([]string, error) {
	found, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve users")
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

func statusTransitionAllowed(from, to models.EnrollmentStatus) bool {
	for _, candidate := range allowedStatusTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
