package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/middleware"
	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, access *models.AccessContext, methodID string, req service.EnrollRequest) (*models.EnrollmentOutcome, error)
	AddParticipant(ctx context.Context, access *models.AccessContext, courseID string, req service.AddParticipantRequest) (*models.EnrollmentOutcome, error)
	BulkEnroll(ctx context.Context, access *models.AccessContext, methodID string, req service.BulkEnrollRequest) (*models.BulkEnrollResult, error)
	ListParticipants(ctx context.Context, access *models.AccessContext, courseID string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	ListMyEnrollments(ctx context.Context, access *models.AccessContext, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
	UpdateStatus(ctx context.Context, access *models.AccessContext, enrollmentID string, req service.UpdateStatusRequest) (*models.Enrollment, error)
	UpdateProgress(ctx context.Context, access *models.AccessContext, enrollmentID string, req service.UpdateProgressRequest) (*models.Enrollment, error)
	Remove(ctx context.Context, access *models.AccessContext, enrollmentID string) error
	ListRequests(ctx context.Context, access *models.AccessContext, courseID string, status models.EnrollmentRequestStatus) ([]models.EnrollmentRequest, error)
	ReviewRequest(ctx context.Context, access *models.AccessContext, requestID string, input service.ReviewRequestInput) (*service.ReviewResult, error)
}

// EnrollmentHandler exposes learner enrollment, participant management and approval review endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll through a method
// @Description Refusals are reported with the outcome in data and the matching error code.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment method ID"
// @Param payload body service.EnrollRequest false "Key or approval message"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollment-methods/{id}/enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	outcome, err := h.enrollments.Enroll(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeOutcome(c, outcome)
}

// AddParticipant godoc
// @Summary Add a participant
// @Tags Participants
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.AddParticipantRequest true "Participant payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/participants [post]
func (h *EnrollmentHandler) AddParticipant(c *gin.Context) {
	var req service.AddParticipantRequest
	if !bindJSON(c, &req) {
		return
	}
	outcome, err := h.enrollments.AddParticipant(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeOutcome(c, outcome)
}

// Bulk godoc
// @Summary Bulk enroll users through a bulk or cohort method
// @Tags Participants
// @Accept json
// @Produce json
// @Param id path string true "Enrollment method ID"
// @Param payload body service.BulkEnrollRequest true "Users to enroll"
// @Success 200 {object} response.Envelope
// @Router /enrollment-methods/{id}/bulk [post]
func (h *EnrollmentHandler) Bulk(c *gin.Context) {
	var req service.BulkEnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.BulkEnroll(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Participants godoc
// @Summary List course participants
// @Tags Participants
// @Produce json
// @Param id path string true "Course ID"
// @Param status query string false "Enrollment status"
// @Param role query string false "Course role"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "enrolled_at, user_name or progress"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/participants [get]
func (h *EnrollmentHandler) Participants(c *gin.Context) {
	filter := enrollmentFilterFromQuery(c)
	items, pagination, err := h.enrollments.ListParticipants(c.Request.Context(), accessFromContext(c), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination, middleware.Meta(c))
}

// Mine godoc
// @Summary List the caller's enrollments
// @Tags Enrollments
// @Produce json
// @Param status query string false "Enrollment status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /me/enrollments [get]
func (h *EnrollmentHandler) Mine(c *gin.Context) {
	filter := enrollmentFilterFromQuery(c)
	items, pagination, err := h.enrollments.ListMyEnrollments(c.Request.Context(), accessFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination, middleware.Meta(c))
}

// UpdateStatus godoc
// @Summary Change enrollment status
// @Tags Participants
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{id}/status [patch]
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.UpdateStatus(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// UpdateProgress godoc
// @Summary Record learner progress
// @Tags Participants
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateProgressRequest true "Progress percentage"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/progress [patch]
func (h *EnrollmentHandler) UpdateProgress(c *gin.Context) {
	var req service.UpdateProgressRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.UpdateProgress(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Remove godoc
// @Summary Remove a participant
// @Tags Participants
// @Param id path string true "Enrollment ID"
// @Success 204
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Remove(c *gin.Context) {
	if err := h.enrollments.Remove(c.Request.Context(), accessFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Requests godoc
// @Summary List enrollment requests
// @Tags Enrollment Requests
// @Produce json
// @Param id path string true "Course ID"
// @Param status query string false "pending (default), approved or denied"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollment-requests [get]
func (h *EnrollmentHandler) Requests(c *gin.Context) {
	status := models.EnrollmentRequestStatus(c.DefaultQuery("status", string(models.RequestStatusPending)))
	requests, err := h.enrollments.ListRequests(c.Request.Context(), accessFromContext(c), c.Param("id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Review godoc
// @Summary Approve or deny an enrollment request
// @Tags Enrollment Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.ReviewRequestInput true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollment-requests/{id}/review [post]
func (h *EnrollmentHandler) Review(c *gin.Context) {
	var req service.ReviewRequestInput
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.ReviewRequest(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if refusal := service.OutcomeError(result.Outcome); refusal != nil {
		response.ErrorWithData(c, refusal, result)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func writeOutcome(c *gin.Context, outcome *models.EnrollmentOutcome) {
	if refusal := service.OutcomeError(outcome); refusal != nil {
		response.ErrorWithData(c, refusal, outcome)
		return
	}
	if outcome.Code == models.OutcomePendingApproval {
		response.Accepted(c, outcome)
		return
	}
	response.Created(c, outcome)
}

func enrollmentFilterFromQuery(c *gin.Context) models.EnrollmentFilter {
	filter := models.EnrollmentFilter{
		Status:    models.EnrollmentStatus(c.Query("status")),
		Role:      models.CourseRole(c.Query("role")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter
}
