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

type courseService interface {
	Create(ctx context.Context, access *models.AccessContext, req service.CreateCourseRequest) (*models.Course, error)
	Get(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error)
	List(ctx context.Context, access *models.AccessContext, filter models.CourseFilter) ([]models.Course, *models.Pagination, error)
	Update(ctx context.Context, access *models.AccessContext, id string, req service.UpdateCourseRequest) (*models.Course, error)
	Delete(ctx context.Context, access *models.AccessContext, id string) error
	SubmitForApproval(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error)
	Approve(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error)
	Reject(ctx context.Context, access *models.AccessContext, id, reason string) (*models.Course, error)
	Publish(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error)
	Archive(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error)
	Restore(ctx context.Context, access *models.AccessContext, id string) (*models.Course, error)
}

// RejectCourseRequest carries the reason shown to the instructor.
type RejectCourseRequest struct {
	Reason string `json:"reason"`
}

// CourseHandler exposes the course catalogue and lifecycle endpoints.
type CourseHandler struct {
	courses courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param status query string false "draft, published or archived"
// @Param approval_status query string false "Approval status"
// @Param instructor_id query string false "Filter by instructor"
// @Param search query string false "Title search"
// @Param mine query bool false "Only courses the caller owns or holds a grant on"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		Status:         models.CourseStatus(c.Query("status")),
		ApprovalStatus: models.ApprovalStatus(c.Query("approval_status")),
		Visibility:     models.CourseVisibility(c.Query("visibility")),
		InstructorID:   c.Query("instructor_id"),
		Search:         c.Query("search"),
		Mine:           queryBool(c, "mine"),
		SortBy:         c.Query("sort"),
		SortOrder:      c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	courses, pagination, err := h.courses.List(c.Request.Context(), accessFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination, middleware.Meta(c))
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), accessFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.courses.Create(c.Request.Context(), accessFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [patch]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.UpdateCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.courses.Update(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), accessFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit course for approval
// @Tags Course Lifecycle
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/submit [post]
func (h *CourseHandler) Submit(c *gin.Context) {
	h.transition(c, h.courses.SubmitForApproval)
}

// Approve godoc
// @Summary Approve course
// @Tags Course Lifecycle
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/approve [post]
func (h *CourseHandler) Approve(c *gin.Context) {
	h.transition(c, h.courses.Approve)
}

// Reject godoc
// @Summary Reject course
// @Tags Course Lifecycle
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body RejectCourseRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/reject [post]
func (h *CourseHandler) Reject(c *gin.Context) {
	var req RejectCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.courses.Reject(c.Request.Context(), accessFromContext(c), c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Publish godoc
// @Summary Publish course
// @Tags Course Lifecycle
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/publish [post]
func (h *CourseHandler) Publish(c *gin.Context) {
	h.transition(c, h.courses.Publish)
}

// Archive godoc
// @Summary Archive course
// @Tags Course Lifecycle
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/archive [post]
func (h *CourseHandler) Archive(c *gin.Context) {
	h.transition(c, h.courses.Archive)
}

// Restore godoc
// @Summary Restore archived course
// @Tags Course Lifecycle
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/restore [post]
func (h *CourseHandler) Restore(c *gin.Context) {
	h.transition(c, h.courses.Restore)
}

func (h *CourseHandler) transition(c *gin.Context, apply func(context.Context, *models.AccessContext, string) (*models.Course, error)) {
	course, err := apply(c.Request.Context(), accessFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}
