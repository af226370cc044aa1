package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

type enrollmentMethodService interface {
	ListAvailable(ctx context.Context, access *models.AccessContext, courseID string) ([]models.EnrollmentMethod, error)
	List(ctx context.Context, access *models.AccessContext, courseID string) ([]models.EnrollmentMethod, error)
	Create(ctx context.Context, access *models.AccessContext, courseID string, req service.EnrollmentMethodRequest) (*models.EnrollmentMethod, error)
	Update(ctx context.Context, access *models.AccessContext, methodID string, req service.EnrollmentMethodRequest) (*models.EnrollmentMethod, error)
	Delete(ctx context.Context, access *models.AccessContext, methodID string) error
}

// EnrollmentMethodHandler exposes enrollment method configuration.
type EnrollmentMethodHandler struct {
	methods enrollmentMethodService
}

// NewEnrollmentMethodHandler constructs EnrollmentMethodHandler.
func NewEnrollmentMethodHandler(methods enrollmentMethodService) *EnrollmentMethodHandler {
	return &EnrollmentMethodHandler{methods: methods}
}

// Available godoc
// @Summary List the ways a learner can join a course
// @Tags Enrollment Methods
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollment-methods/available [get]
func (h *EnrollmentMethodHandler) Available(c *gin.Context) {
	methods, err := h.methods.ListAvailable(c.Request.Context(), accessFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, methods, nil)
}

// List godoc
// @Summary List all enrollment methods of a course
// @Tags Enrollment Methods
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollment-methods [get]
func (h *EnrollmentMethodHandler) List(c *gin.Context) {
	methods, err := h.methods.List(c.Request.Context(), accessFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, methods, nil)
}

// Create godoc
// @Summary Add an enrollment method
// @Tags Enrollment Methods
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.EnrollmentMethodRequest true "Method payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/enrollment-methods [post]
func (h *EnrollmentMethodHandler) Create(c *gin.Context) {
	var req service.EnrollmentMethodRequest
	if !bindJSON(c, &req) {
		return
	}
	method, err := h.methods.Create(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, method)
}

// Update godoc
// @Summary Update an enrollment method
// @Tags Enrollment Methods
// @Accept json
// @Produce json
// @Param id path string true "Enrollment method ID"
// @Param payload body service.EnrollmentMethodRequest true "Method payload"
// @Success 200 {object} response.Envelope
// @Router /enrollment-methods/{id} [put]
func (h *EnrollmentMethodHandler) Update(c *gin.Context) {
	var req service.EnrollmentMethodRequest
	if !bindJSON(c, &req) {
		return
	}
	method, err := h.methods.Update(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, method, nil)
}

// Delete godoc
// @Summary Delete an enrollment method
// @Tags Enrollment Methods
// @Param id path string true "Enrollment method ID"
// @Success 204
// @Router /enrollment-methods/{id} [delete]
func (h *EnrollmentMethodHandler) Delete(c *gin.Context) {
	if err := h.methods.Delete(c.Request.Context(), accessFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
