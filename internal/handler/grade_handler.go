package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

type gradeService interface {
	Summary(ctx context.Context, access *models.AccessContext, courseID, userID string) (*models.GradeSummary, error)
	GradeSubmission(ctx context.Context, access *models.AccessContext, submissionID string, req service.GradeSubmissionRequest) (*models.Submission, error)
}

// GradeHandler exposes grade summaries and grading.
type GradeHandler struct {
	grades gradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades gradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Summary godoc
// @Summary Course grade summary for a learner
// @Tags Grades
// @Produce json
// @Param id path string true "Course ID"
// @Param user_id query string false "Learner ID; defaults to the caller"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grades/summary [get]
func (h *GradeHandler) Summary(c *gin.Context) {
	summary, err := h.grades.Summary(c.Request.Context(), accessFromContext(c), c.Param("id"), c.Query("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Grade godoc
// @Summary Grade a submission
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.GradeSubmissionRequest true "Score"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *GradeHandler) Grade(c *gin.Context) {
	var req service.GradeSubmissionRequest
	if !bindJSON(c, &req) {
		return
	}
	submission, err := h.grades.GradeSubmission(c.Request.Context(), accessFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
