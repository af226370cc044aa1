package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/export"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

type exportService interface {
	Roster(ctx context.Context, access *models.AccessContext, courseID string, format export.Format) (*service.ExportFile, error)
	Gradebook(ctx context.Context, access *models.AccessContext, courseID string, format export.Format) (*service.ExportFile, error)
}

type exportFunc func(ctx context.Context, access *models.AccessContext, courseID string, format export.Format) (*service.ExportFile, error)

// ExportHandler streams roster and gradebook documents.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Roster godoc
// @Summary Download the course roster
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /courses/{id}/exports/roster [get]
func (h *ExportHandler) Roster(c *gin.Context) {
	h.serve(c, h.exports.Roster)
}

// Gradebook godoc
// @Summary Download the course gradebook
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /courses/{id}/exports/gradebook [get]
func (h *ExportHandler) Gradebook(c *gin.Context) {
	h.serve(c, h.exports.Gradebook)
}

func (h *ExportHandler) serve(c *gin.Context, render exportFunc) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	file, err := render(c.Request.Context(), accessFromContext(c), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
