package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

type reconcileService interface {
	ReconcileCourse(ctx context.Context, access *models.AccessContext, courseID string) (*models.CounterReport, error)
	ReconcileAll(ctx context.Context, access *models.AccessContext) (*service.ReconcileSummary, error)
}

// AdminHandler exposes operational endpoints: metrics and counter reconciliation.
type AdminHandler struct {
	metrics   *service.MetricsService
	reconcile reconcileService
}

// NewAdminHandler constructs an admin handler. metrics may be nil.
func NewAdminHandler(metrics *service.MetricsService, reconcile reconcileService) *AdminHandler {
	return &AdminHandler{metrics: metrics, reconcile: reconcile}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *AdminHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Metrics godoc
// @Summary Metrics snapshot
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/metrics [get]
func (h *AdminHandler) Metrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// ReconcileCourse godoc
// @Summary Repair one course's enrollment counters
// @Tags Admin
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /admin/courses/{id}/reconcile [post]
func (h *AdminHandler) ReconcileCourse(c *gin.Context) {
	report, err := h.reconcile.ReconcileCourse(c.Request.Context(), accessFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ReconcileAll godoc
// @Summary Repair enrollment counters of every course
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/reconcile [post]
func (h *AdminHandler) ReconcileAll(c *gin.Context) {
	summary, err := h.reconcile.ReconcileAll(c.Request.Context(), accessFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
