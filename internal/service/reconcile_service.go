package service

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type counterReconciler interface {
	Reconcile(ctx context.Context, courseID string) (*models.CounterReport, error)
}

type courseLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// ReconcileSummary aggregates a reconciliation pass over many courses.
type ReconcileSummary struct {
	Courses  int                    `json:"courses"`
	Repaired int                    `json:"repaired"`
	Reports  []models.CounterReport `json:"reports"`
}

// ReconcileService repairs the denormalized enrollment counters from a full scan of active enrollments.
type ReconcileService struct {
	counters counterReconciler
	courses  courseLister
	audit    auditLogger
	metrics  *MetricsService
	logger   *zap.Logger
	workers  int
}

// NewReconcileService constructs the service. workers bounds ReconcileAll's fan-out.
func NewReconcileService(counters counterReconciler, courses courseLister, audit auditLogger, metrics *MetricsService, workers int, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 4
	}
	return &ReconcileService{counters: counters, courses: courses, audit: audit, metrics: metrics, logger: logger, workers: workers}
}

// ReconcileCourse repairs one course. Admin only.
func (s *ReconcileService) ReconcileCourse(ctx context.Context, access *models.AccessContext, courseID string) (*models.CounterReport, error) {
	if !access.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	report, err := s.counters.Reconcile(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to reconcile counters")
	}
	s.record(ctx, access, report)
	return report, nil
}

// ReconcileAll repairs every course with bounded concurrency. Only reports with drift are returned.
func (s *ReconcileService) ReconcileAll(ctx context.Context, access *models.AccessContext) (*ReconcileSummary, error) {
	if !access.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	ids, err := s.courses.ListIDs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	var (
		mu      sync.Mutex
		summary = &ReconcileSummary{Courses: len(ids), Reports: []models.CounterReport{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			report, err := s.counters.Reconcile(gctx, id)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, sprintf("failed to reconcile course %s", id))
			}
			s.record(gctx, access, report)
			if !report.Repaired() {
				return nil
			}
			mu.Lock()
			summary.Repaired++
			summary.Reports = append(summary.Reports, *report)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Info("counter reconciliation finished", zap.Int("courses", summary.Courses), zap.Int("repaired", summary.Repaired))
	return summary, nil
}

func (s *ReconcileService) record(ctx context.Context, access *models.AccessContext, report *models.CounterReport) {
	if !report.Repaired() {
		return
	}
	s.metrics.RecordCounterDrift(report)
	for _, drift := range report.Drifts {
		s.logger.Warn("enrollment counter drift repaired",
			zap.String("entity", drift.Entity),
			zap.String("entity_id", drift.EntityID),
			zap.Int("stored", drift.Stored),
			zap.Int("actual", drift.Actual),
		)
	}
	writeAudit(ctx, s.audit, s.logger, access, models.AuditActionCounterRepair, "course", report.CourseID, nil, report)
}
