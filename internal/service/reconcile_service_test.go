package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type counterStub struct {
	mu      sync.Mutex
	reports map[string]*models.CounterReport
	failOn  string
	calls   []string
}

func (c *counterStub) Reconcile(ctx context.Context, courseID string) (*models.CounterReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, courseID)
	if courseID == c.failOn {
		return nil, errors.New("deadlock detected")
	}
	report, ok := c.reports[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return report, nil
}

func (c *counterStub) ListIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(c.reports))
	for id := range c.reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func newCounterStub() *counterStub {
	return &counterStub{reports: map[string]*models.CounterReport{
		"course-1": {CourseID: "course-1"},
		"course-2": {CourseID: "course-2", Drifts: []models.CounterDrift{
			{Entity: "course", EntityID: "course-2", Stored: 7, Actual: 5},
			{Entity: "method", EntityID: "method-9", Stored: 3, Actual: 1},
		}},
		"course-3": {CourseID: "course-3"},
	}}
}

func TestReconcileAllReturnsRepairedCoursesOnly(t *testing.T) {
	stub := newCounterStub()
	audit := &auditSink{}
	metrics := NewMetricsService()
	svc := NewReconcileService(stub, stub, audit, metrics, 2, zap.NewNop())

	summary, err := svc.ReconcileAll(context.Background(), adminAccess())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Courses)
	assert.Equal(t, 1, summary.Repaired)
	require.Len(t, summary.Reports, 1)
	assert.Equal(t, "course-2", summary.Reports[0].CourseID)
	assert.Len(t, stub.calls, 3)

	assert.Equal(t, []string{models.AuditActionCounterRepair}, audit.actions())
	assert.EqualValues(t, 2, metrics.Snapshot().CounterDrifts)
}

func TestReconcileRequiresAdmin(t *testing.T) {
	stub := newCounterStub()
	svc := NewReconcileService(stub, stub, nil, nil, 0, nil)

	_, err := svc.ReconcileCourse(context.Background(), instructorAccess("inst-1"), "course-1")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	_, err = svc.ReconcileAll(context.Background(), learnerAccess("learner-1"))
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))
	assert.Empty(t, stub.calls)
}

func TestReconcileCourseErrors(t *testing.T) {
	stub := newCounterStub()
	stub.failOn = "course-3"
	svc := NewReconcileService(stub, stub, nil, nil, 1, nil)

	_, err := svc.ReconcileCourse(context.Background(), adminAccess(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(err))

	report, err := svc.ReconcileCourse(context.Background(), adminAccess(), "course-1")
	require.NoError(t, err)
	assert.False(t, report.Repaired())

	_, err = svc.ReconcileAll(context.Background(), adminAccess())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, errorCode(err))
}
