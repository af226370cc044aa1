package handler

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

type courseServiceMock struct {
	course     *models.Course
	err        error
	calls      []string
	lastReason string
	lastFilter models.CourseFilter
	lastAccess *models.AccessContext
}

func (m *courseServiceMock) respond(op string, access *models.AccessContext) (*models.Course, error) {
	m.calls = append(m.calls, op)
	m.lastAccess = access
	if m.err != nil {
		return nil, m.err
	}
	return m.course, nil
}

func (m *courseServiceMock) Create(_ context.Context, access *models.AccessContext, req service.CreateCourseRequest) (*models.Course, error) {
	course, err := m.respond("create", access)
	if course != nil {
		course.Title = req.Title
	}
	return course, err
}

func (m *courseServiceMock) Get(_ context.Context, access *models.AccessContext, _ string) (*models.Course, error) {
	return m.respond("get", access)
}

func (m *courseServiceMock) List(_ context.Context, access *models.AccessContext, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	m.lastFilter = filter
	m.calls = append(m.calls, "list")
	m.lastAccess = access
	return []models.Course{}, models.NewPagination(filter.Page, filter.PageSize, 0), m.err
}

func (m *courseServiceMock) Update(_ context.Context, access *models.AccessContext, _ string, _ service.UpdateCourseRequest) (*models.Course, error) {
	return m.respond("update", access)
}

func (m *courseServiceMock) Delete(_ context.Context, access *models.AccessContext, _ string) error {
	_, err := m.respond("delete", access)
	return err
}

func (m *courseServiceMock) SubmitForApproval(_ context.Context, access *models.AccessContext, _ string) (*models.Course, error) {
	return m.respond("submit", access)
}

func (m *courseServiceMock) Approve(_ context.Context, access *models.AccessContext, _ string) (*models.Course, error) {
	return m.respond("approve", access)
}

func (m *courseServiceMock) Reject(_ context.Context, access *models.AccessContext, _ string, reason string) (*models.Course, error) {
	m.lastReason = reason
	return m.respond("reject", access)
}

func (m *courseServiceMock) Publish(_ context.Context, access *models.AccessContext, _ string) (*models.Course, error) {
	return m.respond("publish", access)
}

func (m *courseServiceMock) Archive(_ context.Context, access *models.AccessContext, _ string) (*models.Course, error) {
	return m.respond("archive", access)
}

func (m *courseServiceMock) Restore(_ context.Context, access *models.AccessContext, _ string) (*models.Course, error) {
	return m.respond("restore", access)
}

func buildCourseRouter(mock *courseServiceMock) http.Handler {
	router := testRouter()
	h := NewCourseHandler(mock)
	router.GET("/courses", h.List)
	router.GET("/courses/:id", h.Get)
	router.POST("/courses", h.Create)
	router.DELETE("/courses/:id", h.Delete)
	router.POST("/courses/:id/submit", h.Submit)
	router.POST("/courses/:id/approve", h.Approve)
	router.POST("/courses/:id/reject", h.Reject)
	router.POST("/courses/:id/publish", h.Publish)
	router.POST("/courses/:id/archive", h.Archive)
	router.POST("/courses/:id/restore", h.Restore)
	return router
}

func TestCourseHandlerListIsPublic(t *testing.T) {
	mock := &courseServiceMock{}
	router := buildCourseRouter(mock)

	req, _ := http.NewRequest(http.MethodGet, "/courses?status=published&mine=true&search=go&page=3", nil)
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.CourseStatusPublished, mock.lastFilter.Status)
	assert.True(t, mock.lastFilter.Mine)
	assert.Equal(t, "go", mock.lastFilter.Search)
	assert.Equal(t, 3, mock.lastFilter.Page)
	require.NotNil(t, mock.lastAccess)
	assert.Empty(t, mock.lastAccess.UserID)
}

func TestCourseHandlerCreate(t *testing.T) {
	mock := &courseServiceMock{course: &models.Course{ID: "course-1"}}
	router := buildCourseRouter(mock)

	req, _ := http.NewRequest(http.MethodPost, "/courses", bytes.NewBufferString(`{"title":"Distributed Systems"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleInstructor))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Contains(t, resp.Body.String(), `"title":"Distributed Systems"`)
}

func TestCourseHandlerTransitions(t *testing.T) {
	for _, action := range []string{"submit", "approve", "publish", "archive", "restore"} {
		t.Run(action, func(t *testing.T) {
			mock := &courseServiceMock{course: &models.Course{ID: "course-1", Status: models.CourseStatusPublished}}
			router := buildCourseRouter(mock)

			req, _ := http.NewRequest(http.MethodPost, "/courses/course-1/"+action, nil)
			req.Header.Set("X-Test-Role", string(models.RoleAdmin))
			resp := performRequest(router, req)

			require.Equal(t, http.StatusOK, resp.Code)
			assert.Equal(t, []string{action}, mock.calls)
			assert.Equal(t, models.RoleAdmin, mock.lastAccess.Role)
		})
	}
}

func TestCourseHandlerTransitionErrors(t *testing.T) {
	t.Run("invalid transition", func(t *testing.T) {
		mock := &courseServiceMock{err: appErrors.Clone(appErrors.ErrInvalidTransition, "course is not pending approval")}
		router := buildCourseRouter(mock)

		req, _ := http.NewRequest(http.MethodPost, "/courses/course-1/approve", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)

		require.Equal(t, http.StatusConflict, resp.Code)
		assert.Contains(t, resp.Body.String(), "INVALID_TRANSITION")
	})

	t.Run("forbidden", func(t *testing.T) {
		mock := &courseServiceMock{err: appErrors.ErrForbidden}
		router := buildCourseRouter(mock)

		req, _ := http.NewRequest(http.MethodPost, "/courses/course-1/publish", nil)
		req.Header.Set("X-Test-Role", string(models.RoleStudent))
		resp := performRequest(router, req)

		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("unexpected failure", func(t *testing.T) {
		mock := &courseServiceMock{err: assert.AnError}
		router := buildCourseRouter(mock)

		req, _ := http.NewRequest(http.MethodPost, "/courses/course-1/archive", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		resp := performRequest(router, req)

		require.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.Contains(t, resp.Body.String(), "INTERNAL_ERROR")
	})
}

func TestCourseHandlerRejectPassesReason(t *testing.T) {
	mock := &courseServiceMock{course: &models.Course{ID: "course-1"}}
	router := buildCourseRouter(mock)

	req, _ := http.NewRequest(http.MethodPost, "/courses/course-1/reject", bytes.NewBufferString(`{"reason":"missing syllabus"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleAdmin))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "missing syllabus", mock.lastReason)
}

func TestCourseHandlerDelete(t *testing.T) {
	mock := &courseServiceMock{}
	router := buildCourseRouter(mock)

	req, _ := http.NewRequest(http.MethodDelete, "/courses/course-1", nil)
	req.Header.Set("X-Test-Role", string(models.RoleInstructor))
	resp := performRequest(router, req)

	assert.Equal(t, http.StatusNoContent, resp.Code)
}
