package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

type enrollmentServiceMock struct {
	outcome      *models.EnrollmentOutcome
	err          error
	lastMethod   string
	lastRequest  service.EnrollRequest
	lastStatus   models.EnrollmentRequestStatus
	lastFilter   models.EnrollmentFilter
	lastAccess   *models.AccessContext
	reviewResult *service.ReviewResult
}

func (m *enrollmentServiceMock) Enroll(_ context.Context, access *models.AccessContext, methodID string, req service.EnrollRequest) (*models.EnrollmentOutcome, error) {
	m.lastAccess = access
	m.lastMethod = methodID
	m.lastRequest = req
	return m.outcome, m.err
}

func (m *enrollmentServiceMock) AddParticipant(_ context.Context, access *models.AccessContext, _ string, _ service.AddParticipantRequest) (*models.EnrollmentOutcome, error) {
	m.lastAccess = access
	return m.outcome, m.err
}

func (m *enrollmentServiceMock) BulkEnroll(_ context.Context, _ *models.AccessContext, methodID string, req service.BulkEnrollRequest) (*models.BulkEnrollResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	result := &models.BulkEnrollResult{MethodID: methodID}
	for _, id := range req.UserIDs {
		result.Results = append(result.Results, models.BulkEnrollOutcome{UserID: id, Code: models.OutcomeEnrolled})
		result.Admitted++
	}
	return result, nil
}

func (m *enrollmentServiceMock) ListParticipants(_ context.Context, _ *models.AccessContext, _ string, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.EnrollmentDetail{}, models.NewPagination(filter.Page, filter.PageSize, 0), m.err
}

func (m *enrollmentServiceMock) ListMyEnrollments(_ context.Context, _ *models.AccessContext, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.EnrollmentDetail{}, models.NewPagination(filter.Page, filter.PageSize, 0), m.err
}

func (m *enrollmentServiceMock) UpdateStatus(_ context.Context, _ *models.AccessContext, id string, req service.UpdateStatusRequest) (*models.Enrollment, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Enrollment{ID: id, Status: req.Status}, nil
}

func (m *enrollmentServiceMock) UpdateProgress(_ context.Context, _ *models.AccessContext, id string, _ service.UpdateProgressRequest) (*models.Enrollment, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Enrollment{ID: id}, nil
}

func (m *enrollmentServiceMock) Remove(context.Context, *models.AccessContext, string) error {
	return m.err
}

func (m *enrollmentServiceMock) ListRequests(_ context.Context, _ *models.AccessContext, _ string, status models.EnrollmentRequestStatus) ([]models.EnrollmentRequest, error) {
	m.lastStatus = status
	return []models.EnrollmentRequest{}, m.err
}

func (m *enrollmentServiceMock) ReviewRequest(context.Context, *models.AccessContext, string, service.ReviewRequestInput) (*service.ReviewResult, error) {
	return m.reviewResult, m.err
}

func buildEnrollmentRouter(mock *enrollmentServiceMock) http.Handler {
	router := testRouter()
	h := NewEnrollmentHandler(mock)
	router.POST("/enrollment-methods/:id/enroll", h.Enroll)
	router.POST("/enrollment-methods/:id/bulk", h.Bulk)
	router.POST("/courses/:id/participants", h.AddParticipant)
	router.GET("/courses/:id/participants", h.Participants)
	router.GET("/courses/:id/enrollment-requests", h.Requests)
	router.POST("/enrollment-requests/:id/review", h.Review)
	router.PATCH("/enrollments/:id/status", h.UpdateStatus)
	router.DELETE("/enrollments/:id", h.Remove)
	return router
}

func decodeEnvelope(t *testing.T, body []byte) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope
}

func TestEnrollmentHandlerEnrollStatusCodes(t *testing.T) {
	cases := []struct {
		name      string
		outcome   *models.EnrollmentOutcome
		status    int
		errorCode string
	}{
		{"enrolled", &models.EnrollmentOutcome{Code: models.OutcomeEnrolled, Enrollment: &models.Enrollment{ID: "enr-1"}}, http.StatusCreated, ""},
		{"pending approval", &models.EnrollmentOutcome{Code: models.OutcomePendingApproval, Request: &models.EnrollmentRequest{ID: "req-1"}}, http.StatusAccepted, ""},
		{"capacity exceeded", &models.EnrollmentOutcome{Code: models.OutcomeCapacityExceeded}, http.StatusConflict, "CAPACITY_EXCEEDED"},
		{"invalid key", &models.EnrollmentOutcome{Code: models.OutcomeInvalidKey}, http.StatusBadRequest, "INVALID_KEY"},
		{"window closed", &models.EnrollmentOutcome{Code: models.OutcomeWindowClosed}, http.StatusForbidden, "WINDOW_CLOSED"},
		{"already enrolled", &models.EnrollmentOutcome{Code: models.OutcomeAlreadyEnrolled}, http.StatusConflict, "ALREADY_ENROLLED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &enrollmentServiceMock{outcome: tc.outcome}
			router := buildEnrollmentRouter(mock)

			req, _ := http.NewRequest(http.MethodPost, "/enrollment-methods/method-1/enroll", bytes.NewBufferString(`{"key":"secret"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Test-Role", string(models.RoleStudent))
			resp := performRequest(router, req)

			require.Equal(t, tc.status, resp.Code)
			assert.Equal(t, "method-1", mock.lastMethod)
			assert.Equal(t, "secret", mock.lastRequest.Key)

			envelope := decodeEnvelope(t, resp.Body.Bytes())
			var data models.EnrollmentOutcome
			require.NoError(t, json.Unmarshal(envelope["data"], &data))
			assert.Equal(t, tc.outcome.Code, data.Code)

			if tc.errorCode == "" {
				assert.NotContains(t, envelope, "error")
				return
			}
			var apiErr appErrors.Error
			require.NoError(t, json.Unmarshal(envelope["error"], &apiErr))
			assert.Equal(t, tc.errorCode, apiErr.Code)
		})
	}
}

func TestEnrollmentHandlerEnrollWithoutBody(t *testing.T) {
	mock := &enrollmentServiceMock{outcome: &models.EnrollmentOutcome{Code: models.OutcomeEnrolled}}
	router := buildEnrollmentRouter(mock)

	req, _ := http.NewRequest(http.MethodPost, "/enrollment-methods/method-1/enroll", nil)
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	req.Header.Set("X-Test-User", "learner-7")
	resp := performRequest(router, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.NotNil(t, mock.lastAccess)
	assert.Equal(t, "learner-7", mock.lastAccess.UserID)
	assert.Empty(t, mock.lastRequest.Key)
}

func TestEnrollmentHandlerEnrollRejectsMalformedPayload(t *testing.T) {
	router := buildEnrollmentRouter(&enrollmentServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/enrollment-methods/method-1/enroll", bytes.NewBufferString(`{"key":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "VALIDATION_ERROR")
}

func TestEnrollmentHandlerPropagatesServiceErrors(t *testing.T) {
	router := buildEnrollmentRouter(&enrollmentServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "enrollment method not found")})

	req, _ := http.NewRequest(http.MethodPost, "/enrollment-methods/missing/enroll", nil)
	req.Header.Set("X-Test-Role", string(models.RoleStudent))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "enrollment method not found")
}

func TestEnrollmentHandlerAddParticipantRefusal(t *testing.T) {
	mock := &enrollmentServiceMock{outcome: &models.EnrollmentOutcome{Code: models.OutcomeCapacityExceeded, Message: "course is full"}}
	router := buildEnrollmentRouter(mock)

	req, _ := http.NewRequest(http.MethodPost, "/courses/course-1/participants", bytes.NewBufferString(`{"user_id":"u-2"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleInstructor))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "course is full")
}

func TestEnrollmentHandlerBulk(t *testing.T) {
	router := buildEnrollmentRouter(&enrollmentServiceMock{})

	req, _ := http.NewRequest(http.MethodPost, "/enrollment-methods/bulk-1/bulk", bytes.NewBufferString(`{"user_ids":["a","b"]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleInstructor))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data models.BulkEnrollResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Data.Admitted)
	assert.Equal(t, "bulk-1", envelope.Data.MethodID)
}

func TestEnrollmentHandlerParticipantsParsesQuery(t *testing.T) {
	mock := &enrollmentServiceMock{}
	router := buildEnrollmentRouter(mock)

	req, _ := http.NewRequest(http.MethodGet, "/courses/course-1/participants?status=active&role=student&page=2&limit=50&sort=progress&order=desc", nil)
	req.Header.Set("X-Test-Role", string(models.RoleInstructor))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.EnrollmentStatusActive, mock.lastFilter.Status)
	assert.Equal(t, models.CourseRole("student"), mock.lastFilter.Role)
	assert.Equal(t, 2, mock.lastFilter.Page)
	assert.Equal(t, 50, mock.lastFilter.PageSize)
	assert.Equal(t, "progress", mock.lastFilter.SortBy)
	assert.Equal(t, "desc", mock.lastFilter.SortOrder)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 2, envelope.Pagination.Page)
}

func TestEnrollmentHandlerRequestsDefaultsToPending(t *testing.T) {
	mock := &enrollmentServiceMock{}
	router := buildEnrollmentRouter(mock)

	req, _ := http.NewRequest(http.MethodGet, "/courses/course-1/enrollment-requests", nil)
	req.Header.Set("X-Test-Role", string(models.RoleInstructor))
	resp := performRequest(router, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.RequestStatusPending, mock.lastStatus)
}

func TestEnrollmentHandlerReview(t *testing.T) {
	t.Run("approved", func(t *testing.T) {
		mock := &enrollmentServiceMock{reviewResult: &service.ReviewResult{
			Request: &models.EnrollmentRequest{ID: "req-1", Status: models.RequestStatusApproved},
			Outcome: &models.EnrollmentOutcome{Code: models.OutcomeEnrolled},
		}}
		router := buildEnrollmentRouter(mock)

		req, _ := http.NewRequest(http.MethodPost, "/enrollment-requests/req-1/review", bytes.NewBufferString(`{"approve":true}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleInstructor))
		resp := performRequest(router, req)

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Body.String(), `"status":"approved"`)
	})

	t.Run("approval hits a full course", func(t *testing.T) {
		mock := &enrollmentServiceMock{reviewResult: &service.ReviewResult{
			Request: &models.EnrollmentRequest{ID: "req-1", Status: models.RequestStatusPending},
			Outcome: &models.EnrollmentOutcome{Code: models.OutcomeCapacityExceeded},
		}}
		router := buildEnrollmentRouter(mock)

		req, _ := http.NewRequest(http.MethodPost, "/enrollment-requests/req-1/review", bytes.NewBufferString(`{"approve":true}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleInstructor))
		resp := performRequest(router, req)

		require.Equal(t, http.StatusConflict, resp.Code)
		assert.Contains(t, resp.Body.String(), "CAPACITY_EXCEEDED")
	})
}

func TestEnrollmentHandlerStatusAndRemove(t *testing.T) {
	router := buildEnrollmentRouter(&enrollmentServiceMock{})

	req, _ := http.NewRequest(http.MethodPatch, "/enrollments/enr-1/status", bytes.NewBufferString(`{"status":"suspended"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Role", string(models.RoleInstructor))
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"suspended"`)

	req, _ = http.NewRequest(http.MethodDelete, "/enrollments/enr-1", nil)
	req.Header.Set("X-Test-Role", string(models.RoleInstructor))
	resp = performRequest(router, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
}
