package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lms-core-api/internal/models"
)

var resolveNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func strRef(v string) *string { return &v }

func timeRef(t time.Time) *time.Time { return &t }

func selfMethod() *models.EnrollmentMethod {
	return &models.EnrollmentMethod{
		ID:          "method-self",
		CourseID:    "course-1",
		MethodType:  models.MethodSelf,
		IsEnabled:   true,
		DefaultRole: models.CourseRoleStudent,
	}
}

func TestResolveSelfAdmits(t *testing.T) {
	decision := ResolveEnrollment(selfMethod(), EnrollmentAttempt{}, resolveNow)
	assert.True(t, decision.Admit())
}

func TestResolveAvailabilityGateOrder(t *testing.T) {
	method := selfMethod()
	method.IsEnabled = false
	method.MaxEnrollments = intPtr(1)
	method.CurrentEnrollments = 1
	method.EnrollmentEndDate = timeRef(resolveNow.Add(-time.Hour))
	assert.Equal(t, models.OutcomeMethodDisabled, ResolveEnrollment(method, EnrollmentAttempt{}, resolveNow).Code)

	method.IsEnabled = true
	assert.Equal(t, models.OutcomeCapacityExceeded, ResolveEnrollment(method, EnrollmentAttempt{}, resolveNow).Code)

	method.MaxEnrollments = nil
	method.EnrollmentStartDate = timeRef(resolveNow.Add(time.Hour))
	assert.Equal(t, models.OutcomeNotYetOpen, ResolveEnrollment(method, EnrollmentAttempt{}, resolveNow).Code)

	method.EnrollmentStartDate = nil
	assert.Equal(t, models.OutcomeWindowClosed, ResolveEnrollment(method, EnrollmentAttempt{}, resolveNow).Code)
}

func TestResolveWindowClosedRegardlessOfType(t *testing.T) {
	for _, methodType := range []models.EnrollmentMethodType{models.MethodSelf, models.MethodKey, models.MethodApproval, models.MethodManual} {
		method := selfMethod()
		method.MethodType = methodType
		method.EnrollmentKey = strRef("secret")
		method.RequiresApproval = true
		method.EnrollmentEndDate = timeRef(resolveNow.Add(-24 * time.Hour))

		decision := ResolveEnrollment(method, EnrollmentAttempt{Key: "secret"}, resolveNow)
		assert.Equal(t, models.OutcomeWindowClosed, decision.Code, "type %s", methodType)
	}
}

func TestResolveWindowBoundariesAreInclusive(t *testing.T) {
	method := selfMethod()
	method.EnrollmentStartDate = timeRef(resolveNow)
	method.EnrollmentEndDate = timeRef(resolveNow)
	assert.True(t, ResolveEnrollment(method, EnrollmentAttempt{}, resolveNow).Admit())
}

func TestResolveKeyCaseSensitivity(t *testing.T) {
	method := selfMethod()
	method.MethodType = models.MethodKey
	method.EnrollmentKey = strRef("OpenSesame")

	cases := []struct {
		name          string
		caseSensitive bool
		key           string
		want          models.EnrollmentOutcomeCode
	}{
		{"exact key sensitive", true, "OpenSesame", models.OutcomeEnrolled},
		{"other case sensitive", true, "opensesame", models.OutcomeInvalidKey},
		{"exact key insensitive", false, "OpenSesame", models.OutcomeEnrolled},
		{"other case insensitive", false, "OPENSESAME", models.OutcomeEnrolled},
		{"wrong key", false, "letmein", models.OutcomeInvalidKey},
		{"empty key", false, "", models.OutcomeInvalidKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := *method
			m.KeyCaseSensitive = tc.caseSensitive
			assert.Equal(t, tc.want, ResolveEnrollment(&m, EnrollmentAttempt{Key: tc.key}, resolveNow).Code)
		})
	}
}

func TestResolveKeyMethodWithoutStoredKeyNeverAdmits(t *testing.T) {
	method := selfMethod()
	method.MethodType = models.MethodKey
	assert.Equal(t, models.OutcomeInvalidKey, ResolveEnrollment(method, EnrollmentAttempt{Key: ""}, resolveNow).Code)
}

func TestResolveApprovalDefers(t *testing.T) {
	method := selfMethod()
	method.MethodType = models.MethodApproval
	method.ApprovalMessage = strRef("An instructor will review your request.")

	decision := ResolveEnrollment(method, EnrollmentAttempt{}, resolveNow)
	assert.True(t, decision.Defer())
	assert.Equal(t, "An instructor will review your request.", decision.Message)
}

func TestResolveSelfWithApprovalDefers(t *testing.T) {
	method := selfMethod()
	method.RequiresApproval = true
	assert.True(t, ResolveEnrollment(method, EnrollmentAttempt{}, resolveNow).Defer())
}

func TestResolveStaffMethodsForbidLearners(t *testing.T) {
	for _, methodType := range []models.EnrollmentMethodType{models.MethodManual, models.MethodBulk, models.MethodCohort} {
		method := selfMethod()
		method.MethodType = methodType
		decision := ResolveEnrollment(method, EnrollmentAttempt{}, resolveNow)
		assert.Equal(t, models.OutcomeForbidden, decision.Code)
		assert.Contains(t, decision.Message, string(methodType))
	}
}
