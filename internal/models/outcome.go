package models

// EnrollmentOutcomeCode is the closed set of results an enrollment attempt can produce.
type EnrollmentOutcomeCode string

const (
	OutcomeEnrolled         EnrollmentOutcomeCode = "ENROLLED"
	OutcomeMethodDisabled   EnrollmentOutcomeCode = "METHOD_DISABLED"
	OutcomeCapacityExceeded EnrollmentOutcomeCode = "CAPACITY_EXCEEDED"
	OutcomeNotYetOpen       EnrollmentOutcomeCode = "NOT_YET_OPEN"
	OutcomeWindowClosed     EnrollmentOutcomeCode = "WINDOW_CLOSED"
	OutcomeInvalidKey       EnrollmentOutcomeCode = "INVALID_KEY"
	OutcomeAlreadyEnrolled  EnrollmentOutcomeCode = "ALREADY_ENROLLED"
	OutcomePendingApproval  EnrollmentOutcomeCode = "PENDING_APPROVAL"
	OutcomeForbidden        EnrollmentOutcomeCode = "FORBIDDEN"
)

// Succeeded reports whether the caller ends up enrolled or queued.
func (c EnrollmentOutcomeCode) Succeeded() bool {
	return c == OutcomeEnrolled || c == OutcomePendingApproval
}

// EnrollmentOutcome is returned by every enrollment attempt. Refusals are values, not errors.
type EnrollmentOutcome struct {
	Code       EnrollmentOutcomeCode `json:"code"`
	Message    string                `json:"message,omitempty"`
	Enrollment *Enrollment           `json:"enrollment,omitempty"`
	Request    *EnrollmentRequest    `json:"request,omitempty"`
	Welcome    *string               `json:"welcome_message,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// BulkEnrollResult reports per-user outcomes of a staff batch enrollment.
type BulkEnrollResult struct {
	MethodID string              `json:"method_id"`
	Admitted int                 `json:"admitted"`
	Results  []BulkEnrollOutcome `json:"results"`
}

// BulkEnrollOutcome is one row of a batch enrollment.
type BulkEnrollOutcome struct {
	UserID       string                `json:"user_id"`
	Code         EnrollmentOutcomeCode `json:"code"`
	EnrollmentID string                `json:"enrollment_id,omitempty"`
}
