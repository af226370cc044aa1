package models

import "time"

// EnrollmentRequestStatus tracks a learner's approval-gated request.
type EnrollmentRequestStatus string

const (
	RequestStatusPending  EnrollmentRequestStatus = "pending"
	RequestStatusApproved EnrollmentRequestStatus = "approved"
	RequestStatusDenied   EnrollmentRequestStatus = "denied"
)

// EnrollmentRequest is a pending admission awaiting a course manager's decision.
type EnrollmentRequest struct {
	ID          string                  `db:"id" json:"id"`
	CourseID    string                  `db:"course_id" json:"course_id"`
	MethodID    string                  `db:"method_id" json:"method_id"`
	UserID      string                  `db:"user_id" json:"user_id"`
	Status      EnrollmentRequestStatus `db:"status" json:"status"`
	Message     *string                 `db:"message" json:"message,omitempty"`
	RequestedAt time.Time               `db:"requested_at" json:"requested_at"`
	ReviewedBy  *string                 `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time              `db:"reviewed_at" json:"reviewed_at,omitempty"`
	Note        *string                 `db:"note" json:"note,omitempty"`
}
