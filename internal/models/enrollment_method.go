package models

import "time"

// EnrollmentMethodType names the strategy an enrollment method uses.
type EnrollmentMethodType string

const (
	MethodManual   EnrollmentMethodType = "manual"
	MethodSelf     EnrollmentMethodType = "self"
	MethodKey      EnrollmentMethodType = "key"
	MethodApproval EnrollmentMethodType = "approval"
	MethodBulk     EnrollmentMethodType = "bulk"
	MethodCohort   EnrollmentMethodType = "cohort"
)

// LearnerFacing reports whether a learner may invoke the method directly.
func (t EnrollmentMethodType) LearnerFacing() bool {
	return t == MethodSelf || t == MethodKey || t == MethodApproval
}

// EnrollmentMethod is a configured way of joining a course.
type EnrollmentMethod struct {
	ID                  string               `db:"id" json:"id"`
	CourseID            string               `db:"course_id" json:"course_id"`
	MethodType          EnrollmentMethodType `db:"method_type" json:"method_type"`
	Name                string               `db:"name" json:"name"`
	IsEnabled           bool                 `db:"is_enabled" json:"is_enabled"`
	SortOrder           int                  `db:"sort_order" json:"sort_order"`
	MaxEnrollments      *int                 `db:"max_enrollments" json:"max_enrollments,omitempty"`
	CurrentEnrollments  int                  `db:"current_enrollments" json:"current_enrollments"`
	DefaultRole         CourseRole           `db:"default_role" json:"default_role"`
	EnrollmentStartDate *time.Time           `db:"enrollment_start_date" json:"enrollment_start_date,omitempty"`
	EnrollmentEndDate   *time.Time           `db:"enrollment_end_date" json:"enrollment_end_date,omitempty"`
	EnrollmentKey       *string              `db:"enrollment_key" json:"-"`
	KeyCaseSensitive    bool                 `db:"key_case_sensitive" json:"key_case_sensitive"`
	RequiresApproval    bool                 `db:"requires_approval" json:"requires_approval"`
	ApprovalMessage     *string              `db:"approval_message" json:"approval_message,omitempty"`
	WelcomeMessage      *string              `db:"welcome_message" json:"welcome_message,omitempty"`
	AutoAssignGroupID   *string              `db:"auto_assign_group_id" json:"auto_assign_group_id,omitempty"`
	SendWelcomeEmail    bool                 `db:"send_welcome_email" json:"send_welcome_email"`
	NotifyInstructor    bool                 `db:"notify_instructor" json:"notify_instructor"`
	CreatedAt           time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time            `db:"updated_at" json:"updated_at"`
}

// HasCapacityLimit reports whether the method caps its enrollments.
func (m *EnrollmentMethod) HasCapacityLimit() bool {
	return m.MaxEnrollments != nil
}

// SeatsLeft returns the remaining seats, or -1 when unlimited.
func (m *EnrollmentMethod) SeatsLeft() int {
	if m.MaxEnrollments == nil {
		return -1
	}
	left := *m.MaxEnrollments - m.CurrentEnrollments
	if left < 0 {
		return 0
	}
	return left
}
