package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusSuspended EnrollmentStatus = "suspended"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
)

// CourseRole is the role a member holds inside one course.
type CourseRole string

const (
	CourseRoleStudent           CourseRole = "student"
	CourseRoleTeacher           CourseRole = "teacher"
	CourseRoleManager           CourseRole = "manager"
	CourseRoleTeachingAssistant CourseRole = "teaching_assistant"
	CourseRoleNonEditingTeacher CourseRole = "non_editing_teacher"
	CourseRoleObserver          CourseRole = "observer"
	CourseRoleGuest             CourseRole = "guest"
)

// Enrollment links one user to one course.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	UserID             string           `db:"user_id" json:"user_id"`
	CourseID           string           `db:"course_id" json:"course_id"`
	MethodID           *string          `db:"method_id" json:"method_id,omitempty"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	CourseRole         CourseRole       `db:"course_role" json:"course_role"`
	ProgressPercentage float64          `db:"progress_percentage" json:"progress_percentage"`
	EnrolledAt         time.Time        `db:"enrolled_at" json:"enrolled_at"`
	EnrolledBy         *string          `db:"enrolled_by" json:"enrolled_by,omitempty"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with participant info.
type EnrollmentDetail struct {
	Enrollment
	UserName  string `db:"user_name" json:"user_name"`
	UserEmail string `db:"user_email" json:"user_email"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	CourseID  string
	UserID    string
	Status    EnrollmentStatus
	Role      CourseRole
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// AdmissionStatus is what storage reports back from an admission attempt.
type AdmissionStatus string

const (
	AdmissionAdmitted      AdmissionStatus = "admitted"
	AdmissionMethodFull    AdmissionStatus = "method_full"
	AdmissionCourseFull    AdmissionStatus = "course_full"
	AdmissionAlreadyActive AdmissionStatus = "already_active"
)

// AdmissionResult carries the per-user result of an admission write.
type AdmissionResult struct {
	UserID     string          `json:"user_id"`
	Status     AdmissionStatus `json:"status"`
	Enrollment *Enrollment     `json:"enrollment,omitempty"`
}

// CounterDrift describes one denormalized counter that disagreed with the enrollment rows.
type CounterDrift struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id"`
	Stored   int    `json:"stored"`
	Actual   int    `json:"actual"`
}

// CounterReport summarises a reconciliation pass over one course.
type CounterReport struct {
	CourseID string         `json:"course_id"`
	Drifts   []CounterDrift `json:"drifts"`
}

// Repaired reports whether any counter needed fixing.
func (r *CounterReport) Repaired() bool {
	return r != nil && len(r.Drifts) > 0
}
