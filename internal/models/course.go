package models

import "time"

// CourseStatus is the publication status of a course.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "draft"
	CourseStatusPublished CourseStatus = "published"
	CourseStatusArchived  CourseStatus = "archived"
)

// ApprovalStatus tracks a course through the review queue.
type ApprovalStatus string

const (
	ApprovalStatusDraft           ApprovalStatus = "draft"
	ApprovalStatusPendingApproval ApprovalStatus = "pending_approval"
	ApprovalStatusApproved        ApprovalStatus = "approved"
	ApprovalStatusRejected        ApprovalStatus = "rejected"
)

// CourseVisibility controls catalogue exposure.
type CourseVisibility string

const (
	VisibilityPublic   CourseVisibility = "public"
	VisibilityPrivate  CourseVisibility = "private"
	VisibilityUnlisted CourseVisibility = "unlisted"
)

// Course is the unit learners enroll into.
type Course struct {
	ID                     string           `db:"id" json:"id"`
	Title                  string           `db:"title" json:"title"`
	Summary                string           `db:"summary" json:"summary"`
	InstructorID           string           `db:"instructor_id" json:"instructor_id"`
	Status                 CourseStatus     `db:"status" json:"status"`
	ApprovalStatus         ApprovalStatus   `db:"approval_status" json:"approval_status"`
	Visibility             CourseVisibility `db:"visibility" json:"visibility"`
	AllowEnrollment        bool             `db:"allow_enrollment" json:"allow_enrollment"`
	MaxStudents            *int             `db:"max_students" json:"max_students,omitempty"`
	EnrolledCount          int              `db:"enrolled_count" json:"enrolled_count"`
	SubmittedForApprovalAt *time.Time       `db:"submitted_for_approval_at" json:"submitted_for_approval_at,omitempty"`
	ApprovedAt             *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy             *string          `db:"approved_by" json:"approved_by,omitempty"`
	RejectionReason        *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ArchivedFromStatus     *CourseStatus    `db:"archived_from_status" json:"-"`
	CreatedAt              time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time        `db:"updated_at" json:"updated_at"`
}

// LifecycleState is the pair of statuses a lifecycle write is conditioned on.
type LifecycleState struct {
	Status         CourseStatus
	ApprovalStatus ApprovalStatus
}

// State captures the course's current lifecycle state.
func (c *Course) State() LifecycleState {
	return LifecycleState{Status: c.Status, ApprovalStatus: c.ApprovalStatus}
}

// OpenForEnrollment reports whether learners may enroll at all.
func (c *Course) OpenForEnrollment() bool {
	return c.Status == CourseStatusPublished && c.AllowEnrollment
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	InstructorID   string
	Status         CourseStatus
	ApprovalStatus ApprovalStatus
	Visibility     CourseVisibility
	Search         string
	IDs            []string
	Mine           bool
	ScopeUserID    string
	ScopeIDs       []string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
