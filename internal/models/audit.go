package models

import "time"

// Audit actions recorded by the lifecycle and enrollment flows.
const (
	AuditActionCourseSubmit     = "COURSE_SUBMIT"
	AuditActionCourseApprove    = "COURSE_APPROVE"
	AuditActionCourseReject     = "COURSE_REJECT"
	AuditActionCoursePublish    = "COURSE_PUBLISH"
	AuditActionCourseArchive    = "COURSE_ARCHIVE"
	AuditActionCourseRestore    = "COURSE_RESTORE"
	AuditActionCourseDelete     = "COURSE_DELETE"
	AuditActionEnrollmentAdmit  = "ENROLLMENT_ADMIT"
	AuditActionEnrollmentStatus = "ENROLLMENT_STATUS"
	AuditActionEnrollmentRemove = "ENROLLMENT_REMOVE"
	AuditActionRequestReview    = "ENROLLMENT_REQUEST_REVIEW"
	AuditActionCounterRepair    = "COUNTER_RECONCILE"
	AuditActionPermissionGrant  = "PERMISSION_GRANT"
	AuditActionPermissionRevoke = "PERMISSION_REVOKE"
	AuditActionExport           = "COURSE_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
