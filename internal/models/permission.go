package models

import "time"

// PermissionLevel is a per-course capability grant.
type PermissionLevel string

const (
	PermissionView   PermissionLevel = "view"
	PermissionEdit   PermissionLevel = "edit"
	PermissionManage PermissionLevel = "manage"
)

func (l PermissionLevel) rank() int {
	switch l {
	case PermissionView:
		return 1
	case PermissionEdit:
		return 2
	case PermissionManage:
		return 3
	default:
		return 0
	}
}

// Valid reports whether the level is a known value.
func (l PermissionLevel) Valid() bool { return l.rank() > 0 }

// Covers reports whether holding l satisfies a requirement of required. Manage implies edit implies view.
func (l PermissionLevel) Covers(required PermissionLevel) bool {
	return l.rank() > 0 && l.rank() >= required.rank()
}

// Permission grants a user a level on one course.
type Permission struct {
	UserID    string          `db:"user_id" json:"user_id"`
	CourseID  string          `db:"course_id" json:"course_id"`
	Level     PermissionLevel `db:"level" json:"level"`
	GrantedBy *string         `db:"granted_by" json:"granted_by,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// AccessContext is the caller's capability set, resolved once per request and passed into every core operation.
type AccessContext struct {
	UserID string                     `json:"user_id"`
	Role   UserRole                   `json:"role"`
	Grants map[string]PermissionLevel `json:"grants"`
}

// IsAdmin reports the global override that passes every gate.
func (a *AccessContext) IsAdmin() bool {
	return a != nil && a.Role.IsAdministrative()
}

// HasPermission reports an explicit per-course grant at or above level.
func (a *AccessContext) HasPermission(courseID string, level PermissionLevel) bool {
	if a == nil || a.Grants == nil {
		return false
	}
	granted, ok := a.Grants[courseID]
	return ok && granted.Covers(level)
}

// Owns reports whether the caller is the course's instructor.
func (a *AccessContext) Owns(course *Course) bool {
	return a != nil && course != nil && a.UserID != "" && course.InstructorID == a.UserID
}

// CanView covers catalogue reads of non-public courses.
func (a *AccessContext) CanView(course *Course) bool {
	return a.IsAdmin() || a.Owns(course) || a.HasPermission(course.ID, PermissionView)
}

// CanEdit covers authoring and participant management.
func (a *AccessContext) CanEdit(course *Course) bool {
	return a.IsAdmin() || a.Owns(course) || a.HasPermission(course.ID, PermissionEdit)
}

// CanManage covers archival and permission administration.
func (a *AccessContext) CanManage(course *Course) bool {
	return a.IsAdmin() || a.HasPermission(course.ID, PermissionManage)
}
