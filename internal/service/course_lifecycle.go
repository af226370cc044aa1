package service

import (
	"strings"
	"time"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

// Lifecycle actions, also used as metric and audit labels.
const (
	LifecycleSubmit  = "submit"
	LifecycleApprove = "approve"
	LifecycleReject  = "reject"
	LifecyclePublish = "publish"
	LifecycleArchive = "archive"
	LifecycleRestore = "restore"
	LifecycleDestroy = "destroy"
)

// The functions below are the course state machine. Each checks authority first, then the source state, and
// only then applies its effects to course in place. They never touch storage.

// SubmitForApproval queues a draft or rejected course for review. Only unpublished drafts can enter the
// queue, so a rejection never lands on a live course.
func SubmitForApproval(course *models.Course, access *models.AccessContext, now time.Time) error {
	if !access.CanEdit(course) {
		return appErrors.Clone(appErrors.ErrForbidden, "edit permission required to submit course")
	}
	if course.Status != models.CourseStatusDraft {
		return invalidTransition("course is %s, only draft courses can be submitted", course.Status)
	}
	switch course.ApprovalStatus {
	case models.ApprovalStatusDraft, models.ApprovalStatusRejected:
	default:
		return invalidTransition("course is %s and cannot be submitted", course.ApprovalStatus)
	}
	course.ApprovalStatus = models.ApprovalStatusPendingApproval
	course.SubmittedForApprovalAt = &now
	course.ApprovedAt = nil
	course.ApprovedBy = nil
	course.RejectionReason = nil
	return nil
}

// Approve accepts a pending course.
func Approve(course *models.Course, access *models.AccessContext, now time.Time) error {
	if !access.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin capability required to approve course")
	}
	if course.ApprovalStatus != models.ApprovalStatusPendingApproval {
		return invalidTransition("course is %s, only pending courses can be approved", course.ApprovalStatus)
	}
	actor := access.UserID
	course.ApprovalStatus = models.ApprovalStatusApproved
	course.ApprovedAt = &now
	course.ApprovedBy = &actor
	course.RejectionReason = nil
	return nil
}

// Reject turns a pending course down. The rejecting admin is stamped into the approval fields.
func Reject(course *models.Course, access *models.AccessContext, reason string, now time.Time) error {
	if !access.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin capability required to reject course")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	if course.ApprovalStatus != models.ApprovalStatusPendingApproval {
		return invalidTransition("course is %s, only pending courses can be rejected", course.ApprovalStatus)
	}
	actor := access.UserID
	course.ApprovalStatus = models.ApprovalStatusRejected
	course.RejectionReason = &reason
	course.ApprovedAt = &now
	course.ApprovedBy = &actor
	return nil
}

// Publish makes a draft course live. Non-admins need the course to be approved first. Admins may skip the
// queue for a course that was never submitted, but a pending or rejected course stays unpublished for everyone.
func Publish(course *models.Course, access *models.AccessContext) error {
	if !access.CanEdit(course) {
		return appErrors.Clone(appErrors.ErrForbidden, "edit permission required to publish course")
	}
	if course.Status != models.CourseStatusDraft {
		return invalidTransition("course is %s, only draft courses can be published", course.Status)
	}
	switch course.ApprovalStatus {
	case models.ApprovalStatusApproved:
	case models.ApprovalStatusDraft:
		if !access.IsAdmin() {
			return invalidTransition("course approval is %s, it must be approved before publishing", course.ApprovalStatus)
		}
	default:
		return invalidTransition("course approval is %s, it must be approved before publishing", course.ApprovalStatus)
	}
	course.Status = models.CourseStatusPublished
	return nil
}

// Archive retires a draft or published course and remembers where it came from.
func Archive(course *models.Course, access *models.AccessContext) error {
	if !access.CanManage(course) {
		return appErrors.Clone(appErrors.ErrForbidden, "manage permission required to archive course")
	}
	if course.Status == models.CourseStatusArchived {
		return invalidTransition("course is already archived")
	}
	previous := course.Status
	course.Status = models.CourseStatusArchived
	course.ArchivedFromStatus = &previous
	return nil
}

// Restore returns an archived course to the status it was archived from, draft when unknown.
func Restore(course *models.Course, access *models.AccessContext) error {
	if !access.CanEdit(course) {
		return appErrors.Clone(appErrors.ErrForbidden, "edit permission required to restore course")
	}
	if course.Status != models.CourseStatusArchived {
		return invalidTransition("course is %s, only archived courses can be restored", course.Status)
	}
	target := models.CourseStatusDraft
	if course.ArchivedFromStatus != nil && *course.ArchivedFromStatus != models.CourseStatusArchived {
		target = *course.ArchivedFromStatus
	}
	course.Status = target
	course.ArchivedFromStatus = nil
	return nil
}

// CanDestroy gates hard deletion to admins and the owning instructor.
func CanDestroy(course *models.Course, access *models.AccessContext) error {
	if access.IsAdmin() || access.Owns(course) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the owner or an admin can delete a course")
}

func invalidTransition(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrInvalidTransition, sprintf(format, args...))
}
