package service

import (
	"strings"
	"time"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// methodKind is the behaviour-carrying view of an enrollment method type.
type methodKind interface {
	methodType() models.EnrollmentMethodType
}

type selfKind struct {
	requiresApproval bool
}

type keyKind struct {
	key              string
	caseSensitive    bool
	requiresApproval bool
}

type approvalKind struct {
	message *string
}

// staffKind covers manual, bulk and cohort methods: learners cannot invoke them.
type staffKind struct {
	kind models.EnrollmentMethodType
}

func (selfKind) methodType() models.EnrollmentMethodType     { return models.MethodSelf }
func (keyKind) methodType() models.EnrollmentMethodType      { return models.MethodKey }
func (approvalKind) methodType() models.EnrollmentMethodType { return models.MethodApproval }
func (k staffKind) methodType() models.EnrollmentMethodType  { return k.kind }

func kindOf(method *models.EnrollmentMethod) methodKind {
	switch method.MethodType {
	case models.MethodSelf:
		return selfKind{requiresApproval: method.RequiresApproval}
	case models.MethodKey:
		key := ""
		if method.EnrollmentKey != nil {
			key = *method.EnrollmentKey
		}
		return keyKind{key: key, caseSensitive: method.KeyCaseSensitive, requiresApproval: method.RequiresApproval}
	case models.MethodApproval:
		return approvalKind{message: method.ApprovalMessage}
	default:
		return staffKind{kind: method.MethodType}
	}
}

// EnrollmentAttempt carries what the learner submitted alongside the method choice.
type EnrollmentAttempt struct {
	Key     string
	Message *string
}

// Decision is the resolver's verdict before any storage is touched.
type Decision struct {
	Code    models.EnrollmentOutcomeCode
	Message string
}

// Admit reports whether the caller should attempt the atomic admission.
func (d Decision) Admit() bool { return d.Code == models.OutcomeEnrolled }

// Defer reports whether an approval request should be filed instead.
func (d Decision) Defer() bool { return d.Code == models.OutcomePendingApproval }

// CheckAvailability runs the method-level gate. The first failing check wins.
func CheckAvailability(method *models.EnrollmentMethod, now time.Time) (models.EnrollmentOutcomeCode, bool) {
	switch {
	case !method.IsEnabled:
		return models.OutcomeMethodDisabled, false
	case method.MaxEnrollments != nil && method.CurrentEnrollments >= *method.MaxEnrollments:
		return models.OutcomeCapacityExceeded, false
	case method.EnrollmentStartDate != nil && now.Before(*method.EnrollmentStartDate):
		return models.OutcomeNotYetOpen, false
	case method.EnrollmentEndDate != nil && now.After(*method.EnrollmentEndDate):
		return models.OutcomeWindowClosed, false
	}
	return "", true
}

// ResolveEnrollment evaluates a learner's attempt on method at now. The capacity read here is advisory; the
// storage layer repeats it atomically when admitting.
func ResolveEnrollment(method *models.EnrollmentMethod, attempt EnrollmentAttempt, now time.Time) Decision {
	if code, ok := CheckAvailability(method, now); !ok {
		return Decision{Code: code, Message: outcomeMessage(code)}
	}

	switch kind := kindOf(method).(type) {
	case selfKind:
		if kind.requiresApproval {
			return pendingDecision(method.ApprovalMessage)
		}
		return Decision{Code: models.OutcomeEnrolled}
	case keyKind:
		if !keyMatches(kind, attempt.Key) {
			return Decision{Code: models.OutcomeInvalidKey, Message: outcomeMessage(models.OutcomeInvalidKey)}
		}
		if kind.requiresApproval {
			return pendingDecision(method.ApprovalMessage)
		}
		return Decision{Code: models.OutcomeEnrolled}
	case approvalKind:
		return pendingDecision(kind.message)
	default:
		return Decision{Code: models.OutcomeForbidden, Message: sprintf("%s enrollment is managed by course staff", kind.methodType())}
	}
}

func keyMatches(kind keyKind, submitted string) bool {
	if kind.key == "" {
		return false
	}
	if kind.caseSensitive {
		return submitted == kind.key
	}
	return strings.EqualFold(submitted, kind.key)
}

func pendingDecision(message *string) Decision {
	d := Decision{Code: models.OutcomePendingApproval, Message: outcomeMessage(models.OutcomePendingApproval)}
	if message != nil && strings.TrimSpace(*message) != "" {
		d.Message = *message
	}
	return d
}

func outcomeMessage(code models.EnrollmentOutcomeCode) string {
	switch code {
	case models.OutcomeEnrolled:
		return "enrolled"
	case models.OutcomeMethodDisabled:
		return "enrollment method is disabled"
	case models.OutcomeCapacityExceeded:
		return "enrollment capacity reached"
	case models.OutcomeNotYetOpen:
		return "enrollment has not opened yet"
	case models.OutcomeWindowClosed:
		return "enrollment window has closed"
	case models.OutcomeInvalidKey:
		return "invalid enrollment key"
	case models.OutcomeAlreadyEnrolled:
		return "already enrolled in course"
	case models.OutcomePendingApproval:
		return "enrollment request awaits approval"
	case models.OutcomeForbidden:
		return "not allowed to enroll with this method"
	}
	return string(code)
}
