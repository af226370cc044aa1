package service

import (
	"fmt"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
)

// OutcomeError translates a refused enrollment outcome into its HTTP-aware error. Successful outcomes map to nil.
func OutcomeError(outcome *models.EnrollmentOutcome) *appErrors.Error {
	if outcome == nil || outcome.Code.Succeeded() {
		return nil
	}
	var base *appErrors.Error
	switch outcome.Code {
	case models.OutcomeMethodDisabled:
		base = appErrors.ErrMethodDisabled
	case models.OutcomeCapacityExceeded:
		base = appErrors.ErrCapacityExceeded
	case models.OutcomeNotYetOpen:
		base = appErrors.ErrNotYetOpen
	case models.OutcomeWindowClosed:
		base = appErrors.ErrWindowClosed
	case models.OutcomeInvalidKey:
		base = appErrors.ErrInvalidKey
	case models.OutcomeAlreadyEnrolled:
		base = appErrors.ErrAlreadyEnrolled
	case models.OutcomeForbidden:
		base = appErrors.ErrForbidden
	default:
		base = appErrors.ErrInternal
	}
	return appErrors.Clone(base, outcome.Message)
}

func outcomeFor(code models.EnrollmentOutcomeCode) *models.EnrollmentOutcome {
	return &models.EnrollmentOutcome{Code: code, Message: outcomeMessage(code)}
}

func admissionOutcome(status models.AdmissionStatus) models.EnrollmentOutcomeCode {
	switch status {
	case models.AdmissionAdmitted:
		return models.OutcomeEnrolled
	case models.AdmissionAlreadyActive:
		return models.OutcomeAlreadyEnrolled
	default:
		return models.OutcomeCapacityExceeded
	}
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
