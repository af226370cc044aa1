package service

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	"github.com/noah-isme/lms-core-api/pkg/jobs"
	"github.com/noah-isme/lms-core-api/pkg/mailer"
)

// NotificationJobType is the queue job type handled by NotificationService.
const NotificationJobType = "enrollment_notification"

// NotificationKind selects the message template.
type NotificationKind string

const (
	NotifyWelcome           NotificationKind = "welcome"
	NotifyInstructorEnroll  NotificationKind = "instructor_enrollment"
	NotifyApprovalRequested NotificationKind = "approval_requested"
	NotifyRequestReviewed   NotificationKind = "request_reviewed"
)

// Notification is the queued payload. Recipients are resolved when the job runs.
type Notification struct {
	Kind         NotificationKind
	RecipientID  string
	SubjectID    string
	CourseID     string
	CourseTitle  string
	Body         *string
	Approved     bool
	ReviewerNote *string
}

type notificationQueue interface {
	Register(jobType string, handler jobs.Handler)
	TryEnqueue(job jobs.Job) error
}

type userDirectory interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
}

// NotificationService queues enrollment emails and delivers them from the worker pool. Enqueue never blocks;
// a saturated queue surfaces as an error the caller records as a warning.
type NotificationService struct {
	queue  notificationQueue
	sender mailer.Sender
	users  userDirectory
	logger *zap.Logger
}

// NewNotificationService wires the delivery handler into queue.
func NewNotificationService(queue notificationQueue, sender mailer.Sender, users userDirectory, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{queue: queue, sender: sender, users: users, logger: logger}
	queue.Register(NotificationJobType, svc.handle)
	return svc
}

// NotifyWelcome greets a newly admitted learner.
func (s *NotificationService) NotifyWelcome(ctx context.Context, course *models.Course, method *models.EnrollmentMethod, userID string) error {
	return s.enqueue(Notification{
		Kind:        NotifyWelcome,
		RecipientID: userID,
		SubjectID:   userID,
		CourseID:    course.ID,
		CourseTitle: course.Title,
		Body:        method.WelcomeMessage,
	})
}

// NotifyInstructor tells the course owner about a new enrollment.
func (s *NotificationService) NotifyInstructor(ctx context.Context, course *models.Course, userID string) error {
	return s.enqueue(Notification{
		Kind:        NotifyInstructorEnroll,
		RecipientID: course.InstructorID,
		SubjectID:   userID,
		CourseID:    course.ID,
		CourseTitle: course.Title,
	})
}

// NotifyApprovalRequested asks the course owner to review a request.
func (s *NotificationService) NotifyApprovalRequested(ctx context.Context, course *models.Course, request *models.EnrollmentRequest) error {
	return s.enqueue(Notification{
		Kind:        NotifyApprovalRequested,
		RecipientID: course.InstructorID,
		SubjectID:   request.UserID,
		CourseID:    course.ID,
		CourseTitle: course.Title,
		Body:        request.Message,
	})
}

// NotifyRequestReviewed tells the learner how their request was decided.
func (s *NotificationService) NotifyRequestReviewed(ctx context.Context, course *models.Course, request *models.EnrollmentRequest) error {
	return s.enqueue(Notification{
		Kind:         NotifyRequestReviewed,
		RecipientID:  request.UserID,
		SubjectID:    request.UserID,
		CourseID:     course.ID,
		CourseTitle:  course.Title,
		Approved:     request.Status == models.RequestStatusApproved,
		ReviewerNote: request.Note,
	})
}

func (s *NotificationService) enqueue(n Notification) error {
	if n.RecipientID == "" {
		return fmt.Errorf("notification %s has no recipient", n.Kind)
	}
	return s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: NotificationJobType, Payload: n})
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	users, err := s.users.FindByIDs(ctx, []string{n.RecipientID, n.SubjectID})
	if err != nil {
		return err
	}
	recipient, ok := users[n.RecipientID]
	if !ok || recipient.Email == "" {
		s.logger.Warn("notification recipient not found", zap.String("user_id", n.RecipientID), zap.String("kind", string(n.Kind)))
		return nil
	}
	msg := renderNotification(n, recipient, users[n.SubjectID])
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s notification: %w", n.Kind, err)
	}
	return nil
}

func renderNotification(n Notification, recipient, subject models.User) mailer.Message {
	msg := mailer.Message{To: []mail.Address{{Name: recipient.FullName, Address: recipient.Email}}}
	subjectName := subject.FullName
	if subjectName == "" {
		subjectName = "A learner"
	}
	switch n.Kind {
	case NotifyWelcome:
		msg.Subject = fmt.Sprintf("Welcome to %s", n.CourseTitle)
		msg.TextBody = fmt.Sprintf("Hi %s,\n\nYou are now enrolled in %s.", recipient.FullName, n.CourseTitle)
		if n.Body != nil && *n.Body != "" {
			msg.TextBody += "\n\n" + *n.Body
		}
	case NotifyInstructorEnroll:
		msg.Subject = fmt.Sprintf("New enrollment in %s", n.CourseTitle)
		msg.TextBody = fmt.Sprintf("%s enrolled in %s.", subjectName, n.CourseTitle)
	case NotifyApprovalRequested:
		msg.Subject = fmt.Sprintf("Enrollment request for %s", n.CourseTitle)
		msg.TextBody = fmt.Sprintf("%s asked to join %s and is waiting for your review.", subjectName, n.CourseTitle)
		if n.Body != nil && *n.Body != "" {
			msg.TextBody += "\n\nMessage: " + *n.Body
		}
	case NotifyRequestReviewed:
		verdict := "declined"
		if n.Approved {
			verdict = "approved"
		}
		msg.Subject = fmt.Sprintf("Your request for %s was %s", n.CourseTitle, verdict)
		msg.TextBody = fmt.Sprintf("Hi %s,\n\nYour enrollment request for %s was %s.", recipient.FullName, n.CourseTitle, verdict)
		if n.ReviewerNote != nil && *n.ReviewerNote != "" {
			msg.TextBody += "\n\nNote: " + *n.ReviewerNote
		}
	}
	return msg
}
