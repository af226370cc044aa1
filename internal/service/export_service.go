package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/export"
)

const exportPageSize = 100

type participantLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

// ExportFile is a rendered document ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders course rosters and gradebooks.
type ExportService struct {
	courses     courseReader
	enrollments participantLister
	grades      gradeStore
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs the service.
func NewExportService(courses courseReader, enrollments participantLister, grades gradeStore, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		courses:     courses,
		enrollments: enrollments,
		grades:      grades,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Roster renders every participant of the course.
func (s *ExportService) Roster(ctx context.Context, access *models.AccessContext, courseID string, format export.Format) (*ExportFile, error) {
	course, err := s.loadViewable(ctx, access, courseID)
	if err != nil {
		return nil, err
	}
	participants, err := s.participants(ctx, models.EnrollmentFilter{CourseID: course.ID})
	if err != nil {
		return nil, err
	}
	table := export.Table{
		Title:   course.Title + " roster",
		Columns: []string{"Name", "Email", "Role", "Status", "Progress", "Enrolled At"},
		Rows:    make([][]string, 0, len(participants)),
	}
	for _, p := range participants {
		table.Rows = append(table.Rows, []string{
			p.UserName,
			p.UserEmail,
			string(p.CourseRole),
			string(p.Status),
			fmt.Sprintf("%.0f%%", p.ProgressPercentage),
			p.EnrolledAt.Format(time.RFC3339),
		})
	}
	return s.render(course, "roster", format, table)
}

// Gradebook renders each active student's category and overall percentages.
func (s *ExportService) Gradebook(ctx context.Context, access *models.AccessContext, courseID string, format export.Format) (*ExportFile, error) {
	course, err := s.loadViewable(ctx, access, courseID)
	if err != nil {
		return nil, err
	}
	students, err := s.participants(ctx, models.EnrollmentFilter{
		CourseID: course.ID,
		Status:   models.EnrollmentStatusActive,
		Role:     models.CourseRoleStudent,
	})
	if err != nil {
		return nil, err
	}
	categories, err := s.grades.ListCategories(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade categories")
	}
	assignments, err := s.grades.ListAssignments(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}

	columns := []string{"Name", "Email"}
	for _, c := range categories {
		columns = append(columns, c.Name)
	}
	columns = append(columns, "Overall")
	table := export.Table{Title: course.Title + " gradebook", Columns: columns}

	for _, student := range students {
		submissions, err := s.grades.ListSubmissions(ctx, course.ID, student.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
		}
		summary := AggregateGrades(submissions, assignments, categories)
		byCategory := make(map[string]*float64, len(summary.Categories))
		for _, c := range summary.Categories {
			byCategory[c.CategoryID] = c.Percentage
		}
		row := []string{student.UserName, student.UserEmail}
		for _, c := range categories {
			row = append(row, formatPercentage(byCategory[c.ID]))
		}
		table.Rows = append(table.Rows, append(row, formatPercentage(summary.OverallPercentage)))
	}
	return s.render(course, "gradebook", format, table)
}

func (s *ExportService) render(course *models.Course, kind string, format export.Format, table export.Table) (*ExportFile, error) {
	data, err := export.Render(format, table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Debug("export rendered", zap.String("course_id", course.ID), zap.String("kind", kind), zap.Int("rows", len(table.Rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("%s-%s-%s.%s", slugify(course.Title), kind, s.now().Format("20060102"), format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

func (s *ExportService) loadViewable(ctx context.Context, access *models.AccessContext, courseID string) (*models.Course, error) {
	course, err := loadCourse(ctx, s.courses, courseID)
	if err != nil {
		return nil, err
	}
	if !access.CanView(course) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "view permission required")
	}
	return course, nil
}

func (s *ExportService) participants(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	filter.PageSize = exportPageSize
	filter.SortBy = "user_name"
	filter.SortOrder = "asc"
	var all []models.EnrollmentDetail
	for page := 1; ; page++ {
		filter.Page = page
		items, total, err := s.enrollments.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list participants")
		}
		all = append(all, items...)
		if len(items) < exportPageSize || len(all) >= total {
			return all, nil
		}
	}
}

func formatPercentage(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "course"
	}
	return slug
}
