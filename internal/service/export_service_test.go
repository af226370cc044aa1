package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-core-api/internal/models"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/export"
)

type participantPager struct {
	rows    []models.EnrollmentDetail
	filters []models.EnrollmentFilter
}

func (p *participantPager) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	p.filters = append(p.filters, filter)
	var matched []models.EnrollmentDetail
	for _, row := range p.rows {
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		if filter.Role != "" && row.CourseRole != filter.Role {
			continue
		}
		matched = append(matched, row)
	}
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(matched) {
		return nil, len(matched), nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func participant(id string, role models.CourseRole, status models.EnrollmentStatus) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:                 "enr-" + id,
			UserID:             id,
			CourseID:           "course-1",
			Status:             status,
			CourseRole:         role,
			ProgressPercentage: 40,
			EnrolledAt:         lifecycleNow,
		},
		UserName:  "User " + id,
		UserEmail: id + "@example.com",
	}
}

func newExportFixture(rows ...models.EnrollmentDetail) (*participantPager, *ExportService) {
	course := publishedCourse()
	course.Title = "Intro to Go!"
	pager := &participantPager{rows: rows}
	grades, _, _ := newGradeFixture()
	svc := NewExportService(newCourseStoreStub(course), pager, grades, zap.NewNop())
	svc.now = func() time.Time { return lifecycleNow }
	return pager, svc
}

func TestRosterExportPagesThroughParticipants(t *testing.T) {
	rows := make([]models.EnrollmentDetail, 0, 230)
	for i := 0; i < 230; i++ {
		rows = append(rows, participant(fmt.Sprintf("u%03d", i), models.CourseRoleStudent, models.EnrollmentStatusActive))
	}
	pager, svc := newExportFixture(rows...)

	file, err := svc.Roster(context.Background(), instructorAccess("inst-1"), "course-1", export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "intro-to-go-roster-"+lifecycleNow.Format("20060102")+".csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Len(t, pager.filters, 3)
	assert.Equal(t, "user_name", pager.filters[0].SortBy)

	records, err := csv.NewReader(strings.NewReader(string(file.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 231)
	assert.Equal(t, []string{"Name", "Email", "Role", "Status", "Progress", "Enrolled At"}, records[0])
	assert.Equal(t, "User u000", records[1][0])
	assert.Equal(t, "40%", records[1][4])
}

func TestGradebookExportUsesAggregatedGrades(t *testing.T) {
	_, svc := newExportFixture(
		participant("learner-1", models.CourseRoleStudent, models.EnrollmentStatusActive),
		participant("learner-2", models.CourseRoleStudent, models.EnrollmentStatusActive),
		participant("ta-1", models.CourseRoleTeachingAssistant, models.EnrollmentStatusActive),
		participant("gone", models.CourseRoleStudent, models.EnrollmentStatusDropped),
	)

	file, err := svc.Gradebook(context.Background(), adminAccess(), "course-1", export.FormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(file.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Name", "Email", "Homework", "Exams", "Overall"}, records[0])
	assert.Equal(t, []string{"User learner-1", "learner-1@example.com", "85.00", "-", "85.00"}, records[1])
	assert.Equal(t, []string{"User learner-2", "learner-2@example.com", "-", "-", "-"}, records[2])
}

func TestExportRequiresViewPermission(t *testing.T) {
	_, svc := newExportFixture()

	_, err := svc.Roster(context.Background(), learnerAccess("learner-1"), "course-1", export.FormatPDF)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(err))

	file, err := svc.Roster(context.Background(), instructorAccess("inst-1"), "course-1", export.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "intro-to-go", slugify("  Intro to Go! "))
	assert.Equal(t, "course", slugify("!!!"))
	assert.Equal(t, "a-b", slugify("A -- B"))
}
