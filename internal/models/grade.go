package models

import "time"

// SubmissionStatus tracks where a submission is in the grading flow.
type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
)

// UncategorizedCategoryID keys the implicit bucket for assignments without a category.
const UncategorizedCategoryID = "uncategorized"

// GradeCategory groups assignments under one weight.
type GradeCategory struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Name      string    `db:"name" json:"name"`
	Weight    float64   `db:"weight" json:"weight"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Assignment is a gradable item of a course.
type Assignment struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	CategoryID *string   `db:"category_id" json:"category_id,omitempty"`
	Title      string    `db:"title" json:"title"`
	MaxPoints  float64   `db:"max_points" json:"max_points"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Submission is one learner's work on an assignment.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	UserID       string           `db:"user_id" json:"user_id"`
	Status       SubmissionStatus `db:"status" json:"status"`
	PointsEarned *float64         `db:"points_earned" json:"points_earned,omitempty"`
	Feedback     *string          `db:"feedback" json:"feedback,omitempty"`
	GradedBy     *string          `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt     *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// IsGraded reports whether the submission counts toward a grade.
func (s *Submission) IsGraded() bool {
	return s.Status == SubmissionGraded && s.PointsEarned != nil
}

// CategoryGrade is the per-category roll-up of graded work.
type CategoryGrade struct {
	CategoryID   string   `json:"category_id"`
	Name         string   `json:"name"`
	Weight       float64  `json:"weight"`
	PointsEarned float64  `json:"points_earned"`
	PointsMax    float64  `json:"points_max"`
	Percentage   *float64 `json:"percentage"`
	GradedCount  int      `json:"graded_count"`
}

// GradeSummary is a learner's aggregated standing in one course.
type GradeSummary struct {
	CourseID          string          `json:"course_id"`
	UserID            string          `json:"user_id"`
	Categories        []CategoryGrade `json:"categories"`
	OverallPercentage *float64        `json:"overall_percentage"`
	GradedCount       int             `json:"graded_count"`
	PendingCount      int             `json:"pending_count"`
	GeneratedAt       time.Time       `json:"generated_at"`
}
