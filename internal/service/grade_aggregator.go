package service

import (
	"math"

	"github.com/noah-isme/lms-core-api/internal/models"
)

// AggregateGrades rolls one learner's submissions up into per-category and overall percentages.
//
// Only graded submissions count; anything else is left out of both numerator and denominator. The overall
// percentage is the weight-normalised mean over categories that have at least one graded submission. Work on
// assignments without a known category lands in a zero-weight bucket, so it only decides the overall figure
// when no weighted category has been graded, in which case the plain points ratio is used.
func AggregateGrades(submissions []models.Submission, assignments []models.Assignment, categories []models.GradeCategory) models.GradeSummary {
	assignmentByID := make(map[string]models.Assignment, len(assignments))
	for _, a := range assignments {
		assignmentByID[a.ID] = a
	}

	order := make([]string, 0, len(categories)+1)
	buckets := make(map[string]*models.CategoryGrade, len(categories)+1)
	for _, c := range categories {
		if _, dup := buckets[c.ID]; dup {
			continue
		}
		order = append(order, c.ID)
		buckets[c.ID] = &models.CategoryGrade{CategoryID: c.ID, Name: c.Name, Weight: c.Weight}
	}

	summary := models.GradeSummary{}
	var totalEarned, totalMax float64
	for _, s := range submissions {
		if !s.IsGraded() {
			if s.Status == models.SubmissionSubmitted {
				summary.PendingCount++
			}
			continue
		}
		assignment, ok := assignmentByID[s.AssignmentID]
		if !ok || assignment.MaxPoints <= 0 {
			continue
		}

		var bucket *models.CategoryGrade
		if assignment.CategoryID != nil {
			bucket = buckets[*assignment.CategoryID]
		}
		if bucket == nil {
			bucket = uncategorizedBucket(buckets, &order)
		}
		bucket.PointsEarned += *s.PointsEarned
		bucket.PointsMax += assignment.MaxPoints
		bucket.GradedCount++
		totalEarned += *s.PointsEarned
		totalMax += assignment.MaxPoints
		summary.GradedCount++
	}

	var weighted, weights float64
	summary.Categories = make([]models.CategoryGrade, 0, len(order))
	for _, id := range order {
		bucket := buckets[id]
		if bucket.GradedCount > 0 {
			pct := bucket.PointsEarned / bucket.PointsMax * 100
			rounded := roundPercentage(pct)
			bucket.Percentage = &rounded
			if bucket.Weight > 0 {
				weighted += bucket.Weight * pct
				weights += bucket.Weight
			}
		}
		summary.Categories = append(summary.Categories, *bucket)
	}

	switch {
	case weights > 0:
		overall := roundPercentage(weighted / weights)
		summary.OverallPercentage = &overall
	case totalMax > 0:
		overall := roundPercentage(totalEarned / totalMax * 100)
		summary.OverallPercentage = &overall
	}
	return summary
}

func uncategorizedBucket(buckets map[string]*models.CategoryGrade, order *[]string) *models.CategoryGrade {
	if b, ok := buckets[models.UncategorizedCategoryID]; ok {
		return b
	}
	b := &models.CategoryGrade{CategoryID: models.UncategorizedCategoryID, Name: "Uncategorized"}
	buckets[models.UncategorizedCategoryID] = b
	*order = append(*order, models.UncategorizedCategoryID)
	return b
}

func roundPercentage(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
