package models

import "time"

// Grouping bundles groups of a course.
type Grouping struct {
	ID       string `db:"id" json:"id"`
	CourseID string `db:"course_id" json:"course_id"`
	Name     string `db:"name" json:"name"`
}

// Group is a capacity-checked subset of course members.
type Group struct {
	ID             string    `db:"id" json:"id"`
	CourseID       string    `db:"course_id" json:"course_id"`
	GroupingID     *string   `db:"grouping_id" json:"grouping_id,omitempty"`
	Name           string    `db:"name" json:"name"`
	MaxMembers     *int      `db:"max_members" json:"max_members,omitempty"`
	CurrentMembers int       `db:"current_members" json:"current_members"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// GroupAssignment reports what happened when a user was placed into a group.
type GroupAssignment string

const (
	GroupAssigned      GroupAssignment = "assigned"
	GroupAlreadyMember GroupAssignment = "already_member"
	GroupFull          GroupAssignment = "full"
	GroupMissing       GroupAssignment = "missing"
)
