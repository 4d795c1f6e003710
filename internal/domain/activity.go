// Package domain defines the business logic for the habit service.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrCompletionNotFound is returned when a completion cannot be located.
	ErrCompletionNotFound = errors.New("completion not found")
	// ErrMemberNotFound is returned when an activity member cannot be located.
	ErrMemberNotFound = errors.New("activity member not found")
	// ErrForbidden is returned when the caller is not allowed to touch the record.
	ErrForbidden = errors.New("forbidden")
)

// ActivityType classifies who an activity is tracked with.
type ActivityType string

const (
	ActivityPersonal ActivityType = "personal"
	ActivityGroup    ActivityType = "group"
	ActivityShared   ActivityType = "shared"
)

// Activity is a recurring trackable task with a schedule and target count.
type Activity struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description,omitempty"`
	Type        ActivityType `json:"type"`
	Schedule    Schedule     `json:"schedule"`
	SortOrder   int          `json:"sortOrder"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	ArchivedAt  *time.Time   `json:"archivedAt,omitempty"`
}

// Archived reports whether the activity has been archived. Archived
// activities are excluded from due-today evaluation and default listings.
func (a Activity) Archived() bool {
	return a.ArchivedAt != nil
}

// IsTargetMet reports whether the activity counts as done for the day
// containing now. An activity not scheduled that day is met as soon as it
// has any completion; a scheduled one needs the full target.
func (a Activity) IsTargetMet(todayCount int, now time.Time) bool {
	if !a.Schedule.ScheduledAt(now) {
		return todayCount > 0
	}
	return todayCount >= a.Schedule.Target
}
