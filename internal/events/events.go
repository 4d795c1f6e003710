// Package events defines the payloads published by the habit service.
package events

import "time"

// Event type identifiers used as outbox event_type values and Kafka headers.
const (
	TypeActivityCreated   = "activity.created"
	TypeActivityArchived  = "activity.archived"
	TypeCompletionLogged  = "completion.logged"
	TypeCompletionDeleted = "completion.deleted"
)

// ActivityCreated is emitted when a new activity is accepted.
type ActivityCreated struct {
	ActivityID   string    `json:"activity_id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	ActivityType string    `json:"activity_type"`
	ScheduleKind string    `json:"schedule_kind"`
	Target       int       `json:"target_completions"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityArchived tracks the archive/unarchive transitions of an activity.
type ActivityArchived struct {
	ActivityID string    `json:"activity_id"`
	Archived   bool      `json:"archived"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CompletionLogged is emitted when a completion is recorded.
type CompletionLogged struct {
	CompletionID string    `json:"completion_id"`
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	CompletedAt  time.Time `json:"completed_at"`
	HasNote      bool      `json:"has_note"`
}

// CompletionDeleted is emitted when a logged completion is removed.
type CompletionDeleted struct {
	CompletionID string    `json:"completion_id"`
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}
