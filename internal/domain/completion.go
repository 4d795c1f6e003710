package domain

import "time"

// Completion is one logged instance of completing an activity. Completions
// are immutable once created; they can only be deleted.
type Completion struct {
	ID          string    `json:"id"`
	ActivityID  string    `json:"activityId"`
	UserID      string    `json:"userId"`
	CompletedAt time.Time `json:"completedAt"`
	Note        *string   `json:"note"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DayStatus is the completion state of one activity on one calendar day.
type DayStatus string

const (
	DayCompleted   DayStatus = "completed"
	DayPartial     DayStatus = "partial"
	DayUncompleted DayStatus = "uncompleted"
	DayNone        DayStatus = "none"
)

// StatusForDay derives the day status from a completion count and the
// target for that day. Logging on an unscheduled day (target zero) still
// counts as completed.
func StatusForDay(count, target int) DayStatus {
	switch {
	case count > 0 && (target == 0 || count >= target):
		return DayCompleted
	case count > 0:
		return DayPartial
	case target > 0:
		return DayUncompleted
	default:
		return DayNone
	}
}

// LocalDateKey formats t as the YYYY-MM-DD key of the calendar day it falls
// on in loc. Bucketing is always by local day, never UTC: a completion at
// 23:50 local time lands in that local day regardless of UTC offset.
func LocalDateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// CompletionsFor filters completions down to the given activity, preserving
// order.
func CompletionsFor(completions []Completion, activityID string) []Completion {
	out := make([]Completion, 0)
	for _, c := range completions {
		if c.ActivityID == activityID {
			out = append(out, c)
		}
	}
	return out
}

// GroupByDay buckets completions by their local date key, preserving
// insertion order within each bucket.
func GroupByDay(completions []Completion, loc *time.Location) map[string][]Completion {
	out := make(map[string][]Completion)
	for _, c := range completions {
		key := LocalDateKey(c.CompletedAt, loc)
		out[key] = append(out[key], c)
	}
	return out
}

// CountOnDay counts completions for an activity on the local calendar day
// containing t.
func CountOnDay(completions []Completion, activityID string, t time.Time, loc *time.Location) int {
	key := LocalDateKey(t, loc)
	n := 0
	for _, c := range completions {
		if c.ActivityID == activityID && LocalDateKey(c.CompletedAt, loc) == key {
			n++
		}
	}
	return n
}
