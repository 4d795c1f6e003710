package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ScheduleKind discriminates the schedule union.
type ScheduleKind string

const (
	ScheduleDaily  ScheduleKind = "daily"
	ScheduleWeekly ScheduleKind = "weekly"
)

// ErrInvalidSchedule is returned when a schedule violates its invariants.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Schedule describes when an activity is due and how many completions count
// as done on a due day. Daily schedules are due every day; weekly schedules
// only on the listed weekdays.
type Schedule struct {
	Kind   ScheduleKind
	Days   []time.Weekday // weekly only; sorted, no duplicates, never empty
	Target int            // completions per due day, >= 1
}

// Daily builds a schedule due every day.
func Daily(target int) Schedule {
	return Schedule{Kind: ScheduleDaily, Target: target}
}

// Weekly builds a schedule due on the given weekdays.
func Weekly(target int, days ...time.Weekday) Schedule {
	return Schedule{Kind: ScheduleWeekly, Days: normalizeDays(days), Target: target}
}

// Validate enforces the schedule invariants: a known kind, a target of at
// least one, and for weekly schedules a non-empty set of valid weekdays.
func (s Schedule) Validate() error {
	if s.Target < 1 {
		return fmt.Errorf("%w: targetCompletions must be >= 1", ErrInvalidSchedule)
	}
	switch s.Kind {
	case ScheduleDaily:
		if len(s.Days) != 0 {
			return fmt.Errorf("%w: daily schedule must not list days", ErrInvalidSchedule)
		}
	case ScheduleWeekly:
		if len(s.Days) == 0 {
			return fmt.Errorf("%w: weekly schedule requires at least one day", ErrInvalidSchedule)
		}
		for _, d := range s.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: day %d out of range", ErrInvalidSchedule, d)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, s.Kind)
	}
	return nil
}

// ScheduledOn reports whether the schedule is due on the given weekday.
func (s Schedule) ScheduledOn(day time.Weekday) bool {
	if s.Kind == ScheduleWeekly {
		for _, d := range s.Days {
			if d == day {
				return true
			}
		}
		return false
	}
	return true
}

// ScheduledAt reports whether the schedule is due on the local calendar day
// containing t.
func (s Schedule) ScheduledAt(t time.Time) bool {
	return s.ScheduledOn(t.Weekday())
}

// TargetFor returns the completion target for the given weekday, zero when
// the schedule is not due that day.
func (s Schedule) TargetFor(day time.Weekday) int {
	if !s.ScheduledOn(day) {
		return 0
	}
	return s.Target
}

type scheduleJSON struct {
	Type              ScheduleKind `json:"type"`
	Days              []int        `json:"days,omitempty"`
	TargetCompletions int          `json:"targetCompletions"`
}

// MarshalJSON encodes the union with its "type" discriminant.
func (s Schedule) MarshalJSON() ([]byte, error) {
	out := scheduleJSON{Type: s.Kind, TargetCompletions: s.Target}
	if s.Kind == ScheduleWeekly {
		out.Days = make([]int, len(s.Days))
		for i, d := range s.Days {
			out.Days[i] = int(d)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates the union, normalizing the day list.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var raw scheduleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded := Schedule{Kind: raw.Type, Target: raw.TargetCompletions}
	if raw.Type == ScheduleWeekly {
		days := make([]time.Weekday, len(raw.Days))
		for i, d := range raw.Days {
			days[i] = time.Weekday(d)
		}
		decoded.Days = normalizeDays(days)
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}

func normalizeDays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
