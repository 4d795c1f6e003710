package domain

import (
	"sort"
	"time"
)

// EnrichedActivity is an activity joined with its completions, bucketed by
// local calendar day. It is derived on every read and never persisted.
type EnrichedActivity struct {
	Activity
	CompletionsByDate map[string][]Completion `json:"completionsByDate"`
}

// Enrich joins an activity with its completions grouped by local date key.
func Enrich(a Activity, completions []Completion, loc *time.Location) EnrichedActivity {
	return EnrichedActivity{
		Activity:          a,
		CompletionsByDate: GroupByDay(CompletionsFor(completions, a.ID), loc),
	}
}

// EnrichAll enriches every activity against the shared completion set.
func EnrichAll(activities []Activity, completions []Completion, loc *time.Location) []EnrichedActivity {
	out := make([]EnrichedActivity, 0, len(activities))
	for _, a := range activities {
		out = append(out, Enrich(a, completions, loc))
	}
	return out
}

// TodayCount returns the number of completions on the local day containing now.
func (e EnrichedActivity) TodayCount(now time.Time, loc *time.Location) int {
	return len(e.CompletionsByDate[LocalDateKey(now, loc)])
}

// Display sort tiers, lowest first.
const (
	tierDueUnmet     = 0 // scheduled today, target not yet met
	tierNotScheduled = 1 // not scheduled today, any completion state
	tierMet          = 2 // scheduled today, target met
)

// MetTracker remembers the order in which activities transitioned into the
// met state so that the met tier sorts most-recently-completed first. The
// tracking is scoped to the lifetime of the view: once an activity drops
// back to not-met its slot is cleared.
type MetTracker struct {
	seq   int
	order map[string]int
}

// NewMetTracker builds an empty tracker.
func NewMetTracker() *MetTracker {
	return &MetTracker{order: make(map[string]int)}
}

// Observe records a met/not-met observation for an activity. The sequence
// number is assigned on the not-met to met transition only.
func (t *MetTracker) Observe(activityID string, met bool) {
	if !met {
		delete(t.order, activityID)
		return
	}
	if _, ok := t.order[activityID]; !ok {
		t.order[activityID] = t.seq
		t.seq++
	}
}

func (t *MetTracker) orderOf(activityID string) int {
	return t.order[activityID]
}

// SortForDisplay orders active activities for the default listing:
// due-today-and-unmet first, then not-scheduled-today, then met. The met
// tier is ordered most-recently-met first via the tracker; the other tiers
// by SortOrder ascending, with creation time descending then ID as the
// stable fallback. Archived activities are dropped. The input is not
// modified.
func SortForDisplay(items []EnrichedActivity, tracker *MetTracker, now time.Time, loc *time.Location) []EnrichedActivity {
	active := make([]EnrichedActivity, 0, len(items))
	for _, e := range items {
		if e.Archived() {
			continue
		}
		active = append(active, e)
	}

	tiers := make(map[string]int, len(active))
	for _, e := range active {
		count := e.TodayCount(now, loc)
		scheduled := e.Schedule.ScheduledAt(now)
		met := e.IsTargetMet(count, now)
		tracker.Observe(e.ID, met)
		switch {
		case !scheduled:
			tiers[e.ID] = tierNotScheduled
		case met:
			tiers[e.ID] = tierMet
		default:
			tiers[e.ID] = tierDueUnmet
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if tiers[a.ID] != tiers[b.ID] {
			return tiers[a.ID] < tiers[b.ID]
		}
		if tiers[a.ID] == tierMet {
			return tracker.orderOf(a.ID) > tracker.orderOf(b.ID)
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return active
}
