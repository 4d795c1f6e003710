package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusForDay(t *testing.T) {
	cases := []struct {
		count, target int
		want          DayStatus
	}{
		{0, 0, DayNone},
		{0, 3, DayUncompleted},
		{2, 3, DayPartial},
		{3, 3, DayCompleted},
		{5, 3, DayCompleted}, // over-completion
		{1, 0, DayCompleted}, // logged on an unscheduled day
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusForDay(tc.count, tc.target), "count=%d target=%d", tc.count, tc.target)
	}
}

func TestIsTargetMet(t *testing.T) {
	// 2025-11-04 is a Tuesday.
	tuesday := time.Date(2025, 11, 4, 9, 0, 0, 0, time.UTC)

	scheduled := Activity{Schedule: Daily(3)}
	require.False(t, scheduled.IsTargetMet(2, tuesday))
	require.True(t, scheduled.IsTargetMet(3, tuesday))

	offDay := Activity{Schedule: Weekly(3, time.Friday)}
	require.False(t, offDay.IsTargetMet(0, tuesday))
	require.True(t, offDay.IsTargetMet(1, tuesday))
}

func TestLocalDateKeyUsesLocalCalendarDay(t *testing.T) {
	sydney := time.FixedZone("AEDT", 11*3600)
	// 23:50 local on Jan 5 is 12:50 UTC on Jan 5; 00:10 local on Jan 6 is
	// 13:10 UTC on Jan 5. Both must key by their local day.
	late := time.Date(2025, 1, 5, 12, 50, 0, 0, time.UTC)
	early := time.Date(2025, 1, 5, 13, 10, 0, 0, time.UTC)
	require.Equal(t, "2025-01-05", LocalDateKey(late, sydney))
	require.Equal(t, "2025-01-06", LocalDateKey(early, sydney))
}

func TestGroupByDayBucketsAcrossUTCMidnight(t *testing.T) {
	pacific := time.FixedZone("PST", -8*3600)
	// Both instants straddle UTC midnight but fall on 2025-03-01 in PST.
	before := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	after := time.Date(2025, 3, 2, 1, 15, 0, 0, time.UTC)

	completions := []Completion{
		{ID: "c1", ActivityID: "a", CompletedAt: before},
		{ID: "c2", ActivityID: "a", CompletedAt: after},
	}
	grouped := GroupByDay(completions, pacific)
	require.Len(t, grouped, 1)
	require.Len(t, grouped["2025-03-01"], 2)
	// Insertion order preserved within the bucket.
	require.Equal(t, "c1", grouped["2025-03-01"][0].ID)
	require.Equal(t, "c2", grouped["2025-03-01"][1].ID)
}

func TestCountOnDay(t *testing.T) {
	day := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	completions := []Completion{
		{ID: "c1", ActivityID: "a", CompletedAt: day},
		{ID: "c2", ActivityID: "a", CompletedAt: day.Add(2 * time.Hour)},
		{ID: "c3", ActivityID: "b", CompletedAt: day},
		{ID: "c4", ActivityID: "a", CompletedAt: day.AddDate(0, 0, -1)},
	}
	require.Equal(t, 2, CountOnDay(completions, "a", day, time.UTC))
	require.Equal(t, 1, CountOnDay(completions, "b", day, time.UTC))
	require.Equal(t, 0, CountOnDay(completions, "c", day, time.UTC))
}

func TestCompletionsForPreservesOrder(t *testing.T) {
	completions := []Completion{
		{ID: "c1", ActivityID: "a"},
		{ID: "c2", ActivityID: "b"},
		{ID: "c3", ActivityID: "a"},
	}
	got := CompletionsFor(completions, "a")
	require.Equal(t, []string{"c1", "c3"}, []string{got[0].ID, got[1].ID})
}
