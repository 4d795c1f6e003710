package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/habits/internal/domain"
)

var (
	testNow = time.Date(2025, 11, 4, 12, 0, 0, 0, time.UTC)
	ctx     = context.Background()
)

func newActivity(id, title string, sortOrder int) domain.Activity {
	return domain.Activity{
		ID:        id,
		Title:     title,
		Type:      domain.ActivityPersonal,
		Schedule:  domain.Daily(1),
		SortOrder: sortOrder,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

func ownerOf(userID, activityID string) domain.ActivityMember {
	return domain.ActivityMember{
		ID:         "m-" + activityID,
		ActivityID: activityID,
		UserID:     userID,
		Role:       domain.RoleOwner,
		CreatedAt:  testNow,
	}
}

func TestStoreScopesByMembership(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.CreateActivity(ctx, newActivity("a1", "Run", 0), ownerOf("alice", "a1")))
	require.NoError(t, s.CreateActivity(ctx, newActivity("a2", "Read", 1), ownerOf("bob", "a2")))

	got, err := s.GetActivity(ctx, "alice", "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Run", got.Title)

	// Another user's activity is invisible, not an error.
	got, err = s.GetActivity(ctx, "alice", "a2")
	require.NoError(t, err)
	require.Nil(t, got)

	list, total, err := s.ListActivities(ctx, "alice", domain.ListActivitiesOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.Equal(t, "a1", list[0].ID)
}

func TestStoreArchivedFiltering(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.CreateActivity(ctx, newActivity("a1", "Run", 0), ownerOf("alice", "a1")))
	require.NoError(t, s.CreateActivity(ctx, newActivity("a2", "Read", 1), ownerOf("alice", "a2")))

	archivedAt := testNow.Add(time.Hour)
	updated, err := s.SetArchived(ctx, "alice", "a2", &archivedAt, archivedAt)
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.NotNil(t, updated.ArchivedAt)

	list, total, err := s.ListActivities(ctx, "alice", domain.ListActivitiesOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "a1", list[0].ID)

	list, total, err = s.ListActivities(ctx, "alice", domain.ListActivitiesOptions{IncludeArchived: true})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, list, 2)

	// Unarchive restores visibility.
	updated, err = s.SetArchived(ctx, "alice", "a2", nil, archivedAt.Add(time.Hour))
	require.NoError(t, err)
	require.Nil(t, updated.ArchivedAt)

	_, total, err = s.ListActivities(ctx, "alice", domain.ListActivitiesOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestStoreCompletionRange(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.CreateActivity(ctx, newActivity("a1", "Run", 0), ownerOf("alice", "a1")))

	for i, at := range []time.Time{
		testNow.AddDate(0, 0, -2),
		testNow.AddDate(0, 0, -1),
		testNow,
	} {
		require.NoError(t, s.CreateCompletion(ctx, domain.Completion{
			ID:          "c" + string(rune('1'+i)),
			ActivityID:  "a1",
			UserID:      "alice",
			CompletedAt: at,
			CreatedAt:   at,
			UpdatedAt:   at,
		}))
	}

	// [from, to) excludes the completion at the upper bound.
	list, total, err := s.ListCompletions(ctx, "alice", testNow.AddDate(0, 0, -2), testNow, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, list, 2)

	// No membership, no completions.
	_, total, err = s.ListCompletions(ctx, "bob", testNow.AddDate(0, 0, -7), testNow.AddDate(0, 0, 1), 0, 0)
	require.NoError(t, err)
	require.Zero(t, total)

	require.NoError(t, s.DeleteCompletion(ctx, "alice", "c3"))
	require.ErrorIs(t, s.DeleteCompletion(ctx, "alice", "c3"), domain.ErrCompletionNotFound)
	require.ErrorIs(t, s.DeleteCompletion(ctx, "bob", "c1"), domain.ErrCompletionNotFound)
}

func TestStoreDeleteActivityCascades(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	require.NoError(t, s.CreateActivity(ctx, newActivity("a1", "Run", 0), ownerOf("alice", "a1")))
	require.NoError(t, s.CreateCompletion(ctx, domain.Completion{
		ID: "c1", ActivityID: "a1", UserID: "alice", CompletedAt: testNow, CreatedAt: testNow, UpdatedAt: testNow,
	}))

	require.NoError(t, s.DeleteActivity(ctx, "alice", "a1"))

	got, err := s.GetActivity(ctx, "alice", "a1")
	require.NoError(t, err)
	require.Nil(t, got)

	members, err := s.ListMembers(ctx, "a1")
	require.NoError(t, err)
	require.Empty(t, members)
	require.Empty(t, s.completions)
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "habits.json")

	s, err := New(WithSnapshotFile(path))
	require.NoError(t, err)
	require.NoError(t, s.CreateActivity(ctx, newActivity("a1", "Run", 0), ownerOf("alice", "a1")))
	require.NoError(t, s.CreateCompletion(ctx, domain.Completion{
		ID: "c1", ActivityID: "a1", UserID: "alice", CompletedAt: testNow, CreatedAt: testNow, UpdatedAt: testNow,
	}))

	reloaded, err := New(WithSnapshotFile(path))
	require.NoError(t, err)

	got, err := reloaded.GetActivity(ctx, "alice", "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Run", got.Title)
	require.True(t, got.Schedule.ScheduledAt(testNow))

	_, total, err := reloaded.ListCompletions(ctx, "alice", testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1), 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestSeedIsDeterministic(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	require.NoError(t, a.Seed("alice", testNow, 42))
	require.NoError(t, b.Seed("alice", testNow, 42))

	require.Equal(t, a.activities, b.activities)
	require.Equal(t, a.completions, b.completions)
	require.Equal(t, a.members, b.members)

	require.Len(t, a.activities, len(seedSpecs))
	require.NotEmpty(t, a.completions)

	// Every seeded record belongs to the seeded user.
	list, total, err := a.ListActivities(ctx, "alice", domain.ListActivitiesOptions{IncludeArchived: true})
	require.NoError(t, err)
	require.Equal(t, len(seedSpecs), total)
	require.Len(t, list, len(seedSpecs))
}
