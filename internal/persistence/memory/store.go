// Package memory provides a development repository backed by in-process
// state, optionally persisted to a JSON snapshot file. It mirrors the
// Postgres repository's contract so the API can run without external
// services.
package memory

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"example.com/habits/internal/domain"
	"example.com/habits/internal/persistence"
)

// Store is an in-memory domain.Repository. Collections keep insertion order,
// matching how listings behave in the dev environment.
type Store struct {
	mu           sync.Mutex
	snapshotPath string

	activities  []domain.Activity
	completions []domain.Completion
	members     []domain.ActivityMember
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshotFile persists every mutation to path and reloads it on startup.
func WithSnapshotFile(path string) Option {
	return func(s *Store) {
		s.snapshotPath = path
	}
}

// New constructs a Store, loading the snapshot file when configured.
func New(opts ...Option) (*Store, error) {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.snapshotPath != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type snapshot struct {
	Activities  []domain.Activity       `json:"activities"`
	Completions []domain.Completion     `json:"completions"`
	Members     []domain.ActivityMember `json:"members"`
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return err
	}
	s.activities = snap.Activities
	s.completions = snap.Completions
	s.members = snap.Members
	return nil
}

// persist writes the snapshot file. Callers hold the mutex.
func (s *Store) persist() {
	if s.snapshotPath == "" {
		return
	}
	raw, err := json.MarshalIndent(snapshot{
		Activities:  s.activities,
		Completions: s.completions,
		Members:     s.members,
	}, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(s.snapshotPath, raw, 0o644)
}

// CreateActivity stores the activity and its owner membership.
func (s *Store) CreateActivity(_ context.Context, activity domain.Activity, owner domain.ActivityMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activity)
	s.members = append(s.members, owner)
	s.persist()
	return nil
}

// GetActivity returns the activity when the user is a member, nil otherwise.
func (s *Store) GetActivity(_ context.Context, userID, activityID string) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isMember(userID, activityID) {
		return nil, nil
	}
	for _, a := range s.activities {
		if a.ID == activityID {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

// ListActivities returns the user's activities in insertion order.
func (s *Store) ListActivities(_ context.Context, userID string, opts domain.ListActivitiesOptions) ([]domain.Activity, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]domain.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		if !s.isMember(userID, a.ID) {
			continue
		}
		if a.Archived() && !opts.IncludeArchived {
			continue
		}
		filtered = append(filtered, a)
	}

	page := persistence.Page{Limit: opts.Limit, Offset: opts.Offset}
	if page.Limit <= 0 {
		page.Limit = persistence.DefaultLimit
	}
	start, end := page.Slice(len(filtered))
	return filtered[start:end], len(filtered), nil
}

// UpdateActivity replaces the stored record.
func (s *Store) UpdateActivity(_ context.Context, userID string, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isMember(userID, activity.ID) {
		return domain.ErrActivityNotFound
	}
	for i, a := range s.activities {
		if a.ID == activity.ID {
			s.activities[i] = activity
			s.persist()
			return nil
		}
	}
	return domain.ErrActivityNotFound
}

// SetArchived sets or clears the archive marker.
func (s *Store) SetArchived(_ context.Context, userID, activityID string, archivedAt *time.Time, updatedAt time.Time) (*domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isMember(userID, activityID) {
		return nil, nil
	}
	for i, a := range s.activities {
		if a.ID == activityID {
			s.activities[i].ArchivedAt = archivedAt
			s.activities[i].UpdatedAt = updatedAt
			out := s.activities[i]
			s.persist()
			return &out, nil
		}
	}
	return nil, nil
}

// DeleteActivity removes the activity with its completions and memberships.
func (s *Store) DeleteActivity(_ context.Context, userID, activityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isMember(userID, activityID) {
		return domain.ErrActivityNotFound
	}

	found := false
	kept := s.activities[:0]
	for _, a := range s.activities {
		if a.ID == activityID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	s.activities = kept
	if !found {
		return domain.ErrActivityNotFound
	}

	completions := s.completions[:0]
	for _, c := range s.completions {
		if c.ActivityID != activityID {
			completions = append(completions, c)
		}
	}
	s.completions = completions

	members := s.members[:0]
	for _, m := range s.members {
		if m.ActivityID != activityID {
			members = append(members, m)
		}
	}
	s.members = members
	s.persist()
	return nil
}

// CreateCompletion appends the completion.
func (s *Store) CreateCompletion(_ context.Context, completion domain.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, completion)
	s.persist()
	return nil
}

// ListCompletions returns completions of the user's activities within
// [from, to) in insertion order.
func (s *Store) ListCompletions(_ context.Context, userID string, from, to time.Time, limit, offset int) ([]domain.Completion, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]domain.Completion, 0, len(s.completions))
	for _, c := range s.completions {
		if !s.isMember(userID, c.ActivityID) {
			continue
		}
		if c.CompletedAt.Before(from) || !c.CompletedAt.Before(to) {
			continue
		}
		filtered = append(filtered, c)
	}

	page := persistence.Page{Limit: limit, Offset: offset}
	if page.Limit <= 0 {
		page.Limit = persistence.DefaultLimit
	}
	start, end := page.Slice(len(filtered))
	return filtered[start:end], len(filtered), nil
}

// DeleteCompletion removes a completion of the user's activities.
func (s *Store) DeleteCompletion(_ context.Context, userID, completionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.completions {
		if c.ID == completionID {
			if !s.isMember(userID, c.ActivityID) {
				return domain.ErrCompletionNotFound
			}
			s.completions = append(s.completions[:i], s.completions[i+1:]...)
			s.persist()
			return nil
		}
	}
	return domain.ErrCompletionNotFound
}

// CreateMember appends the membership.
func (s *Store) CreateMember(_ context.Context, member domain.ActivityMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = append(s.members, member)
	s.persist()
	return nil
}

// ListMembers returns the memberships of an activity.
func (s *Store) ListMembers(_ context.Context, activityID string) ([]domain.ActivityMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ActivityMember, 0)
	for _, m := range s.members {
		if m.ActivityID == activityID {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetMember returns a membership by id, nil when absent.
func (s *Store) GetMember(_ context.Context, memberID string) (*domain.ActivityMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.ID == memberID {
			out := m
			return &out, nil
		}
	}
	return nil, nil
}

// DeleteMember removes a membership by id.
func (s *Store) DeleteMember(_ context.Context, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members {
		if m.ID == memberID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			s.persist()
			return nil
		}
	}
	return domain.ErrMemberNotFound
}

// isMember reports membership. Callers hold the mutex.
func (s *Store) isMember(userID, activityID string) bool {
	for _, m := range s.members {
		if m.ActivityID == activityID && m.UserID == userID {
			return true
		}
	}
	return false
}
