package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ListActivitiesOptions tunes activity listings.
type ListActivitiesOptions struct {
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Repository captures persistence operations. Activities and completions are
// visible to a user through activity membership; lookups scoped by userID
// return nil (or no rows) for records the user cannot see.
type Repository interface {
	CreateActivity(ctx context.Context, activity Activity, owner ActivityMember) error
	GetActivity(ctx context.Context, userID, activityID string) (*Activity, error)
	ListActivities(ctx context.Context, userID string, opts ListActivitiesOptions) ([]Activity, int, error)
	UpdateActivity(ctx context.Context, userID string, activity Activity) error
	SetArchived(ctx context.Context, userID, activityID string, archivedAt *time.Time, updatedAt time.Time) (*Activity, error)
	DeleteActivity(ctx context.Context, userID, activityID string) error

	CreateCompletion(ctx context.Context, completion Completion) error
	ListCompletions(ctx context.Context, userID string, from, to time.Time, limit, offset int) ([]Completion, int, error)
	DeleteCompletion(ctx context.Context, userID, completionID string) error

	CreateMember(ctx context.Context, member ActivityMember) error
	ListMembers(ctx context.Context, activityID string) ([]ActivityMember, error)
	GetMember(ctx context.Context, memberID string) (*ActivityMember, error)
	DeleteMember(ctx context.Context, memberID string) error
}

// Service orchestrates habit workflows.
type Service struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time

	metMu sync.Mutex
	met   *MetTracker
}

// ServiceOption configures optional Service behaviour.
type ServiceOption func(*Service)

// WithClock overrides the time source, used by tests for determinism.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service. loc is the calendar used for local-day
// bucketing in statistics; nil means UTC.
func NewService(repo Repository, loc *time.Location, opts ...ServiceOption) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{repo: repo, loc: loc, now: time.Now, met: NewMetTracker()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location exposes the calendar the service buckets days in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// CreateActivityInput captures the payload from the API layer.
type CreateActivityInput struct {
	Title       string
	Description *string
	Type        ActivityType
	Schedule    Schedule
	SortOrder   int
}

// CreateActivity validates the input, persists the activity and its owner
// membership atomically, and returns the stored record.
func (s *Service) CreateActivity(ctx context.Context, userID string, input CreateActivityInput) (*Activity, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.Type == "" {
		input.Type = ActivityPersonal
	}
	if err := validateActivityType(input.Type); err != nil {
		return nil, err
	}
	if err := input.Schedule.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	activity := Activity{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Description: input.Description,
		Type:        input.Type,
		Schedule:    input.Schedule,
		SortOrder:   input.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := ActivityMember{
		ID:         uuid.NewString(),
		ActivityID: activity.ID,
		UserID:     userID,
		Role:       RoleOwner,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.CreateActivity(ctx, activity, owner); err != nil {
		return nil, err
	}
	return &activity, nil
}

// GetActivity fetches by ID, scoped to the caller's memberships.
func (s *Service) GetActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	activity, err := s.repo.GetActivity(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListActivities returns the caller's activities and the total count.
func (s *Service) ListActivities(ctx context.Context, userID string, opts ListActivitiesOptions) ([]Activity, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	return s.repo.ListActivities(ctx, userID, opts)
}

// todayViewHistoryDays bounds how much completion history the today view
// joins in; enough for a month of per-day buckets.
const todayViewHistoryDays = 35

// TodayView returns the caller's active activities enriched with their recent
// completions and ordered for display: due today and unmet first, then not
// scheduled today, then met, with the met tier most-recently-met first. Met
// recency is tracked across calls for the lifetime of the service.
func (s *Service) TodayView(ctx context.Context, userID string) ([]EnrichedActivity, error) {
	activities, _, err := s.ListActivities(ctx, userID, ListActivitiesOptions{Limit: 1000})
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := dayStart(now.AddDate(0, 0, -todayViewHistoryDays), s.loc)
	end := dayStart(now, s.loc).AddDate(0, 0, 1)
	completions, _, err := s.repo.ListCompletions(ctx, userID, start, end, 100000, 0)
	if err != nil {
		return nil, err
	}

	enriched := EnrichAll(activities, completions, s.loc)

	s.metMu.Lock()
	defer s.metMu.Unlock()
	return SortForDisplay(enriched, s.met, now, s.loc), nil
}

// UpdateActivityInput carries the partial fields of a PATCH.
type UpdateActivityInput struct {
	Title       *string
	Description *string
	Type        *ActivityType
	Schedule    *Schedule
	SortOrder   *int
}

// UpdateActivity merges the partial input into the stored activity and bumps
// its update timestamp.
func (s *Service) UpdateActivity(ctx context.Context, userID, activityID string, input UpdateActivityInput) (*Activity, error) {
	activity, err := s.GetActivity(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, fmt.Errorf("title is required")
		}
		activity.Title = *input.Title
	}
	if input.Description != nil {
		activity.Description = input.Description
	}
	if input.Type != nil {
		if err := validateActivityType(*input.Type); err != nil {
			return nil, err
		}
		activity.Type = *input.Type
	}
	if input.Schedule != nil {
		if err := input.Schedule.Validate(); err != nil {
			return nil, err
		}
		activity.Schedule = *input.Schedule
	}
	if input.SortOrder != nil {
		activity.SortOrder = *input.SortOrder
	}
	activity.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateActivity(ctx, userID, *activity); err != nil {
		return nil, err
	}
	return activity, nil
}

// ArchiveActivity marks the activity archived, excluding it from due-today
// evaluation and default listings.
func (s *Service) ArchiveActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	now := s.now().UTC()
	activity, err := s.repo.SetArchived(ctx, userID, activityID, &now, now)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// UnarchiveActivity clears the archived marker.
func (s *Service) UnarchiveActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	activity, err := s.repo.SetArchived(ctx, userID, activityID, nil, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// DeleteActivity removes the activity along with its completions and members.
func (s *Service) DeleteActivity(ctx context.Context, userID, activityID string) error {
	return s.repo.DeleteActivity(ctx, userID, activityID)
}

// CreateCompletionInput captures a completion to log.
type CreateCompletionInput struct {
	ActivityID  string
	CompletedAt time.Time
	Note        *string
}

// LogCompletion records one completion against an activity the caller can see.
func (s *Service) LogCompletion(ctx context.Context, userID string, input CreateCompletionInput) (*Completion, error) {
	if _, err := s.GetActivity(ctx, userID, input.ActivityID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	completedAt := input.CompletedAt
	if completedAt.IsZero() {
		completedAt = now
	}

	completion := Completion{
		ID:          uuid.NewString(),
		ActivityID:  input.ActivityID,
		UserID:      userID,
		CompletedAt: completedAt.UTC(),
		Note:        input.Note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateCompletion(ctx, completion); err != nil {
		return nil, err
	}
	return &completion, nil
}

// ListCompletions returns completions of the caller's activities within
// [from, to) along with the total count.
func (s *Service) ListCompletions(ctx context.Context, userID string, from, to time.Time, limit, offset int) ([]Completion, int, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListCompletions(ctx, userID, from, to, limit, offset)
}

// DeleteCompletion removes a logged completion.
func (s *Service) DeleteCompletion(ctx context.Context, userID, completionID string) error {
	return s.repo.DeleteCompletion(ctx, userID, completionID)
}

// CreateMemberInput captures a membership to add.
type CreateMemberInput struct {
	ActivityID string
	UserID     string
	Role       MemberRole
}

// AddMember attaches a user to an activity. Only owners may add members.
func (s *Service) AddMember(ctx context.Context, actorID string, input CreateMemberInput) (*ActivityMember, error) {
	if input.Role != RoleOwner && input.Role != RoleMember {
		return nil, fmt.Errorf("unknown member role %q", input.Role)
	}
	if err := s.requireOwner(ctx, actorID, input.ActivityID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	member := ActivityMember{
		ID:         uuid.NewString(),
		ActivityID: input.ActivityID,
		UserID:     input.UserID,
		Role:       input.Role,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateMember(ctx, member); err != nil {
		return nil, err
	}
	return &member, nil
}

// ListMembers lists the memberships of an activity the caller can see.
func (s *Service) ListMembers(ctx context.Context, userID, activityID string) ([]ActivityMember, error) {
	if _, err := s.GetActivity(ctx, userID, activityID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, activityID)
}

// RemoveMember deletes a membership. Owners may remove anyone; members may
// only remove themselves.
func (s *Service) RemoveMember(ctx context.Context, actorID, memberID string) error {
	member, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrMemberNotFound
	}
	if member.UserID != actorID {
		if err := s.requireOwner(ctx, actorID, member.ActivityID); err != nil {
			return err
		}
	}
	return s.repo.DeleteMember(ctx, memberID)
}

// Statistics computes the requested aggregation over the caller's active
// activities for the inclusive local date range [from, to].
func (s *Service) Statistics(ctx context.Context, userID string, statType StatisticType, from, to time.Time) (Statistic, error) {
	if !KnownStatisticType(statType) {
		return nil, fmt.Errorf("unknown statistic type %q", statType)
	}
	activities, _, err := s.ListActivities(ctx, userID, ListActivitiesOptions{Limit: 1000})
	if err != nil {
		return nil, err
	}
	completions, err := s.completionsForRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	return s.compute(statType, activities, completions, from, to), nil
}

// ActivityStatistics is Statistics narrowed to a single activity.
func (s *Service) ActivityStatistics(ctx context.Context, userID, activityID string, statType StatisticType, from, to time.Time) (Statistic, error) {
	if !KnownStatisticType(statType) {
		return nil, fmt.Errorf("unknown statistic type %q", statType)
	}
	activity, err := s.GetActivity(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}
	completions, err := s.completionsForRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	return s.compute(statType, []Activity{*activity}, CompletionsFor(completions, activityID), from, to), nil
}

func (s *Service) compute(statType StatisticType, activities []Activity, completions []Completion, from, to time.Time) Statistic {
	active := make([]Activity, 0, len(activities))
	for _, a := range activities {
		if !a.Archived() {
			active = append(active, a)
		}
	}
	if statType == StatThroughput {
		return Throughput(active, completions, from, to, s.loc)
	}
	return CompletionRate(active, completions, from, to, s.loc)
}

func (s *Service) completionsForRange(ctx context.Context, userID string, from, to time.Time) ([]Completion, error) {
	start := dayStart(from, s.loc)
	end := dayStart(to, s.loc).AddDate(0, 0, 1)
	completions, _, err := s.repo.ListCompletions(ctx, userID, start, end, 100000, 0)
	return completions, err
}

func (s *Service) requireOwner(ctx context.Context, actorID, activityID string) error {
	if _, err := s.GetActivity(ctx, actorID, activityID); err != nil {
		return err
	}
	members, err := s.repo.ListMembers(ctx, activityID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.UserID == actorID && m.Role == RoleOwner {
			return nil
		}
	}
	return ErrForbidden
}

func validateActivityType(t ActivityType) error {
	switch t {
	case ActivityPersonal, ActivityGroup, ActivityShared:
		return nil
	default:
		return fmt.Errorf("unknown activity type %q", t)
	}
}
