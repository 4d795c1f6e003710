// Package postgres implements the repository on top of pgx with a
// transactional outbox: every state change that other services care about is
// recorded in the outbox table within the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/habits/internal/domain"
	"example.com/habits/internal/events"
	"example.com/habits/internal/observability"
)

// Repository provides Postgres-backed persistence for activities, completions
// and memberships.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `activity_id, title, description, activity_type, schedule, sort_order, created_at, updated_at, archived_at`

// visibleActivity restricts a query to activities the user is a member of.
const visibleActivity = `EXISTS (
        SELECT 1 FROM activity_members m
         WHERE m.activity_id = a.activity_id AND m.user_id = $1)`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var (
		a   domain.Activity
		raw []byte
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Type, &raw, &a.SortOrder, &a.CreatedAt, &a.UpdatedAt, &a.ArchivedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &a.Schedule); err != nil {
		return nil, fmt.Errorf("decode schedule for activity %s: %w", a.ID, err)
	}
	return &a, nil
}

// CreateActivity persists the activity, its owner membership and the
// activity.created outbox event in a single transaction.
func (r *Repository) CreateActivity(ctx context.Context, activity domain.Activity, owner domain.ActivityMember) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	schedule, err := json.Marshal(activity.Schedule)
	if err != nil {
		return err
	}

	const insertActivity = `INSERT INTO activities (activity_id, title, description, activity_type, schedule, sort_order, created_at, updated_at, archived_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err = tx.Exec(ctx, insertActivity,
		activity.ID,
		activity.Title,
		activity.Description,
		activity.Type,
		schedule,
		activity.SortOrder,
		activity.CreatedAt,
		activity.UpdatedAt,
		activity.ArchivedAt,
	); err != nil {
		return err
	}

	if err = insertMember(ctx, tx, owner); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, events.TypeActivityCreated, activity.ID, dedupeOnce(activity.ID, events.TypeActivityCreated), events.ActivityCreated{
		ActivityID:   activity.ID,
		OwnerID:      owner.UserID,
		Title:        activity.Title,
		ActivityType: string(activity.Type),
		ScheduleKind: string(activity.Schedule.Kind),
		Target:       activity.Schedule.Target,
		CreatedAt:    activity.CreatedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return nil
}

// GetActivity retrieves an activity the user can see, nil when invisible.
func (r *Repository) GetActivity(ctx context.Context, userID, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities a WHERE a.activity_id = $2 AND ` + visibleActivity

	activity, err := scanActivity(r.pool.QueryRow(ctx, query, userID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

// ListActivities returns the user's activities ordered by sort_order with the
// creation time as tie-break, plus the unpaged total.
func (r *Repository) ListActivities(ctx context.Context, userID string, opts domain.ListActivitiesOptions) ([]domain.Activity, int, error) {
	where := visibleActivity
	if !opts.IncludeArchived {
		where += ` AND a.archived_at IS NULL`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM activities a WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + activityColumns + ` FROM activities a WHERE ` + where +
		` ORDER BY a.sort_order, a.created_at DESC, a.activity_id LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, opts.Limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// UpdateActivity replaces the mutable columns of an activity the user can see.
func (r *Repository) UpdateActivity(ctx context.Context, userID string, activity domain.Activity) error {
	schedule, err := json.Marshal(activity.Schedule)
	if err != nil {
		return err
	}

	const stmt = `UPDATE activities a
           SET title = $3, description = $4, activity_type = $5, schedule = $6, sort_order = $7, updated_at = $8
         WHERE a.activity_id = $2 AND ` + visibleActivity

	tag, err := r.pool.Exec(ctx, stmt, userID, activity.ID,
		activity.Title, activity.Description, activity.Type, schedule, activity.SortOrder, activity.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return nil
}

// SetArchived sets or clears archived_at and records an activity.archived
// event in the same transaction. Returns nil when the user cannot see the
// activity.
func (r *Repository) SetArchived(ctx context.Context, userID, activityID string, archivedAt *time.Time, updatedAt time.Time) (activity *domain.Activity, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	stmt := `UPDATE activities a
           SET archived_at = $3, updated_at = $4
         WHERE a.activity_id = $2 AND ` + visibleActivity + `
     RETURNING ` + activityColumns

	activity, err = scanActivity(tx.QueryRow(ctx, stmt, userID, activityID, archivedAt, updatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.Rollback(ctx)
			return nil, err
		}
		return nil, err
	}

	dedupe := fmt.Sprintf("%s:%s:%d", activityID, events.TypeActivityArchived, updatedAt.UnixNano())
	if err = insertOutbox(ctx, tx, events.TypeActivityArchived, activityID, dedupe, events.ActivityArchived{
		ActivityID: activityID,
		Archived:   archivedAt != nil,
		OccurredAt: updatedAt,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordActivityPersisted(updatedAt)
	return activity, nil
}

// DeleteActivity removes the activity; completions and memberships cascade.
func (r *Repository) DeleteActivity(ctx context.Context, userID, activityID string) error {
	const stmt = `DELETE FROM activities a WHERE a.activity_id = $2 AND ` + visibleActivity

	tag, err := r.pool.Exec(ctx, stmt, userID, activityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

// CreateCompletion persists the completion and its completion.logged outbox
// event in a single transaction.
func (r *Repository) CreateCompletion(ctx context.Context, completion domain.Completion) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO completions (completion_id, activity_id, user_id, completed_at, note, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err = tx.Exec(ctx, stmt,
		completion.ID,
		completion.ActivityID,
		completion.UserID,
		completion.CompletedAt,
		completion.Note,
		completion.CreatedAt,
		completion.UpdatedAt,
	); err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, events.TypeCompletionLogged, completion.ActivityID, dedupeOnce(completion.ID, events.TypeCompletionLogged), events.CompletionLogged{
		CompletionID: completion.ID,
		ActivityID:   completion.ActivityID,
		UserID:       completion.UserID,
		CompletedAt:  completion.CompletedAt,
		HasNote:      completion.Note != nil,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordCompletionPersisted(completion.CompletedAt)
	return nil
}

// ListCompletions returns completions of the user's activities with
// completed_at in [from, to), ordered by completion time, plus the unpaged
// total.
func (r *Repository) ListCompletions(ctx context.Context, userID string, from, to time.Time, limit, offset int) ([]domain.Completion, int, error) {
	const where = `c.completed_at >= $2 AND c.completed_at < $3
        AND EXISTS (SELECT 1 FROM activity_members m
             WHERE m.activity_id = c.activity_id AND m.user_id = $1)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM completions c WHERE `+where, userID, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `SELECT c.completion_id, c.activity_id, c.user_id, c.completed_at, c.note, c.created_at, c.updated_at
          FROM completions c WHERE ` + where + `
         ORDER BY c.completed_at, c.completion_id LIMIT $4 OFFSET $5`

	rows, err := r.pool.Query(ctx, query, userID, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := make([]domain.Completion, 0, limit)
	for rows.Next() {
		var c domain.Completion
		if err := rows.Scan(&c.ID, &c.ActivityID, &c.UserID, &c.CompletedAt, &c.Note, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// DeleteCompletion removes a completion of the user's activities and records
// a completion.deleted event in the same transaction.
func (r *Repository) DeleteCompletion(ctx context.Context, userID, completionID string) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `DELETE FROM completions c
         WHERE c.completion_id = $2
           AND EXISTS (SELECT 1 FROM activity_members m
                WHERE m.activity_id = c.activity_id AND m.user_id = $1)
     RETURNING c.activity_id, c.user_id`

	var activityID, ownerID string
	if err = tx.QueryRow(ctx, stmt, userID, completionID).Scan(&activityID, &ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			tx.Rollback(ctx)
			return domain.ErrCompletionNotFound
		}
		return err
	}

	if err = insertOutbox(ctx, tx, events.TypeCompletionDeleted, activityID, dedupeOnce(completionID, events.TypeCompletionDeleted), events.CompletionDeleted{
		CompletionID: completionID,
		ActivityID:   activityID,
		UserID:       ownerID,
		OccurredAt:   time.Now().UTC(),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CreateMember persists a membership.
func (r *Repository) CreateMember(ctx context.Context, member domain.ActivityMember) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertMember(ctx, tx, member); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertMember(ctx context.Context, tx pgx.Tx, member domain.ActivityMember) error {
	const stmt = `INSERT INTO activity_members (member_id, activity_id, user_id, role, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := tx.Exec(ctx, stmt, member.ID, member.ActivityID, member.UserID, member.Role, member.CreatedAt, member.UpdatedAt)
	return err
}

// ListMembers returns the memberships of an activity.
func (r *Repository) ListMembers(ctx context.Context, activityID string) ([]domain.ActivityMember, error) {
	const query = `SELECT member_id, activity_id, user_id, role, created_at, updated_at
          FROM activity_members WHERE activity_id = $1 ORDER BY created_at, member_id`

	rows, err := r.pool.Query(ctx, query, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityMember, 0)
	for rows.Next() {
		var m domain.ActivityMember
		if err := rows.Scan(&m.ID, &m.ActivityID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// GetMember retrieves a membership by id, nil when absent.
func (r *Repository) GetMember(ctx context.Context, memberID string) (*domain.ActivityMember, error) {
	const query = `SELECT member_id, activity_id, user_id, role, created_at, updated_at
          FROM activity_members WHERE member_id = $1`

	var m domain.ActivityMember
	if err := r.pool.QueryRow(ctx, query, memberID).Scan(&m.ID, &m.ActivityID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// DeleteMember removes a membership by id.
func (r *Repository) DeleteMember(ctx context.Context, memberID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_members WHERE member_id = $1`, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID, dedupeKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		aggregateID,
		body,
		dedupeKey,
	)
	return err
}

func dedupeOnce(aggregateID, eventType string) string {
	return fmt.Sprintf("%s:%s", aggregateID, eventType)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityCreated: {
		AggregateType: "activity",
		Topic:         "habit_activity_events",
		SchemaSubject: "habit_activity_events-value",
	},
	events.TypeActivityArchived: {
		AggregateType: "activity",
		Topic:         "habit_activity_events",
		SchemaSubject: "habit_activity_events-value",
	},
	events.TypeCompletionLogged: {
		AggregateType: "completion",
		Topic:         "habit_completion_events",
		SchemaSubject: "habit_completion_events-value",
	},
	events.TypeCompletionDeleted: {
		AggregateType: "completion",
		Topic:         "habit_completion_events",
		SchemaSubject: "habit_completion_events-value",
	},
}
