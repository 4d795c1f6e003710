package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventLogHandler writes consumed habit events into Postgres for auditing.
type EventLogHandler struct {
	pool *pgxpool.Pool
}

// NewEventLogHandler constructs a handler backed by the provided pool.
func NewEventLogHandler(pool *pgxpool.Pool) *EventLogHandler {
	return &EventLogHandler{pool: pool}
}

// eventFields are the identifying attributes shared by habit event payloads.
// Payloads name the acting user and the event time differently per type, so
// all candidates are decoded and the first present one wins.
type eventFields struct {
	ActivityID  string    `json:"activity_id"`
	UserID      string    `json:"user_id"`
	OwnerID     string    `json:"owner_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (f eventFields) actor() string {
	if f.UserID != "" {
		return f.UserID
	}
	return f.OwnerID
}

func (f eventFields) occurred(fallback time.Time) time.Time {
	for _, ts := range []time.Time{f.OccurredAt, f.CompletedAt, f.CreatedAt} {
		if !ts.IsZero() {
			return ts
		}
	}
	return fallback
}

// Handle stores the event in the habit_event_log table. Replayed records are
// deduplicated on topic/partition/offset.
func (h *EventLogHandler) Handle(ctx context.Context, msg Message) error {
	var fields eventFields
	if err := json.Unmarshal(msg.Payload, &fields); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}

	dedupeKey := fmt.Sprintf("%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)

	_, err := h.pool.Exec(ctx,
		`INSERT INTO habit_event_log (event_type, activity_id, user_id, occurred_at, payload, dedupe_key, recorded_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7)
         ON CONFLICT (dedupe_key) DO NOTHING`,
		msg.EventType,
		fields.ActivityID,
		fields.actor(),
		fields.occurred(msg.Timestamp),
		msg.Payload,
		dedupeKey,
		time.Now().UTC(),
	)
	return err
}
