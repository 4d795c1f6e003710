package outbox

// Subjects map one-to-one with topics, so each topic's schema is the union of
// the event payloads published on it.

const activityEventsSchema = `{
  "type": "object",
  "title": "HabitActivityEvent",
  "oneOf": [
    {
      "type": "object",
      "title": "ActivityCreated",
      "properties": {
        "activity_id": {"type": "string"},
        "owner_id": {"type": "string"},
        "title": {"type": "string"},
        "activity_type": {"type": "string"},
        "schedule_kind": {"type": "string"},
        "target_completions": {"type": "integer"},
        "created_at": {"type": "string", "format": "date-time"}
      },
      "required": ["activity_id", "owner_id", "title", "activity_type", "schedule_kind", "target_completions", "created_at"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "title": "ActivityArchived",
      "properties": {
        "activity_id": {"type": "string"},
        "archived": {"type": "boolean"},
        "occurred_at": {"type": "string", "format": "date-time"}
      },
      "required": ["activity_id", "archived", "occurred_at"],
      "additionalProperties": false
    }
  ]
}`

const completionEventsSchema = `{
  "type": "object",
  "title": "HabitCompletionEvent",
  "oneOf": [
    {
      "type": "object",
      "title": "CompletionLogged",
      "properties": {
        "completion_id": {"type": "string"},
        "activity_id": {"type": "string"},
        "user_id": {"type": "string"},
        "completed_at": {"type": "string", "format": "date-time"},
        "has_note": {"type": "boolean"}
      },
      "required": ["completion_id", "activity_id", "user_id", "completed_at", "has_note"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "title": "CompletionDeleted",
      "properties": {
        "completion_id": {"type": "string"},
        "activity_id": {"type": "string"},
        "user_id": {"type": "string"},
        "occurred_at": {"type": "string", "format": "date-time"}
      },
      "required": ["completion_id", "activity_id", "user_id", "occurred_at"],
      "additionalProperties": false
    }
  ]
}`
