package auth

// Known OAuth scopes used by the habit API.
const (
	ScopeHabitsRead  = "habits:read"
	ScopeHabitsWrite = "habits:write"
)
