// Package api exposes HTTP handlers for the habit service.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"example.com/habits/internal/auth"
	"example.com/habits/internal/domain"
	"example.com/habits/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/activities", h.listActivities)
	mux.HandleFunc("POST /v1/activities", h.createActivity)
	mux.HandleFunc("GET /v1/activities/today", h.todayView)
	mux.HandleFunc("GET /v1/activities/{id}", h.getActivity)
	mux.HandleFunc("PATCH /v1/activities/{id}", h.updateActivity)
	mux.HandleFunc("DELETE /v1/activities/{id}", h.deleteActivity)
	mux.HandleFunc("POST /v1/activities/{id}/archive", h.archiveActivity)
	mux.HandleFunc("POST /v1/activities/{id}/unarchive", h.unarchiveActivity)
	mux.HandleFunc("GET /v1/activities/{id}/members", h.listMembers)
	mux.HandleFunc("GET /v1/activities/{id}/statistics/{type}", h.activityStatistics)

	mux.HandleFunc("GET /v1/completions", h.listCompletions)
	mux.HandleFunc("POST /v1/completions", h.createCompletion)
	mux.HandleFunc("DELETE /v1/completions/{id}", h.deleteCompletion)

	mux.HandleFunc("POST /v1/activity-members", h.createMember)
	mux.HandleFunc("DELETE /v1/activity-members/{id}", h.deleteMember)

	mux.HandleFunc("GET /v1/statistics/{type}", h.statistics)

	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requireScope resolves the caller and checks authorization. Read access is
// implied by the write scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	allowed := claims.HasScope(scope)
	if !allowed && scope == auth.ScopeHabitsRead {
		allowed = claims.HasScope(auth.ScopeHabitsWrite)
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("scope %s required", scope))
		return "", false
	}
	return claims.Subject, true
}

// listResponse is the envelope for collection listings.
type listResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsRead)
	if !ok {
		return
	}

	page := persistence.PageFromQuery(r.URL.Query())
	includeArchived := r.URL.Query().Get("includeArchived") == "true"

	activities, total, err := h.service.ListActivities(r.Context(), userID, domain.ListActivitiesOptions{
		IncludeArchived: includeArchived,
		Limit:           page.Limit,
		Offset:          page.Offset,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: activities, Total: total})
}

// todayView returns active activities joined with their recent completions,
// ordered for display: due today and unmet first, then not scheduled today,
// then met (most recently met first).
func (h *Handler) todayView(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsRead)
	if !ok {
		return
	}

	enriched, err := h.service.TodayView(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: enriched, Total: len(enriched)})
}

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	Type        string          `json:"type"`
	Schedule    domain.Schedule `json:"schedule"`
	SortOrder   int             `json:"sortOrder"`
}

// Validate ensures request correctness.
func (r CreateActivityRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	switch domain.ActivityType(r.Type) {
	case "", domain.ActivityPersonal, domain.ActivityGroup, domain.ActivityShared:
	default:
		return fmt.Errorf("unknown activity type %q", r.Type)
	}
	return r.Schedule.Validate()
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activity, err := h.service.CreateActivity(r.Context(), userID, domain.CreateActivityInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        domain.ActivityType(req.Type),
		Schedule:    req.Schedule,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, activity)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsRead)
	if !ok {
		return
	}

	activity, err := h.service.GetActivity(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// UpdateActivityRequest is the partial payload for PATCH /v1/activities/{id}.
type UpdateActivityRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Type        *string          `json:"type"`
	Schedule    *domain.Schedule `json:"schedule"`
	SortOrder   *int             `json:"sortOrder"`
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	var req UpdateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "title is required")
		return
	}
	if req.Schedule != nil {
		if err := req.Schedule.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
	}
	if req.Type != nil {
		switch domain.ActivityType(*req.Type) {
		case domain.ActivityPersonal, domain.ActivityGroup, domain.ActivityShared:
		default:
			writeError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("unknown activity type %q", *req.Type))
			return
		}
	}

	input := domain.UpdateActivityInput{
		Title:       req.Title,
		Description: req.Description,
		Schedule:    req.Schedule,
		SortOrder:   req.SortOrder,
	}
	if req.Type != nil {
		t := domain.ActivityType(*req.Type)
		input.Type = &t
	}

	activity, err := h.service.UpdateActivity(r.Context(), userID, r.PathValue("id"), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	if err := h.service.DeleteActivity(r.Context(), userID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) archiveActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	activity, err := h.service.ArchiveActivity(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *Handler) unarchiveActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	activity, err := h.service.UnarchiveActivity(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (h *Handler) listCompletions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsRead)
	if !ok {
		return
	}

	from, to, err := h.timeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	page := persistence.PageFromQuery(r.URL.Query())
	completions, total, err := h.service.ListCompletions(r.Context(), userID, from, to, page.Limit, page.Offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: completions, Total: total})
}

// CreateCompletionRequest is the payload for POST /v1/completions.
type CreateCompletionRequest struct {
	ActivityID  string    `json:"activityId"`
	CompletedAt time.Time `json:"completedAt"`
	Note        *string   `json:"note,omitempty"`
}

func (h *Handler) createCompletion(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	var req CreateCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.ActivityID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "activityId is required")
		return
	}

	completion, err := h.service.LogCompletion(r.Context(), userID, domain.CreateCompletionInput{
		ActivityID:  req.ActivityID,
		CompletedAt: req.CompletedAt,
		Note:        req.Note,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, completion)
}

func (h *Handler) deleteCompletion(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	if err := h.service.DeleteCompletion(r.Context(), userID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsRead)
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: members, Total: len(members)})
}

// CreateMemberRequest is the payload for POST /v1/activity-members.
type CreateMemberRequest struct {
	ActivityID string `json:"activityId"`
	UserID     string `json:"userId"`
	Role       string `json:"role"`
}

func (h *Handler) createMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.ActivityID) == "" || strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "activityId and userId are required")
		return
	}
	role := domain.MemberRole(req.Role)
	if role == "" {
		role = domain.RoleMember
	}
	if role != domain.RoleOwner && role != domain.RoleMember {
		writeError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("unknown member role %q", role))
		return
	}

	member, err := h.service.AddMember(r.Context(), actorID, domain.CreateMemberInput{
		ActivityID: req.ActivityID,
		UserID:     req.UserID,
		Role:       role,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *Handler) deleteMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), actorID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsRead)
	if !ok {
		return
	}

	statType := domain.StatisticType(r.PathValue("type"))
	if !domain.KnownStatisticType(statType) {
		writeError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("unknown statistic type %q", statType))
		return
	}

	from, to, err := h.dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	stat, err := h.service.Statistics(r.Context(), userID, statType, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stat)
}

func (h *Handler) activityStatistics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireScope(w, r, auth.ScopeHabitsRead)
	if !ok {
		return
	}

	statType := domain.StatisticType(r.PathValue("type"))
	if !domain.KnownStatisticType(statType) {
		writeError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("unknown statistic type %q", statType))
		return
	}

	from, to, err := h.dateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	activityID := r.PathValue("id")
	stat, err := h.service.ActivityStatistics(r.Context(), userID, activityID, statType, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	body, err := withActivityID(stat, activityID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// withActivityID merges the activityId field into the statistic document.
func withActivityID(stat domain.Statistic, activityID string) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(stat)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	id, err := json.Marshal(activityID)
	if err != nil {
		return nil, err
	}
	doc["activityId"] = id
	return doc, nil
}

// dateRange parses the required from/to query parameters as local YYYY-MM-DD
// dates in the service calendar. The range is inclusive on both ends.
func (h *Handler) dateRange(r *http.Request) (time.Time, time.Time, error) {
	loc := h.service.Location()
	from, err := parseLocalDate(r.URL.Query().Get("from"), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
	}
	to, err := parseLocalDate(r.URL.Query().Get("to"), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not precede from")
	}
	return from, to, nil
}

// timeRange parses from/to for completion listings. Each bound accepts an
// RFC 3339 timestamp or a local date; a date lower bound is the start of that
// day, a date upper bound the start of the next (so the named day is covered).
func (h *Handler) timeRange(r *http.Request) (time.Time, time.Time, error) {
	loc := h.service.Location()

	from, err := parseTimeParam(r.URL.Query().Get("from"), loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"), loc, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

func parseLocalDate(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing date parameter")
	}
	return time.ParseInLocation("2006-01-02", raw, loc)
}

func parseTimeParam(raw string, loc *time.Location, upperBound bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("missing time parameter")
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 timestamp or YYYY-MM-DD date, got %q", raw)
	}
	if upperBound {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrCompletionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "completion not found")
	case errors.Is(err, domain.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity member not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "caller is not allowed to perform this operation")
	case errors.Is(err, domain.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
