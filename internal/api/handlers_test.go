package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/habits/internal/auth"
	"example.com/habits/internal/domain"
	"example.com/habits/internal/persistence/memory"
)

var handlerNow = time.Date(2025, time.November, 4, 12, 0, 0, 0, time.UTC)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	store, err := memory.New()
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	service := domain.NewService(store, time.UTC, domain.WithClock(func() time.Time { return handlerNow }))
	mux := http.NewServeMux()
	NewHandler(service).RegisterRoutes(mux)
	return mux
}

func authed(req *http.Request, userID string, scopes ...string) *http.Request {
	claims := &auth.Claims{
		Subject:   userID,
		Scopes:    make(map[string]struct{}, len(scopes)),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	for _, s := range scopes {
		claims.Scopes[s] = struct{}{}
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target, body, userID string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != "" {
		req = authed(req, userID, scopes...)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func createActivity(t *testing.T, mux *http.ServeMux, userID, body string) domain.Activity {
	t.Helper()
	rr := doJSON(t, mux, http.MethodPost, "/v1/activities", body, userID, auth.ScopeHabitsWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var activity domain.Activity
	if err := json.Unmarshal(rr.Body.Bytes(), &activity); err != nil {
		t.Fatalf("failed to decode activity: %v", err)
	}
	return activity
}

func TestCreateAndListActivities(t *testing.T) {
	mux := newTestMux(t)

	created := createActivity(t, mux, "user-1",
		`{"title":"Morning run","type":"personal","schedule":{"type":"daily","targetCompletions":1}}`)
	if created.ID == "" {
		t.Fatal("expected activity id to be assigned")
	}
	if created.Schedule.Kind != domain.ScheduleDaily {
		t.Fatalf("unexpected schedule kind %q", created.Schedule.Kind)
	}

	rr := doJSON(t, mux, http.MethodGet, "/v1/activities", "", "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data  []domain.Activity `json:"data"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Fatalf("expected one activity got total=%d len=%d", resp.Total, len(resp.Data))
	}
	if resp.Data[0].ID != created.ID {
		t.Fatalf("unexpected activity id %s", resp.Data[0].ID)
	}

	// Another user cannot see it.
	rr = doJSON(t, mux, http.MethodGet, "/v1/activities", "", "user-2", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if resp.Total != 0 {
		t.Fatalf("expected empty list for other user, got total=%d", resp.Total)
	}
}

func TestCreateActivityValidation(t *testing.T) {
	mux := newTestMux(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing title", `{"type":"personal","schedule":{"type":"daily","targetCompletions":1}}`},
		{"zero target", `{"title":"x","schedule":{"type":"daily","targetCompletions":0}}`},
		{"weekly without days", `{"title":"x","schedule":{"type":"weekly","days":[],"targetCompletions":1}}`},
		{"day out of range", `{"title":"x","schedule":{"type":"weekly","days":[7],"targetCompletions":1}}`},
		{"unknown type", `{"title":"x","type":"corporate","schedule":{"type":"daily","targetCompletions":1}}`},
	}
	for _, tc := range cases {
		rr := doJSON(t, mux, http.MethodPost, "/v1/activities", tc.body, "user-1", auth.ScopeHabitsWrite)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d: %s", tc.name, rr.Code, rr.Body.String())
		}
	}
}

func TestAuthGating(t *testing.T) {
	mux := newTestMux(t)

	// No claims at all.
	rr := doJSON(t, mux, http.MethodGet, "/v1/activities", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	// Read scope cannot write.
	rr = doJSON(t, mux, http.MethodPost, "/v1/activities",
		`{"title":"x","schedule":{"type":"daily","targetCompletions":1}}`, "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}

	// Write scope implies read.
	rr = doJSON(t, mux, http.MethodGet, "/v1/activities", "", "user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestPatchActivity(t *testing.T) {
	mux := newTestMux(t)
	created := createActivity(t, mux, "user-1",
		`{"title":"Run","schedule":{"type":"daily","targetCompletions":1}}`)

	rr := doJSON(t, mux, http.MethodPatch, "/v1/activities/"+created.ID,
		`{"title":"Evening run","schedule":{"type":"weekly","days":[1,3],"targetCompletions":2}}`,
		"user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var updated domain.Activity
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode activity: %v", err)
	}
	if updated.Title != "Evening run" {
		t.Fatalf("unexpected title %q", updated.Title)
	}
	if updated.Schedule.Kind != domain.ScheduleWeekly || updated.Schedule.Target != 2 {
		t.Fatalf("unexpected schedule %+v", updated.Schedule)
	}

	// Invalid partial updates are rejected.
	rr = doJSON(t, mux, http.MethodPatch, "/v1/activities/"+created.ID,
		`{"title":"  "}`, "user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	// Unknown activity is a 404.
	rr = doJSON(t, mux, http.MethodPatch, "/v1/activities/nope",
		`{"title":"x"}`, "user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	mux := newTestMux(t)
	created := createActivity(t, mux, "user-1",
		`{"title":"Run","schedule":{"type":"daily","targetCompletions":1}}`)

	rr := doJSON(t, mux, http.MethodPost, "/v1/activities/"+created.ID+"/archive", "", "user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var archived domain.Activity
	if err := json.Unmarshal(rr.Body.Bytes(), &archived); err != nil {
		t.Fatalf("failed to decode activity: %v", err)
	}
	if archived.ArchivedAt == nil {
		t.Fatal("expected archivedAt to be set")
	}

	// Archived activities disappear from the default listing.
	rr = doJSON(t, mux, http.MethodGet, "/v1/activities", "", "user-1", auth.ScopeHabitsRead)
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if resp.Total != 0 {
		t.Fatalf("expected archived activity hidden, got total=%d", resp.Total)
	}

	rr = doJSON(t, mux, http.MethodGet, "/v1/activities?includeArchived=true", "", "user-1", auth.ScopeHabitsRead)
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("expected archived activity with includeArchived, got total=%d", resp.Total)
	}

	rr = doJSON(t, mux, http.MethodPost, "/v1/activities/"+created.ID+"/unarchive", "", "user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var restored domain.Activity
	if err := json.Unmarshal(rr.Body.Bytes(), &restored); err != nil {
		t.Fatalf("failed to decode activity: %v", err)
	}
	if restored.ArchivedAt != nil {
		t.Fatal("expected archivedAt cleared")
	}
}

func TestCompletionLifecycle(t *testing.T) {
	mux := newTestMux(t)
	created := createActivity(t, mux, "user-1",
		`{"title":"Run","schedule":{"type":"daily","targetCompletions":1}}`)

	rr := doJSON(t, mux, http.MethodPost, "/v1/completions",
		`{"activityId":"`+created.ID+`","completedAt":"2025-11-03T09:00:00Z"}`,
		"user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var completion domain.Completion
	if err := json.Unmarshal(rr.Body.Bytes(), &completion); err != nil {
		t.Fatalf("failed to decode completion: %v", err)
	}

	// Date-form bounds cover the named days inclusively.
	rr = doJSON(t, mux, http.MethodGet, "/v1/completions?from=2025-11-03&to=2025-11-03", "", "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var list struct {
		Data  []domain.Completion `json:"data"`
		Total int                 `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if list.Total != 1 {
		t.Fatalf("expected one completion got %d", list.Total)
	}

	// A range before the completion is empty.
	rr = doJSON(t, mux, http.MethodGet, "/v1/completions?from=2025-11-01&to=2025-11-02", "", "user-1", auth.ScopeHabitsRead)
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if list.Total != 0 {
		t.Fatalf("expected no completions got %d", list.Total)
	}

	rr = doJSON(t, mux, http.MethodDelete, "/v1/completions/"+completion.ID, "", "user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodDelete, "/v1/completions/"+completion.ID, "", "user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}

	// Logging against an invisible activity fails.
	rr = doJSON(t, mux, http.MethodPost, "/v1/completions",
		`{"activityId":"`+created.ID+`"}`, "user-2", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestMemberManagement(t *testing.T) {
	mux := newTestMux(t)
	created := createActivity(t, mux, "owner",
		`{"title":"Team habit","type":"group","schedule":{"type":"daily","targetCompletions":1}}`)

	rr := doJSON(t, mux, http.MethodPost, "/v1/activity-members",
		`{"activityId":"`+created.ID+`","userId":"friend","role":"member"}`,
		"owner", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var member domain.ActivityMember
	if err := json.Unmarshal(rr.Body.Bytes(), &member); err != nil {
		t.Fatalf("failed to decode member: %v", err)
	}

	// The new member sees the shared activity now.
	rr = doJSON(t, mux, http.MethodGet, "/v1/activities/"+created.ID, "", "friend", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	// Non-owners cannot add members.
	rr = doJSON(t, mux, http.MethodPost, "/v1/activity-members",
		`{"activityId":"`+created.ID+`","userId":"other"}`,
		"friend", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, mux, http.MethodGet, "/v1/activities/"+created.ID+"/members", "", "owner", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var list struct {
		Data  []domain.ActivityMember `json:"data"`
		Total int                     `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode members: %v", err)
	}
	if list.Total != 2 {
		t.Fatalf("expected owner and member, got %d", list.Total)
	}

	// Members may remove themselves.
	rr = doJSON(t, mux, http.MethodDelete, "/v1/activity-members/"+member.ID, "", "friend", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
}

func TestStatisticsEndpoints(t *testing.T) {
	mux := newTestMux(t)
	created := createActivity(t, mux, "user-1",
		`{"title":"Run","schedule":{"type":"daily","targetCompletions":1}}`)

	rr := doJSON(t, mux, http.MethodPost, "/v1/completions",
		`{"activityId":"`+created.ID+`","completedAt":"2025-11-03T09:00:00Z"}`,
		"user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rr.Code)
	}

	rr = doJSON(t, mux, http.MethodGet, "/v1/statistics/completion_rate?from=2025-11-03&to=2025-11-04", "", "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var stat domain.CompletionRateStatistic
	if err := json.Unmarshal(rr.Body.Bytes(), &stat); err != nil {
		t.Fatalf("failed to decode statistic: %v", err)
	}
	if stat.Summary.Scheduled != 2 || stat.Summary.Completed != 1 {
		t.Fatalf("unexpected summary %+v", stat.Summary)
	}
	if stat.Summary.Rate != 0.5 {
		t.Fatalf("unexpected rate %v", stat.Summary.Rate)
	}

	// Per-activity statistics carry the activity id.
	rr = doJSON(t, mux, http.MethodGet, "/v1/activities/"+created.ID+"/statistics/throughput?from=2025-11-03&to=2025-11-04", "", "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode statistic: %v", err)
	}
	var gotID string
	if err := json.Unmarshal(doc["activityId"], &gotID); err != nil || gotID != created.ID {
		t.Fatalf("expected activityId %s got %q (err=%v)", created.ID, gotID, err)
	}

	// Unknown statistic types and malformed dates are rejected.
	rr = doJSON(t, mux, http.MethodGet, "/v1/statistics/streaks?from=2025-11-03&to=2025-11-04", "", "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodGet, "/v1/statistics/throughput?from=yesterday&to=2025-11-04", "", "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestTodayView(t *testing.T) {
	mux := newTestMux(t)

	// handlerNow is a Tuesday: the first activity is due and unmet, the
	// second is not scheduled today, the third is due and gets completed.
	due := createActivity(t, mux, "user-1",
		`{"title":"Morning run","schedule":{"type":"daily","targetCompletions":1},"sortOrder":2}`)
	offDay := createActivity(t, mux, "user-1",
		`{"title":"Monday review","schedule":{"type":"weekly","days":[1],"targetCompletions":1},"sortOrder":0}`)
	done := createActivity(t, mux, "user-1",
		`{"title":"Hydration","schedule":{"type":"daily","targetCompletions":1},"sortOrder":1}`)

	rr := doJSON(t, mux, http.MethodPost, "/v1/completions",
		`{"activityId":"`+done.ID+`","completedAt":"2025-11-04T09:00:00Z"}`,
		"user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, mux, http.MethodGet, "/v1/activities/today", "", "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data  []domain.EnrichedActivity `json:"data"`
		Total int                       `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode today view: %v", err)
	}
	if resp.Total != 3 {
		t.Fatalf("expected 3 activities got %d", resp.Total)
	}

	order := []string{resp.Data[0].ID, resp.Data[1].ID, resp.Data[2].ID}
	want := []string{due.ID, offDay.ID, done.ID}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", order, want)
		}
	}

	if got := len(resp.Data[2].CompletionsByDate["2025-11-04"]); got != 1 {
		t.Fatalf("expected one completion bucketed on 2025-11-04, got %d", got)
	}

	// Archived activities drop out of the view.
	rr = doJSON(t, mux, http.MethodPost, "/v1/activities/"+due.ID+"/archive", "", "user-1", auth.ScopeHabitsWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	rr = doJSON(t, mux, http.MethodGet, "/v1/activities/today", "", "user-1", auth.ScopeHabitsRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode today view: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 activities after archive got %d", resp.Total)
	}
}
