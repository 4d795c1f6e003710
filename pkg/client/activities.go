package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Schedule mirrors the server's schedule document.
type Schedule struct {
	Type              string `json:"type"`
	Days              []int  `json:"days,omitempty"`
	TargetCompletions int    `json:"targetCompletions"`
}

// Activity mirrors the server's activity resource.
type Activity struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Type        string     `json:"type"`
	Schedule    Schedule   `json:"schedule"`
	SortOrder   int        `json:"sortOrder"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ArchivedAt  *time.Time `json:"archivedAt,omitempty"`
}

// ActivityPage is one page of an activity listing.
type ActivityPage struct {
	Data  []Activity `json:"data"`
	Total int        `json:"total"`
}

// EnrichedActivity mirrors one entry of the server's today view: an activity
// joined with its recent completions bucketed by local date key.
type EnrichedActivity struct {
	Activity
	CompletionsByDate map[string][]Completion `json:"completionsByDate"`
}

// TodayPage is the display-ordered today view.
type TodayPage struct {
	Data  []EnrichedActivity `json:"data"`
	Total int                `json:"total"`
}

// ListActivitiesOptions selects which activities a listing returns.
type ListActivitiesOptions struct {
	IncludeArchived bool
	Limit           int
	Offset          int
}

func activitiesPrefix() Key {
	return NewKey("activities")
}

func activitiesListPrefix() Key {
	return NewKey("activities", "list")
}

func activitiesListKey(opts ListActivitiesOptions) Key {
	return NewKey("activities", "list",
		fmt.Sprintf("archived=%t", opts.IncludeArchived),
		fmt.Sprintf("limit=%d", opts.Limit),
		fmt.Sprintf("offset=%d", opts.Offset))
}

func activityDetailKey(id string) Key {
	return NewKey("activities", "detail", id)
}

func activitiesTodayKey() Key {
	return NewKey("activities", "today")
}

func (opts ListActivitiesOptions) query() url.Values {
	q := url.Values{}
	if opts.IncludeArchived {
		q.Set("includeArchived", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	return q
}

// ListActivities returns a page of activities, served from the cache when
// fresh.
func (c *Client) ListActivities(ctx context.Context, opts ListActivitiesOptions) (ActivityPage, error) {
	key := activitiesListKey(opts)
	c.cache.Register(key, func(ctx context.Context) (any, error) {
		var page ActivityPage
		if err := c.do(ctx, "GET", "/v1/activities", opts.query(), nil, &page); err != nil {
			return nil, err
		}
		return page, nil
	})
	return GetData[ActivityPage](ctx, c.cache, key)
}

// TodayActivities returns the display-ordered today view, served from the
// cache when fresh.
func (c *Client) TodayActivities(ctx context.Context) (TodayPage, error) {
	key := activitiesTodayKey()
	c.cache.Register(key, func(ctx context.Context) (any, error) {
		var page TodayPage
		if err := c.do(ctx, "GET", "/v1/activities/today", nil, nil, &page); err != nil {
			return nil, err
		}
		return page, nil
	})
	return GetData[TodayPage](ctx, c.cache, key)
}

// GetActivity returns a single activity, served from the cache when fresh.
func (c *Client) GetActivity(ctx context.Context, id string) (Activity, error) {
	key := activityDetailKey(id)
	c.cache.Register(key, func(ctx context.Context) (any, error) {
		var activity Activity
		if err := c.do(ctx, "GET", "/v1/activities/"+id, nil, nil, &activity); err != nil {
			return nil, err
		}
		return activity, nil
	})
	return GetData[Activity](ctx, c.cache, key)
}

// CreateActivityInput is the payload for CreateActivity.
type CreateActivityInput struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Type        string   `json:"type"`
	Schedule    Schedule `json:"schedule"`
	SortOrder   int      `json:"sortOrder"`
}

// TempID reports whether an activity id is a client-side placeholder from an
// optimistic create that has not been reconciled yet.
func TempID(id string) bool {
	return len(id) > 5 && id[:5] == "temp-"
}

// CreateActivity creates an activity optimistically: cached listings show the
// new entry under a temporary id immediately, and the server-assigned record
// replaces it when the call succeeds.
func (c *Client) CreateActivity(ctx context.Context, input CreateActivityInput, onState func(MutationState)) (Activity, error) {
	tempID := "temp-" + uuid.NewString()
	now := time.Now()

	m := Mutation[CreateActivityInput, Activity]{
		Scope:   []Key{activitiesPrefix()},
		OnState: onState,
		Apply: func(s *Store, req CreateActivityInput) {
			placeholder := Activity{
				ID:          tempID,
				Title:       req.Title,
				Description: req.Description,
				Type:        req.Type,
				Schedule:    req.Schedule,
				SortOrder:   req.SortOrder,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			UpdateData(s, activitiesListPrefix(), func(_ Key, page ActivityPage) ActivityPage {
				page.Data = append(append([]Activity(nil), page.Data...), placeholder)
				page.Total++
				return page
			})
		},
		Call: func(ctx context.Context, req CreateActivityInput) (Activity, error) {
			var created Activity
			if err := c.do(ctx, "POST", "/v1/activities", nil, req, &created); err != nil {
				return Activity{}, err
			}
			return created, nil
		},
		Reconcile: func(s *Store, _ CreateActivityInput, created Activity) {
			UpdateData(s, activitiesListPrefix(), func(_ Key, page ActivityPage) ActivityPage {
				data := append([]Activity(nil), page.Data...)
				for i := range data {
					if data[i].ID == tempID {
						data[i] = created
					}
				}
				page.Data = data
				return page
			})
			s.Set(activityDetailKey(created.ID), created)
		},
	}
	return RunMutation(ctx, c.cache, m, input)
}

// UpdateActivityInput carries a partial activity update. Nil fields are left
// unchanged on the server.
type UpdateActivityInput struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Type        *string   `json:"type,omitempty"`
	Schedule    *Schedule `json:"schedule,omitempty"`
	SortOrder   *int      `json:"sortOrder,omitempty"`
}

// UpdateActivity patches an activity optimistically.
func (c *Client) UpdateActivity(ctx context.Context, id string, input UpdateActivityInput, onState func(MutationState)) (Activity, error) {
	now := time.Now()
	applyPatch := func(a Activity) Activity {
		if input.Title != nil {
			a.Title = *input.Title
		}
		if input.Description != nil {
			a.Description = input.Description
		}
		if input.Type != nil {
			a.Type = *input.Type
		}
		if input.Schedule != nil {
			a.Schedule = *input.Schedule
		}
		if input.SortOrder != nil {
			a.SortOrder = *input.SortOrder
		}
		a.UpdatedAt = now
		return a
	}

	m := Mutation[UpdateActivityInput, Activity]{
		Scope:   []Key{activitiesPrefix()},
		OnState: onState,
		Apply: func(s *Store, _ UpdateActivityInput) {
			UpdateData(s, activitiesListPrefix(), func(_ Key, page ActivityPage) ActivityPage {
				data := append([]Activity(nil), page.Data...)
				for i := range data {
					if data[i].ID == id {
						data[i] = applyPatch(data[i])
					}
				}
				page.Data = data
				return page
			})
			UpdateData(s, activityDetailKey(id), func(_ Key, a Activity) Activity {
				return applyPatch(a)
			})
		},
		Call: func(ctx context.Context, req UpdateActivityInput) (Activity, error) {
			var updated Activity
			if err := c.do(ctx, "PATCH", "/v1/activities/"+id, nil, req, &updated); err != nil {
				return Activity{}, err
			}
			return updated, nil
		},
		Reconcile: func(s *Store, _ UpdateActivityInput, updated Activity) {
			s.Set(activityDetailKey(id), updated)
		},
	}
	return RunMutation(ctx, c.cache, m, input)
}

// ArchiveActivity archives an activity optimistically.
func (c *Client) ArchiveActivity(ctx context.Context, id string, onState func(MutationState)) (Activity, error) {
	return c.setArchived(ctx, id, true, onState)
}

// UnarchiveActivity restores an archived activity optimistically.
func (c *Client) UnarchiveActivity(ctx context.Context, id string, onState func(MutationState)) (Activity, error) {
	return c.setArchived(ctx, id, false, onState)
}

func (c *Client) setArchived(ctx context.Context, id string, archived bool, onState func(MutationState)) (Activity, error) {
	action := "unarchive"
	if archived {
		action = "archive"
	}
	now := time.Now()
	toggle := func(a Activity) Activity {
		if archived {
			a.ArchivedAt = &now
		} else {
			a.ArchivedAt = nil
		}
		a.UpdatedAt = now
		return a
	}

	m := Mutation[struct{}, Activity]{
		Scope:   []Key{activitiesPrefix()},
		OnState: onState,
		Apply: func(s *Store, _ struct{}) {
			UpdateData(s, activitiesListPrefix(), func(_ Key, page ActivityPage) ActivityPage {
				data := append([]Activity(nil), page.Data...)
				for i := range data {
					if data[i].ID == id {
						data[i] = toggle(data[i])
					}
				}
				page.Data = data
				return page
			})
			UpdateData(s, activityDetailKey(id), func(_ Key, a Activity) Activity {
				return toggle(a)
			})
		},
		Call: func(ctx context.Context, _ struct{}) (Activity, error) {
			var updated Activity
			if err := c.do(ctx, "POST", "/v1/activities/"+id+"/"+action, nil, nil, &updated); err != nil {
				return Activity{}, err
			}
			return updated, nil
		},
		Reconcile: func(s *Store, _ struct{}, updated Activity) {
			s.Set(activityDetailKey(id), updated)
		},
	}
	return RunMutation(ctx, c.cache, m, struct{}{})
}

// DeleteActivity removes an activity optimistically.
func (c *Client) DeleteActivity(ctx context.Context, id string, onState func(MutationState)) error {
	m := Mutation[string, struct{}]{
		Scope:   []Key{activitiesPrefix()},
		OnState: onState,
		Apply: func(s *Store, activityID string) {
			UpdateData(s, activitiesListPrefix(), func(_ Key, page ActivityPage) ActivityPage {
				data := make([]Activity, 0, len(page.Data))
				for _, a := range page.Data {
					if a.ID != activityID {
						data = append(data, a)
					}
				}
				if len(data) < len(page.Data) {
					page.Total--
				}
				page.Data = data
				return page
			})
		},
		Call: func(ctx context.Context, activityID string) (struct{}, error) {
			return struct{}{}, c.do(ctx, "DELETE", "/v1/activities/"+activityID, nil, nil, nil)
		},
	}
	_, err := RunMutation(ctx, c.cache, m, id)
	return err
}
