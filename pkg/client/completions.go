package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Completion mirrors the server's completion resource.
type Completion struct {
	ID          string    `json:"id"`
	ActivityID  string    `json:"activityId"`
	UserID      string    `json:"userId"`
	CompletedAt time.Time `json:"completedAt"`
	Note        *string   `json:"note"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CompletionPage is one page of a completion listing.
type CompletionPage struct {
	Data  []Completion `json:"data"`
	Total int          `json:"total"`
}

// ListCompletionsOptions selects the window and page of a completion listing.
// From and To are rendered as RFC 3339 timestamps.
type ListCompletionsOptions struct {
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

func completionsPrefix() Key {
	return NewKey("completions")
}

func completionsListKey(opts ListCompletionsOptions) Key {
	return NewKey("completions", "list",
		opts.From.UTC().Format(time.RFC3339),
		opts.To.UTC().Format(time.RFC3339),
		fmt.Sprintf("limit=%d", opts.Limit),
		fmt.Sprintf("offset=%d", opts.Offset))
}

func (opts ListCompletionsOptions) query() url.Values {
	q := url.Values{}
	q.Set("from", opts.From.Format(time.RFC3339))
	q.Set("to", opts.To.Format(time.RFC3339))
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	return q
}

// ListCompletions returns completions in the given window, served from the
// cache when fresh.
func (c *Client) ListCompletions(ctx context.Context, opts ListCompletionsOptions) (CompletionPage, error) {
	key := completionsListKey(opts)
	c.cache.Register(key, func(ctx context.Context) (any, error) {
		var page CompletionPage
		if err := c.do(ctx, "GET", "/v1/completions", opts.query(), nil, &page); err != nil {
			return nil, err
		}
		return page, nil
	})
	return GetData[CompletionPage](ctx, c.cache, key)
}

// LogCompletionInput is the payload for LogCompletion.
type LogCompletionInput struct {
	ActivityID  string    `json:"activityId"`
	CompletedAt time.Time `json:"completedAt"`
	Note        *string   `json:"note,omitempty"`
}

// LogCompletion records a completion optimistically: cached windows covering
// the completion time show it immediately under a temporary id.
func (c *Client) LogCompletion(ctx context.Context, input LogCompletionInput, onState func(MutationState)) (Completion, error) {
	tempID := "temp-" + uuid.NewString()
	now := time.Now()

	// The today view and statistics derive from completions, so completion
	// writes invalidate them alongside the completion windows.
	m := Mutation[LogCompletionInput, Completion]{
		Scope:   []Key{completionsPrefix(), activitiesTodayKey(), statisticsPrefix()},
		OnState: onState,
		Apply: func(s *Store, req LogCompletionInput) {
			placeholder := Completion{
				ID:          tempID,
				ActivityID:  req.ActivityID,
				CompletedAt: req.CompletedAt,
				Note:        req.Note,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			UpdateData(s, completionsPrefix(), func(_ Key, page CompletionPage) CompletionPage {
				page.Data = append(append([]Completion(nil), page.Data...), placeholder)
				page.Total++
				return page
			})
		},
		Call: func(ctx context.Context, req LogCompletionInput) (Completion, error) {
			var created Completion
			if err := c.do(ctx, "POST", "/v1/completions", nil, req, &created); err != nil {
				return Completion{}, err
			}
			return created, nil
		},
		Reconcile: func(s *Store, _ LogCompletionInput, created Completion) {
			UpdateData(s, completionsPrefix(), func(_ Key, page CompletionPage) CompletionPage {
				data := append([]Completion(nil), page.Data...)
				for i := range data {
					if data[i].ID == tempID {
						data[i] = created
					}
				}
				page.Data = data
				return page
			})
		},
	}
	return RunMutation(ctx, c.cache, m, input)
}

// DeleteCompletion removes a completion optimistically.
func (c *Client) DeleteCompletion(ctx context.Context, id string, onState func(MutationState)) error {
	m := Mutation[string, struct{}]{
		Scope:   []Key{completionsPrefix(), activitiesTodayKey(), statisticsPrefix()},
		OnState: onState,
		Apply: func(s *Store, completionID string) {
			UpdateData(s, completionsPrefix(), func(_ Key, page CompletionPage) CompletionPage {
				data := make([]Completion, 0, len(page.Data))
				for _, cp := range page.Data {
					if cp.ID != completionID {
						data = append(data, cp)
					}
				}
				if len(data) < len(page.Data) {
					page.Total--
				}
				page.Data = data
				return page
			})
		},
		Call: func(ctx context.Context, completionID string) (struct{}, error) {
			return struct{}{}, c.do(ctx, "DELETE", "/v1/completions/"+completionID, nil, nil, nil)
		},
	}
	_, err := RunMutation(ctx, c.cache, m, id)
	return err
}
