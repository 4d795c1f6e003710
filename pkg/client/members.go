package client

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Member mirrors the server's activity-member resource.
type Member struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activityId"`
	UserID     string    `json:"userId"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MemberPage is the membership roster of one activity.
type MemberPage struct {
	Data  []Member `json:"data"`
	Total int      `json:"total"`
}

func membersPrefix(activityID string) Key {
	return NewKey("members", activityID)
}

// ListMembers returns the roster of an activity, served from the cache when
// fresh.
func (c *Client) ListMembers(ctx context.Context, activityID string) (MemberPage, error) {
	key := membersPrefix(activityID)
	c.cache.Register(key, func(ctx context.Context) (any, error) {
		var page MemberPage
		if err := c.do(ctx, "GET", "/v1/activities/"+activityID+"/members", nil, nil, &page); err != nil {
			return nil, err
		}
		return page, nil
	})
	return GetData[MemberPage](ctx, c.cache, key)
}

// AddMemberInput is the payload for AddMember.
type AddMemberInput struct {
	ActivityID string `json:"activityId"`
	UserID     string `json:"userId"`
	Role       string `json:"role"`
}

// AddMember adds a user to an activity optimistically.
func (c *Client) AddMember(ctx context.Context, input AddMemberInput, onState func(MutationState)) (Member, error) {
	tempID := "temp-" + uuid.NewString()
	now := time.Now()

	m := Mutation[AddMemberInput, Member]{
		Scope:   []Key{membersPrefix(input.ActivityID)},
		OnState: onState,
		Apply: func(s *Store, req AddMemberInput) {
			placeholder := Member{
				ID:         tempID,
				ActivityID: req.ActivityID,
				UserID:     req.UserID,
				Role:       req.Role,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			UpdateData(s, membersPrefix(req.ActivityID), func(_ Key, page MemberPage) MemberPage {
				page.Data = append(append([]Member(nil), page.Data...), placeholder)
				page.Total++
				return page
			})
		},
		Call: func(ctx context.Context, req AddMemberInput) (Member, error) {
			var created Member
			if err := c.do(ctx, "POST", "/v1/activity-members", nil, req, &created); err != nil {
				return Member{}, err
			}
			return created, nil
		},
		Reconcile: func(s *Store, req AddMemberInput, created Member) {
			UpdateData(s, membersPrefix(req.ActivityID), func(_ Key, page MemberPage) MemberPage {
				data := append([]Member(nil), page.Data...)
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

// RemoveMember removes a membership optimistically. The activity id locates
// the cached roster to update.
func (c *Client) RemoveMember(ctx context.Context, activityID, memberID string, onState func(MutationState)) error {
	m := Mutation[string, struct{}]{
		Scope:   []Key{membersPrefix(activityID)},
		OnState: onState,
		Apply: func(s *Store, id string) {
			UpdateData(s, membersPrefix(activityID), func(_ Key, page MemberPage) MemberPage {
				data := make([]Member, 0, len(page.Data))
				for _, mem := range page.Data {
					if mem.ID != id {
						data = append(data, mem)
					}
				}
				if len(data) < len(page.Data) {
					page.Total--
				}
				page.Data = data
				return page
			})
		},
		Call: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, c.do(ctx, "DELETE", "/v1/activity-members/"+id, nil, nil, nil)
		},
	}
	_, err := RunMutation(ctx, c.cache, m, memberID)
	return err
}
