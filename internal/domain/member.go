package domain

import "time"

// MemberRole is the role a user holds on an activity.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// ActivityMember associates a user with an activity under a role. The owner
// membership is created automatically with the activity.
type ActivityMember struct {
	ID         string     `json:"id"`
	ActivityID string     `json:"activityId"`
	UserID     string     `json:"userId"`
	Role       MemberRole `json:"role"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
