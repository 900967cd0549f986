package model

import "time"

// Friendship edge states.
const (
	FriendshipActive     = "active"
	FriendshipBlocked    = "blocked"
	FriendshipUnfriended = "unfriended"

	// FriendshipNone is the answer for a pair with no edge at all.
	// Never stored; a missing row means not friends.
	FriendshipNone = "not_friends"
)

// Friendship is one directed edge of a mutual relationship. Accepting a
// request creates both (user, friend) and (friend, user) so either side
// can query its friends without an OR join.
type Friendship struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_friendship_pair;index:idx_friendship_user_status;not null" json:"user_id"`
	FriendID  int64     `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"friend_id"`
	Status    string    `gorm:"size:20;index:idx_friendship_user_status;default:'active'" json:"status"`
	BlockedBy *int64    `json:"blocked_by"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
