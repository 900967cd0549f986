package model

import "time"

// Friend request lifecycle states. A request leaves pending exactly once.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// FriendRequest is a proposal from sender to receiver to become friends.
// At most one request exists per ordered (sender, receiver) pair.
type FriendRequest struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID   int64     `gorm:"uniqueIndex:idx_request_pair;not null" json:"sender_id"`
	ReceiverID int64     `gorm:"uniqueIndex:idx_request_pair;not null" json:"receiver_id"`
	Status     string    `gorm:"size:20;default:'pending'" json:"status"`
	IsRead     bool      `gorm:"default:false" json:"is_read"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
