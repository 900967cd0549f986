package model

import "time"

// Notification types emitted by the friend-request state machine.
const (
	NotifyFriendRequest         = "friend_request"
	NotifyFriendRequestAccepted = "friend_request_accepted"
	NotifyFriendRequestRejected = "friend_request_rejected"
)

// Notification is one entry in a recipient's newest-first feed.
// AutoDelete rows are transient prompts: acknowledging one removes it
// outright instead of flipping the read flag.
type Notification struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientID      int64     `gorm:"index:idx_notification_recipient;not null" json:"recipient_id"`
	SenderID         *int64    `json:"sender_id"`
	RelatedRequestID *int64    `gorm:"index:idx_notification_request" json:"related_request_id"`
	Text             string    `gorm:"size:255;not null" json:"text"`
	Type             string    `gorm:"size:50;default:'friend_request'" json:"type"`
	IsRead           bool      `gorm:"default:false" json:"is_read"`
	AutoDelete       bool      `gorm:"default:false" json:"auto_delete"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}
