package model

import (
	"time"

	"gorm.io/datatypes"
)

// ChatRoom is a named room users can join and post messages to.
type ChatRoom struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatorID   int64     `gorm:"not null" json:"creator_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// RoomMember records membership of a user in a room.
type RoomMember struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID   int64     `gorm:"uniqueIndex:idx_room_member;not null" json:"room_id"`
	UserID   int64     `gorm:"uniqueIndex:idx_room_member;not null" json:"user_id"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// Message is a chat message posted to a room.
type Message struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID     int64          `gorm:"index:idx_message_room;not null" json:"room_id"`
	SenderID   int64          `gorm:"not null" json:"sender_id"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	Attachment datatypes.JSON `json:"attachment,omitempty"`
	CreatedAt  time.Time      `gorm:"index:idx_message_created;autoCreateTime" json:"created_at"`
}
