package model

import "time"

// User presence statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusBusy    = "busy"
	StatusAway    = "away"
)

// ValidStatus reports whether s is one of the known presence statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy, StatusAway:
		return true
	}
	return false
}

// User is a registered account. Email is the login key.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:128;not null" json:"email"`
	Username     string     `gorm:"size:64" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Bio          string     `gorm:"type:text" json:"bio"`
	AvatarURL    string     `gorm:"size:255" json:"avatar_url"`
	Status       string     `gorm:"size:20;default:'offline'" json:"status"`
	IsOnline     bool       `gorm:"default:false" json:"is_online"`
	LastOnline   *time.Time `json:"last_online"`
	Banned       bool       `gorm:"default:false" json:"-"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// DisplayName returns the username, falling back to the email local part.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	for i := 0; i < len(u.Email); i++ {
		if u.Email[i] == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}
