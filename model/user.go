package model

import "time"

// Presence values stored in User.Status.
const (
	StatusOnline  = "Online"
	StatusIdle    = "Idle"
	StatusDND     = "Do Not Disturb"
	StatusOffline = "Offline"
)

// User represents a registered account. Identity and token issuance live at
// the API edge; everything else references users by ID only.
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;size:128;not null" json:"email"`
	PasswordHash string    `gorm:"size:64;not null" json:"-"`
	Avatar       string    `gorm:"size:256" json:"avatar"`
	Status       string    `gorm:"size:32;default:Online" json:"status"`
	IsAdmin      bool      `gorm:"default:false" json:"is_admin"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
