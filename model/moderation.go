package model

import "time"

// BanRecord is an indefinite sanction. At most one row per user; the row's
// existence is the sanction. A new ban replaces reason and actor.
type BanRecord struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	BannedBy int64     `gorm:"not null" json:"banned_by"`
	Reason   string    `gorm:"type:text" json:"reason"`
	BannedAt time.Time `gorm:"autoCreateTime" json:"banned_at"`
}

// MuteRecord is a time-bounded sanction. Validity is decided at read time by
// comparing MutedUntil to the current clock; expired rows stay until an
// explicit unmute or the hygiene sweep removes them.
type MuteRecord struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	MutedBy    int64     `gorm:"not null" json:"muted_by"`
	Reason     string    `gorm:"type:text" json:"reason"`
	MutedUntil time.Time `gorm:"index;not null" json:"muted_until"`
	MutedAt    time.Time `gorm:"autoCreateTime" json:"muted_at"`
}
