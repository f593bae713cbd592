package model

import (
	"time"

	"gorm.io/datatypes"
)

// AdminLog is one append-only record of an administrative action.
// Rows are never updated or deleted.
type AdminLog struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AdminID      int64          `gorm:"index;not null" json:"admin_id"`
	Action       string         `gorm:"size:64;not null" json:"action"`
	TargetUserID *int64         `gorm:"index" json:"target_user_id"`
	Details      string         `gorm:"type:text" json:"details"`
	Meta         datatypes.JSON `json:"meta"`
	CreatedAt    time.Time      `gorm:"index:idx_admin_log_created;autoCreateTime:milli" json:"created_at"`
}
