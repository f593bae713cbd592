package audit

import (
	"context"
	"encoding/json"

	"github.com/nvoropaev/concord/apperr"
	"github.com/nvoropaev/concord/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Administrative action names recorded in the log.
const (
	ActionBan    = "ban"
	ActionUnban  = "unban"
	ActionMute   = "mute"
	ActionUnmute = "unmute"
)

// Service is the append-only admin action log. Rows are inserted in the same
// request that performed the action and are never mutated afterwards.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New creates an audit Service.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Append inserts one log row. meta is an optional structured snapshot of the
// request that triggered the action; it is stored as JSON alongside the
// human-readable details string.
func (svc *Service) Append(ctx context.Context, adminID int64, action string, targetUserID *int64, details string, meta interface{}) error {
	record := &model.AdminLog{
		AdminID:      adminID,
		Action:       action,
		TargetUserID: targetUserID,
		Details:      details,
	}
	if meta != nil {
		metaJSON, err := json.Marshal(meta)
		if err == nil {
			record.Meta = datatypes.JSON(metaJSON)
		}
	}
	if err := svc.db.WithContext(ctx).Create(record).Error; err != nil {
		svc.logger.Error("audit append failed",
			zap.String("action", action),
			zap.Int64("admin_id", adminID),
			zap.Error(err))
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// Entry is one log row with admin and target usernames resolved.
type Entry struct {
	model.AdminLog
	AdminUsername  string  `json:"admin_username"`
	TargetUsername *string `json:"target_username"`
}

// List returns the most recent entries, newest first.
func (svc *Service) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []Entry
	err := svc.db.WithContext(ctx).
		Table("admin_logs").
		Select("admin_logs.*, admins.username AS admin_username, targets.username AS target_username").
		Joins("JOIN users admins ON admin_logs.admin_id = admins.id").
		Joins("LEFT JOIN users targets ON admin_logs.target_user_id = targets.id").
		Order("admin_logs.created_at DESC, admin_logs.id DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return entries, nil
}
