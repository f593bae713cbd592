package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/nvoropaev/concord/apperr"
	"github.com/nvoropaev/concord/audit"
	"github.com/nvoropaev/concord/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry owns ban and mute sanction records. Bans are indefinite; mutes
// carry an expiry timestamp that is checked lazily on every read. No
// background process is required for correctness: an expired mute row is
// simply ignored by IsMuted/ListActiveMutes until it is unmuted or swept.
type Registry struct {
	db     *gorm.DB
	audit  *audit.Service
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Registry.
func New(db *gorm.DB, auditSvc *audit.Service, logger *zap.Logger) *Registry {
	return &Registry{db: db, audit: auditSvc, logger: logger, now: time.Now}
}

// Ban upserts the single ban record for userID. Banning an already banned
// user replaces the actor and reason, it does not stack.
func (r *Registry) Ban(ctx context.Context, userID, byID int64, reason string) error {
	record := &model.BanRecord{
		UserID:   userID,
		BannedBy: byID,
		Reason:   reason,
		BannedAt: r.now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"banned_by", "reason", "banned_at"}),
	}).Create(record).Error
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return r.audit.Append(ctx, byID, audit.ActionBan, &userID, reason,
		map[string]interface{}{"user_id": userID, "reason": reason})
}

// Unban deletes the ban record. Unbanning a user who is not banned is a no-op.
func (r *Registry) Unban(ctx context.Context, userID, byID int64) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.BanRecord{}).Error; err != nil {
		return apperr.StoreUnavailable(err)
	}
	return r.audit.Append(ctx, byID, audit.ActionUnban, &userID, "", nil)
}

// IsBanned reports whether an active ban record exists for userID.
func (r *Registry) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.BanRecord{}).
		Where("user_id = ?", userID).Count(&n).Error
	if err != nil {
		return false, apperr.StoreUnavailable(err)
	}
	return n > 0, nil
}

// Mute upserts the mute record for userID with expiry now + durationMinutes.
// A new mute replaces the previous one entirely.
func (r *Registry) Mute(ctx context.Context, userID, byID int64, reason string, durationMinutes int) error {
	if durationMinutes <= 0 {
		return apperr.InvalidArg("mute duration must be positive")
	}
	now := r.now()
	record := &model.MuteRecord{
		UserID:     userID,
		MutedBy:    byID,
		Reason:     reason,
		MutedUntil: now.Add(time.Duration(durationMinutes) * time.Minute),
		MutedAt:    now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"muted_by", "reason", "muted_until", "muted_at"}),
	}).Create(record).Error
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return r.audit.Append(ctx, byID, audit.ActionMute, &userID, reason,
		map[string]interface{}{"user_id": userID, "reason": reason, "duration_min": durationMinutes})
}

// Unmute deletes the mute record, whether or not it has already expired.
func (r *Registry) Unmute(ctx context.Context, userID, byID int64) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.MuteRecord{}).Error; err != nil {
		return apperr.StoreUnavailable(err)
	}
	return r.audit.Append(ctx, byID, audit.ActionUnmute, &userID, "", nil)
}

// ActiveMute returns the mute record for userID if it is still in effect,
// or nil. Expiry is decided here, against the current clock; the row itself
// may outlive its validity.
func (r *Registry) ActiveMute(ctx context.Context, userID int64) (*model.MuteRecord, error) {
	var record model.MuteRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND muted_until > ?", userID, r.now()).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return &record, nil
}

// IsMuted reports whether an unexpired mute record exists for userID.
func (r *Registry) IsMuted(ctx context.Context, userID int64) (bool, error) {
	record, err := r.ActiveMute(ctx, userID)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// BannedUser is a ban record with usernames resolved.
type BannedUser struct {
	model.BanRecord
	Username         string `json:"username"`
	BannedByUsername string `json:"banned_by_username"`
}

// ListBanned returns all ban records, newest first.
func (r *Registry) ListBanned(ctx context.Context) ([]BannedUser, error) {
	var result []BannedUser
	err := r.db.WithContext(ctx).
		Table("ban_records").
		Select("ban_records.*, banned.username AS username, actors.username AS banned_by_username").
		Joins("JOIN users banned ON ban_records.user_id = banned.id").
		Joins("JOIN users actors ON ban_records.banned_by = actors.id").
		Order("ban_records.banned_at DESC").
		Scan(&result).Error
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return result, nil
}

// MutedUser is a mute record with usernames resolved.
type MutedUser struct {
	model.MuteRecord
	Username        string `json:"username"`
	MutedByUsername string `json:"muted_by_username"`
}

// ListActiveMutes returns unexpired mute records, newest first. Rows whose
// muted_until has passed are filtered out even if they still exist.
func (r *Registry) ListActiveMutes(ctx context.Context) ([]MutedUser, error) {
	var result []MutedUser
	err := r.db.WithContext(ctx).
		Table("mute_records").
		Select("mute_records.*, muted.username AS username, actors.username AS muted_by_username").
		Joins("JOIN users muted ON mute_records.user_id = muted.id").
		Joins("JOIN users actors ON mute_records.muted_by = actors.id").
		Where("mute_records.muted_until > ?", r.now()).
		Order("mute_records.muted_at DESC").
		Scan(&result).Error
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return result, nil
}

// SweepExpired removes mute rows whose expiry passed more than grace ago.
// Purely hygiene: reads never observe expired rows either way.
func (r *Registry) SweepExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := r.now().Add(-grace)
	res := r.db.WithContext(ctx).
		Where("muted_until < ?", cutoff).
		Delete(&model.MuteRecord{})
	if res.Error != nil {
		return 0, apperr.StoreUnavailable(res.Error)
	}
	if res.RowsAffected > 0 {
		r.logger.Info("swept expired mutes", zap.Int64("rows", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
