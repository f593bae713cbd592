package social

import (
	"context"

	"github.com/nvoropaev/concord/apperr"
	"github.com/nvoropaev/concord/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Manager owns the friend-edge state machine. A friendship between A and B
// is two directional rows; a pending request is the single forward row from
// requester to target. All cross-row writes go through store transactions,
// never request-level locks.
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New creates a Manager.
func New(db *gorm.DB, logger *zap.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

// SendRequest inserts a pending forward edge owner → target. Sending a
// duplicate request (or requesting an existing friend) is a silent no-op;
// requesting yourself or a user who does not exist is an error.
func (m *Manager) SendRequest(ctx context.Context, ownerID, targetID int64) error {
	if ownerID == targetID {
		return apperr.ErrSelfRequest
	}
	var n int64
	if err := m.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", targetID).Count(&n).Error; err != nil {
		return apperr.StoreUnavailable(err)
	}
	if n == 0 {
		return apperr.ErrUserNotFound
	}
	edge := &model.FriendEdge{
		UserID:   ownerID,
		FriendID: targetID,
		Status:   model.FriendPending,
	}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "friend_id"}},
		DoNothing: true,
	}).Create(edge).Error
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// AcceptRequest flips the pending edge requester → owner to accepted and
// inserts the accepted reverse edge owner → requester. Both writes happen in
// one transaction: a half-applied accept would leave a one-directional
// "ghost" friendship, which is the invariant this type exists to protect.
func (m *Manager) AcceptRequest(ctx context.Context, ownerID, requesterID int64) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.FriendEdge{}).
			Where("user_id = ? AND friend_id = ? AND status = ?",
				requesterID, ownerID, model.FriendPending).
			Update("status", model.FriendAccepted)
		if res.Error != nil {
			return apperr.StoreUnavailable(res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.ErrRequestNotFound
		}
		// The reverse edge may already exist as a pending request from the
		// acceptor (mutual requests); upsert to accepted keeps both rows
		// symmetric either way.
		reverse := &model.FriendEdge{
			UserID:   ownerID,
			FriendID: requesterID,
			Status:   model.FriendAccepted,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "friend_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status"}),
		}).Create(reverse).Error
		if err != nil {
			return apperr.StoreUnavailable(err)
		}
		return nil
	})
}

// RejectRequest deletes the pending edge requester → owner. Rejecting a
// request that does not exist is a no-op.
func (m *Manager) RejectRequest(ctx context.Context, ownerID, requesterID int64) error {
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND friend_id = ? AND status = ?",
			requesterID, ownerID, model.FriendPending).
		Delete(&model.FriendEdge{}).Error
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// RemoveFriend deletes both directional rows. It succeeds even when only one
// direction (or neither) exists, cleaning up whatever is there.
func (m *Manager) RemoveFriend(ctx context.Context, ownerID, targetID int64) error {
	err := m.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
			ownerID, targetID, targetID, ownerID).
		Delete(&model.FriendEdge{}).Error
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// FriendInfo is one row of a friend or pending-request listing.
type FriendInfo struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status"`
}

// Friends returns the accepted friends of userID.
func (m *Manager) Friends(ctx context.Context, userID int64) ([]FriendInfo, error) {
	var result []FriendInfo
	err := m.db.WithContext(ctx).
		Table("friend_edges").
		Select("users.id AS user_id, users.username, users.email, users.avatar, users.status").
		Joins("JOIN users ON friend_edges.friend_id = users.id").
		Where("friend_edges.user_id = ? AND friend_edges.status = ?", userID, model.FriendAccepted).
		Scan(&result).Error
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return result, nil
}

// PendingIncoming returns users whose friend request to userID awaits an answer.
func (m *Manager) PendingIncoming(ctx context.Context, userID int64) ([]FriendInfo, error) {
	var result []FriendInfo
	err := m.db.WithContext(ctx).
		Table("friend_edges").
		Select("users.id AS user_id, users.username, users.email, users.avatar, users.status").
		Joins("JOIN users ON friend_edges.user_id = users.id").
		Where("friend_edges.friend_id = ? AND friend_edges.status = ?", userID, model.FriendPending).
		Scan(&result).Error
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return result, nil
}

// CheckFriendship reports whether an accepted edge a → b exists.
func (m *Manager) CheckFriendship(ctx context.Context, a, b int64) (bool, error) {
	var n int64
	err := m.db.WithContext(ctx).Model(&model.FriendEdge{}).
		Where("user_id = ? AND friend_id = ? AND status = ?", a, b, model.FriendAccepted).
		Count(&n).Error
	if err != nil {
		return false, apperr.StoreUnavailable(err)
	}
	return n > 0, nil
}
