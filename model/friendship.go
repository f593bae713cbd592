package model

import "time"

// Friendship statuses.
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
)

// FriendEdge is one directional row of a friendship. A pending request is a
// single forward row (requester → target); an accepted friendship is always
// two rows, one per direction. (user_id, friend_id) is unique.
type FriendEdge struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_friend_edge;not null" json:"user_id"`
	FriendID  int64     `gorm:"uniqueIndex:idx_friend_edge;not null" json:"friend_id"`
	Status    string    `gorm:"size:16;default:pending" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
