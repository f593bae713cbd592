package model_test

import (
	"testing"
	"time"

	"github.com/nvoropaev/concord/model"
	"github.com/nvoropaev/concord/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// User
	user := &model.User{Username: "test_user", Email: "t@example.com", PasswordHash: "hash"}
	require.NoError(t, db.Create(user).Error)
	assert.Greater(t, user.ID, int64(0))

	var found model.User
	require.NoError(t, db.First(&found, user.ID).Error)
	assert.Equal(t, "test_user", found.Username)
	assert.False(t, found.IsAdmin)

	other := &model.User{Username: "other", Email: "o@example.com", PasswordHash: "hash"}
	require.NoError(t, db.Create(other).Error)

	// FriendEdge
	edge := &model.FriendEdge{UserID: user.ID, FriendID: other.ID, Status: model.FriendPending}
	require.NoError(t, db.Create(edge).Error)

	// The (user_id, friend_id) pair is unique.
	dup := &model.FriendEdge{UserID: user.ID, FriendID: other.ID, Status: model.FriendAccepted}
	assert.Error(t, db.Create(dup).Error)

	// Message
	msg := &model.Message{UserID: user.ID, ChannelID: 1, Content: "hello"}
	require.NoError(t, db.Create(msg).Error)
	assert.Greater(t, msg.ID, int64(0))
	assert.False(t, msg.CreatedAt.IsZero())

	// BanRecord
	ban := &model.BanRecord{UserID: other.ID, BannedBy: user.ID, Reason: "spam"}
	require.NoError(t, db.Create(ban).Error)

	// One ban row per user.
	assert.Error(t, db.Create(&model.BanRecord{UserID: other.ID, BannedBy: user.ID}).Error)

	// MuteRecord
	mute := &model.MuteRecord{
		UserID:     other.ID,
		MutedBy:    user.ID,
		MutedUntil: time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, db.Create(mute).Error)

	// AdminLog
	entry := &model.AdminLog{AdminID: user.ID, Action: "ban", TargetUserID: &other.ID}
	require.NoError(t, db.Create(entry).Error)
}
