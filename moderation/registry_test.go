package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/nvoropaev/concord/apperr"
	"github.com/nvoropaev/concord/audit"
	"github.com/nvoropaev/concord/model"
	"github.com/nvoropaev/concord/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testClock drives the registry's notion of "now" so expiry can be tested
// without sleeping.
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(t *testing.T) (*Registry, *audit.Service, *testClock, *model.User, *model.User) {
	db := testutil.SetupTestDB(t)
	admin := testutil.SeedUser(t, db, "admin")
	victim := testutil.SeedUser(t, db, "victim")
	auditSvc := audit.New(db, zap.NewNop())
	reg := New(db, auditSvc, zap.NewNop())
	clock := &testClock{t: time.Now()}
	reg.now = clock.Now
	return reg, auditSvc, clock, admin, victim
}

func TestBanUnban(t *testing.T) {
	reg, auditSvc, _, admin, victim := newTestRegistry(t)
	ctx := context.Background()

	banned, err := reg.IsBanned(ctx, victim.ID)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, reg.Ban(ctx, victim.ID, admin.ID, "spam"))

	banned, err = reg.IsBanned(ctx, victim.ID)
	require.NoError(t, err)
	assert.True(t, banned)

	list, err := reg.ListBanned(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "victim", list[0].Username)
	assert.Equal(t, "admin", list[0].BannedByUsername)
	assert.Equal(t, "spam", list[0].Reason)

	require.NoError(t, reg.Unban(ctx, victim.ID, admin.ID))
	banned, err = reg.IsBanned(ctx, victim.ID)
	require.NoError(t, err)
	assert.False(t, banned)

	entries, err := auditSvc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionUnban, entries[0].Action)
	assert.Equal(t, audit.ActionBan, entries[1].Action)
}

func TestBanReplacesExisting(t *testing.T) {
	reg, _, _, admin, victim := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Ban(ctx, victim.ID, admin.ID, "first"))
	require.NoError(t, reg.Ban(ctx, victim.ID, admin.ID, "second"))

	list, err := reg.ListBanned(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Reason)
}

func TestMuteExpiresLazily(t *testing.T) {
	reg, _, clock, admin, victim := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Mute(ctx, victim.ID, admin.ID, "flood", 5))

	muted, err := reg.IsMuted(ctx, victim.ID)
	require.NoError(t, err)
	assert.True(t, muted)

	// Past the expiry: no writes happened, but the mute no longer holds.
	clock.Advance(6 * time.Minute)
	muted, err = reg.IsMuted(ctx, victim.ID)
	require.NoError(t, err)
	assert.False(t, muted)

	// The row is still there until swept.
	var n int64
	require.NoError(t, reg.db.Model(&model.MuteRecord{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestMuteInvalidDuration(t *testing.T) {
	reg, _, _, admin, victim := newTestRegistry(t)

	err := reg.Mute(context.Background(), victim.ID, admin.ID, "x", 0)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
	err = reg.Mute(context.Background(), victim.ID, admin.ID, "x", -5)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestMuteReplacesExisting(t *testing.T) {
	reg, _, clock, admin, victim := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Mute(ctx, victim.ID, admin.ID, "first", 5))
	require.NoError(t, reg.Mute(ctx, victim.ID, admin.ID, "second", 60))

	record, err := reg.ActiveMute(ctx, victim.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "second", record.Reason)

	// Survives the first mute's window because the second replaced it.
	clock.Advance(10 * time.Minute)
	muted, err := reg.IsMuted(ctx, victim.ID)
	require.NoError(t, err)
	assert.True(t, muted)
}

func TestUnmute(t *testing.T) {
	reg, _, _, admin, victim := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Mute(ctx, victim.ID, admin.ID, "flood", 30))
	require.NoError(t, reg.Unmute(ctx, victim.ID, admin.ID))

	muted, err := reg.IsMuted(ctx, victim.ID)
	require.NoError(t, err)
	assert.False(t, muted)

	// Unmuting a user who is not muted is a no-op.
	require.NoError(t, reg.Unmute(ctx, victim.ID, admin.ID))
}

func TestListActiveMutes(t *testing.T) {
	reg, _, clock, admin, victim := newTestRegistry(t)
	ctx := context.Background()
	other := testutil.SeedUser(t, reg.db, "other")

	require.NoError(t, reg.Mute(ctx, victim.ID, admin.ID, "short", 5))
	require.NoError(t, reg.Mute(ctx, other.ID, admin.ID, "long", 60))

	list, err := reg.ListActiveMutes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "admin", list[0].MutedByUsername)

	clock.Advance(10 * time.Minute)
	list, err = reg.ListActiveMutes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "other", list[0].Username)
}

func TestSweepExpired(t *testing.T) {
	reg, _, clock, admin, victim := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Mute(ctx, victim.ID, admin.ID, "flood", 5))

	// Expired but inside the grace window: kept.
	clock.Advance(10 * time.Minute)
	swept, err := reg.SweepExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, swept)

	clock.Advance(2 * time.Hour)
	swept, err = reg.SweepExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)

	var n int64
	require.NoError(t, reg.db.Model(&model.MuteRecord{}).Count(&n).Error)
	assert.Zero(t, n)
}
