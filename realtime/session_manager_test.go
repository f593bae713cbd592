package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRegisterDisplacesDuplicate(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())

	first := NewSession(1, "alice", nil, zap.NewNop())
	second := NewSession(1, "alice", nil, zap.NewNop())
	sm.Register(first)
	sm.Register(second)

	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())
	assert.Same(t, second, sm.Get(1))
	assert.Equal(t, 1, sm.Count())

	// The displaced session's deferred unregister must not evict the
	// replacement.
	sm.Unregister(first)
	assert.Same(t, second, sm.Get(1))

	sm.Unregister(second)
	assert.Nil(t, sm.Get(1))
	assert.False(t, sm.IsOnline(1))
}

func TestGetByName(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())
	s := NewSession(1, "Alice", nil, zap.NewNop())
	sm.Register(s)

	assert.Same(t, s, sm.GetByName("alice"))
	assert.Same(t, s, sm.GetByName("ALICE"))
	assert.Nil(t, sm.GetByName("bob"))
}

func TestMembers(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())

	alice := NewSession(1, "alice", nil, zap.NewNop())
	alice.Join(7)
	bob := NewSession(2, "bob", nil, zap.NewNop())
	bob.Join(7)
	carol := NewSession(3, "carol", nil, zap.NewNop())
	sm.Register(alice)
	sm.Register(bob)
	sm.Register(carol)

	members := sm.Members(7)
	assert.Len(t, members, 2)

	bob.Leave(7)
	assert.Len(t, sm.Members(7), 1)
	assert.False(t, bob.InChannel(7))
}

func TestSlowSessionDropsInsteadOfBlocking(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())
	s := NewSession(1, "alice", nil, zap.NewNop())
	sm.Register(s)

	// Nothing drains SendChan; overfilling it must not block the caller.
	data := []byte(`{"type":"new-message"}`)
	for i := 0; i < sendChanBuf+10; i++ {
		sm.BroadcastAll(data)
	}
	assert.Equal(t, sendChanBuf, len(s.SendChan))
}
