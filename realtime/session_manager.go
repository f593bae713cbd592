package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager maintains the registry of all connected Sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session // userID → session
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*Session),
		logger:   logger,
	}
}

// Register adds a session. If a previous session exists for the same user,
// it is closed first (handles duplicate login / reconnect).
func (sm *SessionManager) Register(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if old, ok := sm.sessions[s.UserID]; ok {
		old.Close()
		sm.logger.Info("duplicate session displaced",
			zap.Int64("user_id", s.UserID))
	}
	sm.sessions[s.UserID] = s
	sm.logger.Info("session registered",
		zap.Int64("user_id", s.UserID),
		zap.String("username", s.Username))
}

// Unregister removes the session for a user, but only if it is still the
// registered one. A displaced session disconnecting later must not evict
// its replacement.
func (sm *SessionManager) Unregister(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if cur, ok := sm.sessions[s.UserID]; ok && cur == s {
		delete(sm.sessions, s.UserID)
		sm.logger.Info("session unregistered", zap.Int64("user_id", s.UserID))
	}
}

// Get returns the session for a user, or nil if not connected.
func (sm *SessionManager) Get(userID int64) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[userID]
}

// GetByName finds a session by username (case-insensitive).
func (sm *SessionManager) GetByName(name string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	nameLower := strings.ToLower(name)
	for _, s := range sm.sessions {
		if strings.ToLower(s.Username) == nameLower {
			return s
		}
	}
	return nil
}

// IsOnline reports whether a user is currently connected.
func (sm *SessionManager) IsOnline(userID int64) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.sessions[userID]
	return ok
}

// Count returns the number of currently connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns a snapshot slice of all current sessions.
func (sm *SessionManager) All() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// Members returns the sessions currently subscribed to a channel.
func (sm *SessionManager) Members(channelID int64) []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		if s.InChannel(channelID) {
			out = append(out, s)
		}
	}
	return out
}

// BroadcastAll sends a raw pre-encoded event to every connected session.
// Uses non-blocking send so a slow connection cannot stall the broadcast.
func (sm *SessionManager) BroadcastAll(data []byte) {
	for _, s := range sm.All() {
		s.SendRaw(data)
	}
}

// BroadcastToAll sends an event to every connected session (typed version).
func (sm *SessionManager) BroadcastToAll(ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("failed to marshal broadcast event", zap.Error(err))
		return
	}
	sm.BroadcastAll(data)
}

// CloseAll gracefully closes all connected sessions.
func (sm *SessionManager) CloseAll() {
	sessions := sm.All()
	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	// Wait for the sessions to unregister themselves (with timeout).
	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		if sm.Count() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}
