package infrastructure

import (
	"sync"
	"time"
)

// UserSession tracks an in-flight callback for one chat.
type UserSession struct {
	ChatID       int64
	IsProcessing bool
	LastClick    time.Time
	mu           sync.Mutex
}

// SessionManager debounces inline-keyboard clicks per chat so a double tap
// on a team button does not run the same update twice.
type SessionManager struct {
	sessions map[int64]*UserSession
	mu       sync.Mutex
	debounce time.Duration
	now      func() time.Time
}

func NewSessionManager(debounce time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*UserSession),
		debounce: debounce,
		now:      time.Now,
	}
}

// lock returns the chat's session, locked. The session is locked before the
// map is released so Sweep never drops a session that is about to be used.
func (sm *SessionManager) lock(chatID int64) *UserSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[chatID]
	if !exists {
		session = &UserSession{ChatID: chatID}
		sm.sessions[chatID] = session
	}
	session.mu.Lock()
	return session
}

// TryBegin returns false when a click for the chat is still being processed
// or arrived within the debounce window. On true the caller must call Finish.
func (sm *SessionManager) TryBegin(chatID int64) bool {
	s := sm.lock(chatID)
	defer s.mu.Unlock()

	now := sm.now()
	if s.IsProcessing || now.Sub(s.LastClick) < sm.debounce {
		return false
	}
	s.LastClick = now
	s.IsProcessing = true
	return true
}

func (sm *SessionManager) Finish(chatID int64) {
	s := sm.lock(chatID)
	defer s.mu.Unlock()
	s.IsProcessing = false
}

// Sweep drops sessions that are not processing and saw no click for idle.
// It returns how many were removed.
func (sm *SessionManager) Sweep(idle time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	removed := 0
	for chatID, s := range sm.sessions {
		s.mu.Lock()
		stale := !s.IsProcessing && now.Sub(s.LastClick) > idle
		s.mu.Unlock()
		if stale {
			delete(sm.sessions, chatID)
			removed++
		}
	}
	return removed
}

// Len is the number of tracked chats.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}
