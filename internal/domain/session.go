package domain

import (
	"sync"
	"time"
)

// Session holds the identity claims of one connection. Room membership is
// owned by the hub, not the session.
type Session struct {
	ID           string
	UserID       string
	Username     string
	Verified     bool
	ConnectedAt  time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

// NewSession creates a session for connection id with the name the client
// claimed at connect time. The claim is not verified.
func NewSession(id, claimedName string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Username:     claimedName,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

// Verify records identity taken from a validated credential. A verified
// username replaces the claimed one.
func (s *Session) Verify(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	if username != "" {
		s.Username = username
	}
	s.Verified = true
}

// DisplayName returns the name shown to other room members.
func (s *Session) DisplayName(fallback string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Username != "" {
		return s.Username
	}
	return fallback
}

// GetUserID returns the verified user id, or "" for anonymous sessions.
func (s *Session) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}

// IsVerified reports whether the identity came from a validated token.
func (s *Session) IsVerified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Verified
}

// UpdateActivity updates the last active timestamp.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
