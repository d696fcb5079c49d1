// Package auth provides session management types.
package auth

import (
	"time"
)

// SessionConfig defines session parameters. Timeouts align with ward
// shifts: a token survives one 8-hour shift, an absolute ceiling of 12
// hours covers extended weekend shifts.
type SessionConfig struct {
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	IdleTimeout           time.Duration
	AbsoluteTimeout       time.Duration
	MaxConcurrentSessions int // per staff member, one per workstation
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		AccessTokenTTL:        15 * time.Minute,
		RefreshTokenTTL:       8 * time.Hour,
		IdleTimeout:           30 * time.Minute,
		AbsoluteTimeout:       12 * time.Hour,
		MaxConcurrentSessions: 3,
	}
}

// Session represents an active staff session.
type Session struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Department  string       `json:"department,omitempty"`
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`

	// Timestamps
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`

	// Client info
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// IsExpired checks if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsIdle checks if the session has been idle too long.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return time.Since(s.LastActivityAt) > timeout
}

// Touch records activity on the session.
func (s *Session) Touch() {
	s.LastActivityAt = time.Now()
}
