package models

import (
	"fmt"
	"time"
)

// Session represents the provider-issued session of the signed-in user
type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"` // Never serialize to JSON
	RefreshToken string    `json:"-"` // Never serialize to JSON
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionState represents the current state of a session
type SessionState string

const (
	SessionStateActive  SessionState = "active"
	SessionStateExpired SessionState = "expired"
)

// Validate checks if the session fields are valid
func (s *Session) Validate() error {
	if s.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}

	if s.ExpiresAt.IsZero() {
		return fmt.Errorf("expires_at is required")
	}

	return nil
}

// State returns the current state of the session
func (s *Session) State() SessionState {
	return s.StateAt(time.Now())
}

// StateAt returns the state of the session at the given instant
func (s *Session) StateAt(now time.Time) SessionState {
	if !now.Before(s.ExpiresAt) {
		return SessionStateExpired
	}
	return SessionStateActive
}

// IsExpired returns true if the session has expired
func (s *Session) IsExpired() bool {
	return s.State() == SessionStateExpired
}

// HasEmail reports whether the session carries a usable e-mail address
func (s *Session) HasEmail() bool {
	return s != nil && s.Email != ""
}
