package models

import (
	"fmt"
	"time"
)

// ResetOutcome is the result of one password reset submission
type ResetOutcome string

const (
	ResetOutcomeMismatch      ResetOutcome = "mismatch"
	ResetOutcomeTooShort      ResetOutcome = "too_short"
	ResetOutcomeSuccess       ResetOutcome = "success"
	ResetOutcomeProviderError ResetOutcome = "provider_error"
	ResetOutcomeBusy          ResetOutcome = "busy"
)

// ResetEvent is an audit record of a password reset submission. It never holds the password.
type ResetEvent struct {
	ID         string       `json:"id"`
	Email      string       `json:"email"`
	Outcome    ResetOutcome `json:"outcome"`
	Message    string       `json:"message"`
	RemoteAddr string       `json:"remote_addr"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Validate checks if the event fields are valid
func (e *ResetEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Email == "" {
		return fmt.Errorf("email is required")
	}
	switch e.Outcome {
	case ResetOutcomeMismatch, ResetOutcomeTooShort, ResetOutcomeSuccess, ResetOutcomeProviderError, ResetOutcomeBusy:
	default:
		return fmt.Errorf("invalid outcome: %q", e.Outcome)
	}
	return nil
}
