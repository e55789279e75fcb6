package reset

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmitInProgress is returned when Submit is called while an update is in flight
	ErrSubmitInProgress = errors.New("password update already in progress")
	// ErrNotReady is returned when Submit is called before the session guard let the form through
	ErrNotReady = errors.New("reset form is not ready")
)

// MismatchError means the password and its confirmation differ
type MismatchError struct{}

func (e *MismatchError) Error() string {
	return "passwords do not match"
}

// TooShortError means the password has fewer characters than required
type TooShortError struct {
	Min    int
	Length int
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("password must be at least %d characters, got %d", e.Min, e.Length)
}

// SessionRetrievalError wraps a failure to read the current session.
// It is logged and turned into a redirect, never shown to the user.
type SessionRetrievalError struct {
	Err error
}

func (e *SessionRetrievalError) Error() string {
	return fmt.Sprintf("failed to retrieve session: %v", e.Err)
}

func (e *SessionRetrievalError) Unwrap() error {
	return e.Err
}

// CredentialUpdateError means the identity provider did not accept the new password.
// Message is what the user sees.
type CredentialUpdateError struct {
	Message string
	Err     error
}

func (e *CredentialUpdateError) Error() string {
	return fmt.Sprintf("credential update failed: %v", e.Err)
}

func (e *CredentialUpdateError) Unwrap() error {
	return e.Err
}
