package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shindakun/resetpassword/internal/identity"
)

// recoveryOTPType is the token type carried by password recovery e-mails
const recoveryOTPType = "recovery"

// Provider is the part of the identity client the sign-in flows need
type Provider interface {
	Backend
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	VerifyOTP(ctx context.Context, params identity.VerifyParams) (*identity.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// FlowManager runs the provider flows that create or end a cookie session
type FlowManager struct {
	provider       Provider
	sessionManager *SessionManager
}

// InitFlows creates a new flow manager
func InitFlows(provider Provider, sessionManager *SessionManager) *FlowManager {
	return &FlowManager{
		provider:       provider,
		sessionManager: sessionManager,
	}
}

// SignIn exchanges e-mail and password for a provider session and stores it
func (fm *FlowManager) SignIn(w http.ResponseWriter, r *http.Request, email, password string) error {
	session, err := fm.provider.SignInWithPassword(r.Context(), email, password)
	if err != nil {
		return err
	}

	if err := fm.sessionManager.SaveSession(w, r, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// ConfirmRecovery exchanges the token hash of a recovery e-mail link for a
// session and stores it, so the reset page finds the user signed in
func (fm *FlowManager) ConfirmRecovery(w http.ResponseWriter, r *http.Request, tokenHash, otpType string) error {
	if tokenHash == "" {
		return fmt.Errorf("token_hash is required")
	}
	if otpType == "" {
		otpType = recoveryOTPType
	}
	if otpType != recoveryOTPType {
		return fmt.Errorf("unsupported token type: %s", otpType)
	}

	session, err := fm.provider.VerifyOTP(r.Context(), identity.VerifyParams{
		Type:      otpType,
		TokenHash: tokenHash,
	})
	if err != nil {
		return err
	}

	if err := fm.sessionManager.SaveSession(w, r, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// SignOut revokes the provider session (best effort) and clears the cookie.
// The returned error reports a failed revocation; the cookie is cleared regardless.
func (fm *FlowManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	var revokeErr error
	if session, err := fm.sessionManager.GetSession(nil, r); err == nil {
		revokeErr = fm.provider.SignOut(r.Context(), session.AccessToken)
	}

	if err := fm.sessionManager.ClearSession(w, r); err != nil {
		return err
	}

	return revokeErr
}
