package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/shindakun/resetpassword/internal/identity"
	"github.com/shindakun/resetpassword/internal/models"
)

const (
	sessionName            = "resetpassword-session"
	sessionKeyAccessToken  = "access_token"
	sessionKeyRefreshToken = "refresh_token"
)

var (
	// ErrNoSession means the request carries no provider session
	ErrNoSession = errors.New("no session found in cookie")
	// ErrSessionExpired means the access token expired and could not be refreshed
	ErrSessionExpired = errors.New("session has expired")
)

// Backend is the provider side of a cookie session. RefreshSession trades a
// refresh token for a new session; GetUser confirms an access token whose
// signature cannot be checked locally.
type Backend interface {
	RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error)
	GetUser(ctx context.Context, accessToken string) (*identity.User, error)
}

// SessionManager keeps the provider's tokens in an encrypted cookie
type SessionManager struct {
	store    *sessions.CookieStore
	verifier *identity.TokenVerifier
	backend  Backend
}

// InitSessions creates a new session manager with HTTP-only cookies
func InitSessions(secret string, maxAge int, secure bool, sameSite http.SameSite, verifier *identity.TokenVerifier, backend Backend) *SessionManager {
	// The first 32 bytes of the secret double as the encryption key
	store := sessions.NewCookieStore([]byte(secret), []byte(secret)[:32])

	// Configure session options
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true, // Prevent JavaScript access
		Secure:   secure,
		SameSite: sameSite,
	}

	return &SessionManager{
		store:    store,
		verifier: verifier,
		backend:  backend,
	}
}

// SaveSession stores the provider session tokens in the cookie
func (sm *SessionManager) SaveSession(w http.ResponseWriter, r *http.Request, session *identity.Session) error {
	if session == nil || session.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}

	cookieSession, err := sm.store.Get(r, sessionName)
	if err != nil && cookieSession == nil {
		return fmt.Errorf("failed to get cookie session: %w", err)
	}

	cookieSession.Values[sessionKeyAccessToken] = session.AccessToken
	cookieSession.Values[sessionKeyRefreshToken] = session.RefreshToken

	if err := cookieSession.Save(r, w); err != nil {
		return fmt.Errorf("failed to save cookie session: %w", err)
	}

	return nil
}

// GetSession retrieves the session from the cookie. An expired access token
// is refreshed once against the provider and the cookie rewritten. Without a
// local signing secret the provider confirms the token on every call.
func (sm *SessionManager) GetSession(w http.ResponseWriter, r *http.Request) (*models.Session, error) {
	// Get session from cookie
	cookieSession, err := sm.store.Get(r, sessionName)
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie session: %w", err)
	}

	accessToken, _ := cookieSession.Values[sessionKeyAccessToken].(string)
	refreshToken, _ := cookieSession.Values[sessionKeyRefreshToken].(string)
	if accessToken == "" {
		return nil, ErrNoSession
	}

	claims, err := sm.verifier.Parse(accessToken)
	if err != nil && !errors.Is(err, identity.ErrTokenExpired) {
		return nil, err
	}

	session := toModel(accessToken, refreshToken, claims)
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	if !session.IsExpired() {
		return sm.confirm(r.Context(), session)
	}

	// Access token expired; try the refresh token
	if refreshToken == "" || sm.backend == nil {
		return nil, ErrSessionExpired
	}

	refreshed, err := sm.backend.RefreshSession(r.Context(), refreshToken)
	if err != nil {
		if _, ok := identity.AsAPIError(err); ok {
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	claims, err = sm.verifier.Parse(refreshed.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("refreshed access token rejected: %w", err)
	}

	session = toModel(refreshed.AccessToken, refreshed.RefreshToken, claims)
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid refreshed session: %w", err)
	}

	if w != nil {
		if err := sm.SaveSession(w, r, refreshed); err != nil {
			return nil, err
		}
	}

	return session, nil
}

// confirm asks the provider who owns an unverified token. The provider's
// answer replaces the decoded claims.
func (sm *SessionManager) confirm(ctx context.Context, session *models.Session) (*models.Session, error) {
	if sm.verifier.Verifies() || sm.backend == nil {
		return session, nil
	}

	user, err := sm.backend.GetUser(ctx, session.AccessToken)
	if err != nil {
		if apiErr, ok := identity.AsAPIError(err); ok && apiErr.IsUnauthorized() {
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("failed to confirm session: %w", err)
	}

	session.UserID = user.ID
	session.Email = user.Email
	return session, nil
}

// ClearSession removes the session cookie (logout)
func (sm *SessionManager) ClearSession(w http.ResponseWriter, r *http.Request) error {
	cookieSession, err := sm.store.Get(r, sessionName)
	if err != nil && cookieSession == nil {
		// If we can't get the session, it might already be cleared
		return nil
	}

	cookieSession.Values = make(map[interface{}]interface{})
	cookieSession.Options.MaxAge = -1
	if err := cookieSession.Save(r, w); err != nil {
		return fmt.Errorf("failed to clear cookie session: %w", err)
	}

	return nil
}

func toModel(accessToken, refreshToken string, claims *identity.AccessClaims) *models.Session {
	session := &models.Session{
		UserID:       claims.Subject,
		Email:        claims.Email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session
}
