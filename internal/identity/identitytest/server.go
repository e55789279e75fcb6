// Package identitytest provides an in-process fake of the identity provider
// for tests.
package identitytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shindakun/resetpassword/internal/identity"
)

const (
	AnonKey   = "test-anon-key"
	JWTSecret = "test-jwt-secret-0123456789abcdef"
)

// Account is a user known to the fake provider
type Account struct {
	ID       string
	Email    string
	Password string
}

// Server is a fake GoTrue API backed by httptest
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	accounts      map[string]*Account // by e-mail
	recovery      map[string]string   // token hash -> e-mail
	refresh       map[string]string   // refresh token -> e-mail
	updateErr     *ErrorResponse
	updateCalls   []identity.UserAttributes
	userCalls     int
	tokenLifetime time.Duration
}

// ErrorResponse is the body returned for a forced failure
type ErrorResponse struct {
	Status int
	Body   map[string]any
}

// NewServer starts a fake provider. Call Close when done.
func NewServer() *Server {
	s := &Server{
		accounts:      make(map[string]*Account),
		recovery:      make(map[string]string),
		refresh:       make(map[string]string),
		tokenLifetime: time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/v1/user", s.handleGetUser)
	mux.HandleFunc("PUT /auth/v1/user", s.handleUpdateUser)
	mux.HandleFunc("POST /auth/v1/verify", s.handleVerify)
	mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	mux.HandleFunc("POST /auth/v1/logout", s.handleLogout)

	s.Server = httptest.NewServer(s.requireAPIKey(mux))
	return s
}

// AddAccount registers a user
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := a
	s.accounts[a.Email] = &acct
}

// AddRecoveryToken makes tokenHash a valid recovery link for email
func (s *Server) AddRecoveryToken(tokenHash, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recovery[tokenHash] = email
}

// FailUpdates makes every PUT /user fail with the given status and JSON body
func (s *Server) FailUpdates(status int, body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = &ErrorResponse{Status: status, Body: body}
}

// UpdateCalls returns the attributes received by PUT /user
func (s *Server) UpdateCalls() []identity.UserAttributes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]identity.UserAttributes(nil), s.updateCalls...)
}

// UserCalls returns how many times GET /user was called
func (s *Server) UserCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userCalls
}

// Password returns the current password of email
func (s *Server) Password(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[email]; ok {
		return a.Password
	}
	return ""
}

// SetTokenLifetime changes the lifetime of tokens issued from now on; negative values issue expired tokens
func (s *Server) SetTokenLifetime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenLifetime = d
}

// IssueSession mints a session for email as the provider would
func (s *Server) IssueSession(email string) identity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(email)
}

func (s *Server) issueLocked(email string) identity.Session {
	acct := s.accounts[email]
	id := ""
	if acct != nil {
		id = acct.ID
	}
	exp := time.Now().Add(s.tokenLifetime)
	refreshToken := "refresh-" + email + "-" + exp.Format(time.RFC3339Nano)
	s.refresh[refreshToken] = email

	return identity.Session{
		AccessToken:  MintToken(JWTSecret, id, email, exp),
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokenLifetime.Seconds()),
		ExpiresAt:    exp.Unix(),
		RefreshToken: refreshToken,
		User:         identity.User{ID: id, Email: email, Role: "authenticated"},
	}
}

// MintToken signs an HS256 access token
func MintToken(secret, subject, email string, expiresAt time.Time) string {
	claims := identity.AccessClaims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != AnonKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*Account, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := &identity.AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(JWTSecret), nil
	})
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "error_code": "bad_jwt", "msg": "invalid JWT"})
		return nil, false
	}

	s.mu.Lock()
	acct, ok := s.accounts[claims.Email]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "error_code": "user_not_found", "msg": "User not found"})
		return nil, false
	}
	return acct, true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.userCalls++
	s.mu.Unlock()

	acct, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, identity.User{ID: acct.ID, Email: acct.Email, Role: "authenticated"})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var attrs identity.UserAttributes
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls = append(s.updateCalls, attrs)

	if s.updateErr != nil {
		writeJSON(w, s.updateErr.Status, s.updateErr.Body)
		return
	}
	if attrs.Password != "" {
		acct.Password = attrs.Password
	}
	writeJSON(w, http.StatusOK, identity.User{ID: acct.ID, Email: acct.Email, Role: "authenticated"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var params identity.VerifyParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"msg": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.recovery[params.TokenHash]
	if !ok || params.Type != "recovery" {
		writeJSON(w, http.StatusForbidden, map[string]any{"code": 403, "error_code": "otp_expired", "msg": "Email link is invalid or has expired"})
		return
	}
	delete(s.recovery, params.TokenHash)
	writeJSON(w, http.StatusOK, s.issueLocked(email))
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request", "error_description": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Query().Get("grant_type") {
	case "password":
		acct, ok := s.accounts[body["email"]]
		if !ok || acct.Password != body["password"] {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Invalid login credentials"})
			return
		}
		writeJSON(w, http.StatusOK, s.issueLocked(acct.Email))
	case "refresh_token":
		email, ok := s.refresh[body["refresh_token"]]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Invalid Refresh Token"})
			return
		}
		delete(s.refresh, body["refresh_token"])
		writeJSON(w, http.StatusOK, s.issueLocked(email))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
