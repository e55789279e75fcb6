// Package identity talks to the hosted identity provider. The provider is a
// GoTrue-compatible REST API (the Supabase auth service); it is the system of
// record for users, sessions and credentials.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	apiPrefix       = "/auth/v1"
	maxResponseBody = 1 << 20
)

// User is the subset of the provider's user object this service reads
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	RecoverySent string         `json:"recovery_sent_at,omitempty"`
	UpdatedAt    string         `json:"updated_at,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is the token pair returned by the provider on sign-in, verification and refresh
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Expiry returns when the access token expires
func (s *Session) Expiry(now time.Time) time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return now.Add(time.Duration(s.ExpiresIn) * time.Second)
}

// UserAttributes are the mutable fields sent to PUT /user
type UserAttributes struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// VerifyParams identifies an e-mailed one-time token
type VerifyParams struct {
	Type      string `json:"type"`
	TokenHash string `json:"token_hash"`
}

// Client is a minimal GoTrue REST client
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the pooled client built from go-cleanhttp
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the underlying HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithTracerProvider traces provider calls with tp instead of the global
// provider and forwards the W3C trace context to the provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.httpClient.Transport = tracedTransport(otelhttp.WithTracerProvider(tp))
	}
}

// NewClient creates a client for the provider at baseURL (e.g. https://xyz.supabase.co).
// Requests carry a client span and the caller's trace context.
func NewClient(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + apiPrefix,
		anonKey: anonKey,
		httpClient: &http.Client{
			Transport: tracedTransport(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func tracedTransport(opts ...otelhttp.Option) http.RoundTripper {
	opts = append(opts,
		otelhttp.WithPropagators(propagation.TraceContext{}),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return "identity " + req.Method + " " + strings.TrimPrefix(req.URL.Path, apiPrefix)
		}),
	)
	return otelhttp.NewTransport(cleanhttp.DefaultPooledTransport(), opts...)
}

// GetUser returns the user owning accessToken
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &user); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// UpdateUser changes attributes (e.g. the password) of the user owning accessToken
func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPut, "/user", nil, accessToken, attrs, &user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// VerifyOTP exchanges an e-mailed token hash (recovery link) for a session
func (c *Client) VerifyOTP(ctx context.Context, params VerifyParams) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/verify", nil, "", params, &session); err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	return &session, nil
}

// SignInWithPassword opens a session with e-mail and password
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	query := url.Values{"grant_type": {"password"}}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/token", query, "", body, &session); err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	return &session, nil
}

// RefreshSession trades a refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	query := url.Values{"grant_type": {"refresh_token"}}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/token", query, "", body, &session); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return &session, nil
}

// SignOut revokes the session owning accessToken
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, accessToken string, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
