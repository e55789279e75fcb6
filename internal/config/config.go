package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Identity  IdentityConfig  `yaml:"identity"`
	Session   SessionConfig   `yaml:"session"`
	Reset     ResetConfig     `yaml:"reset"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int            `yaml:"port"`
	Host            string         `yaml:"host"`
	BaseURL         string         `yaml:"base_url"` // Optional: public URL, used to decide HSTS and cookie security
	ReadTimeout     time.Duration  `yaml:"read_timeout"`
	WriteTimeout    time.Duration  `yaml:"write_timeout"`
	IdleTimeout     time.Duration  `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	Security        SecurityConfig `yaml:"security"`
}

// SecurityConfig contains security-related settings
type SecurityConfig struct {
	CSRFEnabled     bool                  `yaml:"csrf_enabled"`
	CSRFFieldName   string                `yaml:"csrf_field_name"`
	CSRFSecret      string                `yaml:"csrf_secret"`
	MaxRequestBytes int64                 `yaml:"max_request_bytes"`
	Headers         SecurityHeadersConfig `yaml:"headers"`
}

// SecurityHeadersConfig contains HTTP security header settings
type SecurityHeadersConfig struct {
	XFrameOptions           string `yaml:"x_frame_options"`
	XContentTypeOptions     string `yaml:"x_content_type_options"`
	ReferrerPolicy          string `yaml:"referrer_policy"`
	ContentSecurityPolicy   string `yaml:"content_security_policy"`
	StrictTransportSecurity string `yaml:"strict_transport_security"`
}

// IdentityConfig points at the hosted identity provider (GoTrue compatible)
type IdentityConfig struct {
	URL       string        `yaml:"url"`
	AnonKey   string        `yaml:"anon_key"`
	JWTSecret string        `yaml:"jwt_secret"` // Optional: verify access tokens locally
	Timeout   time.Duration `yaml:"timeout"`
}

// SessionConfig contains cookie session settings
type SessionConfig struct {
	Secret         string `yaml:"secret"`
	MaxAge         int    `yaml:"max_age"`
	CookieSecure   string `yaml:"cookie_secure"`   // "auto", "true", "false"
	CookieSameSite string `yaml:"cookie_samesite"` // "strict", "lax", "none"
}

// ResetConfig contains the password reset page settings
type ResetConfig struct {
	MinPasswordLength int           `yaml:"min_password_length"`
	RedirectDelay     time.Duration `yaml:"redirect_delay"`
	LoginPath         string        `yaml:"login_path"`
}

// AuditConfig contains the reset audit trail settings. An empty DBPath disables it.
type AuditConfig struct {
	DBPath string `yaml:"db_path"`
}

// RateLimitConfig contains rate limiting settings for form submissions
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	WindowDuration    time.Duration `yaml:"window_duration"`
	Burst             int           `yaml:"burst"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "console"
}

// TracingConfig contains OpenTelemetry tracing settings. Spans are written
// as JSON to standard output when enabled.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads configuration from the specified file path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes raw YAML, applies environment overrides and defaults, and validates the result
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables if set
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}
	if identityURL := os.Getenv("IDENTITY_URL"); identityURL != "" {
		cfg.Identity.URL = identityURL
	}
	if anonKey := os.Getenv("IDENTITY_ANON_KEY"); anonKey != "" {
		cfg.Identity.AnonKey = anonKey
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.Security.CSRFFieldName == "" {
		c.Server.Security.CSRFFieldName = "csrf_token"
	}
	if c.Server.Security.MaxRequestBytes == 0 {
		c.Server.Security.MaxRequestBytes = 64 << 10
	}
	headers := &c.Server.Security.Headers
	if headers.XFrameOptions == "" {
		headers.XFrameOptions = "DENY"
	}
	if headers.XContentTypeOptions == "" {
		headers.XContentTypeOptions = "nosniff"
	}
	if headers.ReferrerPolicy == "" {
		headers.ReferrerPolicy = "no-referrer"
	}
	if headers.ContentSecurityPolicy == "" {
		headers.ContentSecurityPolicy = "default-src 'self'; form-action 'self'; frame-ancestors 'none'"
	}
	if headers.StrictTransportSecurity == "" {
		headers.StrictTransportSecurity = "max-age=31536000; includeSubDomains"
	}
	if c.Identity.Timeout == 0 {
		c.Identity.Timeout = 10 * time.Second
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = 7 * 24 * 60 * 60
	}
	if c.Session.CookieSecure == "" {
		c.Session.CookieSecure = "auto"
	}
	if c.Session.CookieSameSite == "" {
		c.Session.CookieSameSite = "lax"
	}
	if c.Reset.MinPasswordLength == 0 {
		c.Reset.MinPasswordLength = 6
	}
	if c.Reset.RedirectDelay == 0 {
		c.Reset.RedirectDelay = 2 * time.Second
	}
	if c.Reset.LoginPath == "" {
		c.Reset.LoginPath = "/login"
	}
	if c.RateLimit.RequestsPerWindow == 0 {
		c.RateLimit.RequestsPerWindow = 10
	}
	if c.RateLimit.WindowDuration == 0 {
		c.RateLimit.WindowDuration = time.Minute
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "resetpassword"
	}
	if c.Tracing.Enabled && c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = 1
	}
}

// Validate checks that all required configuration fields are set
func (c *Config) Validate() error {
	// Identity provider validation
	if c.Identity.URL == "" || strings.Contains(c.Identity.URL, "${") {
		return fmt.Errorf("identity.url is required (set IDENTITY_URL environment variable)")
	}
	if !strings.HasPrefix(c.Identity.URL, "http://") && !strings.HasPrefix(c.Identity.URL, "https://") {
		return fmt.Errorf("identity.url must be an http(s) URL")
	}
	if c.Identity.AnonKey == "" || strings.Contains(c.Identity.AnonKey, "${") {
		return fmt.Errorf("identity.anon_key is required (set IDENTITY_ANON_KEY environment variable)")
	}

	// Session validation
	if c.Session.Secret == "" || strings.Contains(c.Session.Secret, "${") {
		return fmt.Errorf("session.secret is required (set SESSION_SECRET environment variable)")
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session.secret must be at least 32 characters")
	}
	switch c.Session.CookieSecure {
	case "auto", "true", "false":
	default:
		return fmt.Errorf("session.cookie_secure must be one of auto, true, false")
	}
	switch strings.ToLower(c.Session.CookieSameSite) {
	case "strict", "lax", "none":
	default:
		return fmt.Errorf("session.cookie_samesite must be one of strict, lax, none")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.Security.CSRFEnabled && len(c.CSRFKey()) < 32 {
		return fmt.Errorf("server.security.csrf_secret must be at least 32 characters")
	}

	// Reset page validation
	if c.Reset.MinPasswordLength < 1 {
		return fmt.Errorf("reset.min_password_length must be at least 1")
	}
	if c.Reset.RedirectDelay < 0 {
		return fmt.Errorf("reset.redirect_delay must not be negative")
	}
	if !strings.HasPrefix(c.Reset.LoginPath, "/") {
		return fmt.Errorf("reset.login_path must be an absolute path")
	}

	// Rate limit validation
	if c.RateLimit.RequestsPerWindow < 1 {
		return fmt.Errorf("rate_limit.requests_per_window must be at least 1")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate_limit.window_duration must be positive")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console")
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}

	return nil
}

// GetAddr returns the full server address (host:port)
func (c *Config) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetBaseURL returns the public base URL
// Uses base_url if set, otherwise constructs from host:port
func (c *Config) GetBaseURL() string {
	if c.Server.BaseURL != "" {
		return c.Server.BaseURL
	}
	return fmt.Sprintf("http://%s", c.GetAddr())
}

// IsHTTPS returns true if the base URL uses HTTPS
func (c *Config) IsHTTPS() bool {
	return strings.HasPrefix(strings.ToLower(c.GetBaseURL()), "https://")
}

// CookieSecure resolves the cookie_secure setting; "auto" follows the base URL scheme
func (c *Config) CookieSecure() bool {
	switch c.Session.CookieSecure {
	case "true":
		return true
	case "false":
		return false
	default:
		return c.IsHTTPS()
	}
}

// CookieSameSite maps cookie_samesite onto net/http constants
func (c *Config) CookieSameSite() http.SameSite {
	switch strings.ToLower(c.Session.CookieSameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// CSRFKey returns the CSRF signing key, falling back to the session secret
func (c *Config) CSRFKey() []byte {
	if c.Server.Security.CSRFSecret != "" {
		return []byte(c.Server.Security.CSRFSecret)
	}
	return []byte(c.Session.Secret)
}
