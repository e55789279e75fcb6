// Package web assembles the HTTP surface: middleware chain and routes.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shindakun/resetpassword/internal/auth"
	"github.com/shindakun/resetpassword/internal/config"
	"github.com/shindakun/resetpassword/internal/telemetry"
	"github.com/shindakun/resetpassword/internal/web/handlers"
	webmiddleware "github.com/shindakun/resetpassword/internal/web/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const requestTimeout = 60 * time.Second

// NewRouter builds the application's handler. Every request except the
// operational routes gets a server span from tracerProvider, continuing the
// caller's trace when a traceparent header is present.
func NewRouter(cfg *config.Config, h *handlers.Handlers, sessionManager *auth.SessionManager, gatherer prometheus.Gatherer, tracerProvider trace.TracerProvider, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(webmiddleware.LoggingMiddleware(logger))
	r.Use(webmiddleware.Recoverer(logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(webmiddleware.SecurityHeaders(cfg))
	r.Use(webmiddleware.MaxBytesMiddleware(cfg.Server.Security.MaxRequestBytes))

	// Operational routes
	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/static/*", h.ServeStatic)

	limiter := webmiddleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration, cfg.RateLimit.Burst)
	loginPath := cfg.Reset.LoginPath

	// Pages and form posts
	r.Group(func(r chi.Router) {
		if cfg.Server.Security.CSRFEnabled {
			r.Use(webmiddleware.CSRFProtection(cfg.CSRFKey(), cfg.CookieSecure(), cfg.Server.Security.CSRFFieldName))
		}

		r.Get("/", h.Landing)

		r.With(webmiddleware.RedirectIfAuthenticated(sessionManager, "/reset-password")).Get(loginPath, h.LoginForm)
		r.With(limiter.Middleware).Post(loginPath, h.Login)
		r.Get("/auth/confirm", h.ConfirmRecovery)
		r.Post("/logout", h.Logout)

		r.Get("/reset-password", h.ResetPasswordForm)
		r.With(limiter.Middleware).Post("/reset-password", h.ResetPassword)
	})

	// 404 handler (must be last)
	r.NotFound(h.NotFound)

	return otelhttp.NewHandler(r, "resetpassword",
		otelhttp.WithTracerProvider(tracerProvider),
		otelhttp.WithPropagators(telemetry.Propagator()),
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/healthz" && req.URL.Path != "/metrics"
		}),
	)
}
