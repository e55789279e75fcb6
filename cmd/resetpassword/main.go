package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shindakun/resetpassword/internal/auth"
	"github.com/shindakun/resetpassword/internal/config"
	"github.com/shindakun/resetpassword/internal/identity"
	"github.com/shindakun/resetpassword/internal/logging"
	"github.com/shindakun/resetpassword/internal/metrics"
	"github.com/shindakun/resetpassword/internal/storage"
	"github.com/shindakun/resetpassword/internal/telemetry"
	"github.com/shindakun/resetpassword/internal/version"
	"github.com/shindakun/resetpassword/internal/web"
	"github.com/shindakun/resetpassword/internal/web/handlers"
	"go.uber.org/zap"
)

func main() {
	version.AddFlag(nil)
	flag.Parse()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting password reset service", zap.String("version", version.GetFullVersion()))

	// Tracing; a disabled config installs a provider that samples nothing
	tracerProvider, err := telemetry.NewTracerProvider(cfg.Tracing, os.Stdout)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	shutdownTracing := telemetry.Install(tracerProvider)
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", zap.String("service", cfg.Tracing.ServiceName), zap.Float64("sample_ratio", cfg.Tracing.SampleRatio))
	}

	// Initialize audit database (optional)
	var db *sql.DB
	if cfg.Audit.DBPath != "" {
		db, err = storage.InitDB(cfg.Audit.DBPath)
		if err != nil {
			logger.Fatal("failed to initialize database", zap.String("path", cfg.Audit.DBPath), zap.Error(err))
		}
		defer db.Close()
		logger.Info("audit database initialized", zap.String("path", cfg.Audit.DBPath))
	}

	// Identity provider client and token verification
	client := identity.NewClient(cfg.Identity.URL, cfg.Identity.AnonKey, identity.WithTimeout(cfg.Identity.Timeout))
	verifier := identity.NewTokenVerifier(cfg.Identity.JWTSecret)
	if !verifier.Verifies() {
		logger.Warn("identity.jwt_secret not set, access token signatures are not checked locally")
	}
	logger.Info("identity client initialized", zap.String("url", cfg.Identity.URL))

	// Sessions and sign-in flows
	sessionManager := auth.InitSessions(cfg.Session.Secret, cfg.Session.MaxAge, cfg.CookieSecure(), cfg.CookieSameSite(), verifier, client)
	flows := auth.InitFlows(client, sessionManager)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	// Initialize handlers
	h, err := handlers.New(cfg, db, sessionManager, flows, client, recorder, logger)
	if err != nil {
		logger.Fatal("failed to initialize handlers", zap.Error(err))
	}

	// HTTP server configuration
	srv := &http.Server{
		Addr:         cfg.GetAddr(),
		Handler:      web.NewRouter(cfg, h, sessionManager, registry, tracerProvider, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger),
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.GetAddr()), zap.String("base_url", cfg.GetBaseURL()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}

	logger.Info("server exited successfully")
}
