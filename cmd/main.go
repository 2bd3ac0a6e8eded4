package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-telemetry/internal/app"
	"github.com/ukydev/fleet-telemetry/internal/auth"
	"github.com/ukydev/fleet-telemetry/internal/config"
	"github.com/ukydev/fleet-telemetry/internal/handlers"
	"github.com/ukydev/fleet-telemetry/internal/logging"
	"github.com/ukydev/fleet-telemetry/internal/middleware"
	"github.com/ukydev/fleet-telemetry/internal/models"
	"github.com/ukydev/fleet-telemetry/internal/observability"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
	shutdownTimeout = 10 * time.Second
)

// newRouter mounts the run API. runs may be nil when no ledger is configured.
func newRouter(authService *auth.Service, runner handlers.Runner, runs handlers.RunLister, metrics http.Handler) http.Handler {
	authMW := middleware.NewAuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimitMiddleware()
	authHandler := handlers.NewAuthHandler(authService)
	runHandler := handlers.NewRunHandler(runner, runs)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health)
	mux.Handle("GET /metrics", metrics)
	mux.Handle("POST /api/auth/login", rateLimiter.RateLimit(loginRateLimit, loginRateWindow)(http.HandlerFunc(authHandler.Login)))
	mux.Handle("GET /api/auth/me", http.HandlerFunc(authHandler.Me))
	mux.Handle("POST /api/runs", authMW.RequirePermission(models.PermTriggerRun)(http.HandlerFunc(runHandler.Trigger)))
	mux.Handle("GET /api/runs", authMW.RequirePermission(models.PermViewRuns)(http.HandlerFunc(runHandler.List)))

	return middleware.RequestLogger(log.StandardLogger())(authMW.Authenticate(mux))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	closeLog, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log.StandardLogger())
	if err != nil {
		log.Fatalf("Failed to initialise tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log.StandardLogger())

	a, err := app.Build(ctx, cfg, nil, log.StandardLogger())
	if err != nil {
		log.Fatalf("Failed to build ingestion pipeline: %v", err)
	}
	defer a.Close()

	authService, err := app.NewAuthService(cfg, log.StandardLogger())
	if err != nil {
		log.Fatalf("Failed to set up authentication: %v", err)
	}

	var runs handlers.RunLister
	if a.Ledger != nil {
		runs = a.Ledger
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(authService, a.Pipeline, runs, a.Collector.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
	}
}
