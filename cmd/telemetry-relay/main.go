// telemetry-relay is the HTTP service that accepts telemetry hits and
// delivers them to the collection endpoint in the background.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"telemetry/internal/api"
	"telemetry/internal/backlog"
	"telemetry/internal/config"
	"telemetry/internal/dispatcher"
	"telemetry/internal/health"
	"telemetry/internal/measure"
	"telemetry/internal/observability"
	"telemetry/pkg/report"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Persistent anonymous client id, stored next to the backlog state
	clientID, err := measure.PersistentClientID(filepath.Join(filepath.Dir(svcCfg.StatePath), "client-id"))
	if err != nil {
		return err
	}

	builder := measure.NewBuilder(measure.Info{
		TrackingID: svcCfg.TrackingID,
		ClientID:   clientID,
		AppName:    svcCfg.AppName,
		AppVersion: svcCfg.AppVersion,
	})

	// Create the delivery engine
	store := backlog.NewFileStore(svcCfg.StatePath)
	sender := report.NewSender(svcCfg.Endpoint, svcCfg.HTTPTimeout)
	engine := dispatcher.New(dispatcherCfg, sender, store, metrics)

	// Resend anything a previous run left behind
	if err := engine.Start(ctx); err != nil {
		slog.Warn("Backlog resend failed", "error", err)
	}

	// Create health checker
	healthChecker := health.NewChecker(engine)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Engine:        engine,
		Builder:       builder,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
		Disabled:      svcCfg.Disabled,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}
	if svcCfg.Disabled {
		slog.Warn("Reporting disabled - records will be accepted and discarded")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Drain the delivery engine and persist what is left
	slog.Info("Draining delivery engine")
	engineCtx, engineCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer engineCancel()
	if err := engine.Shutdown(engineCtx); err != nil {
		slog.Warn("Engine shutdown error", "error", err)
	}

	// Log final engine stats
	stats := engine.Stats()
	slog.Info("Engine stats",
		"submitted", stats.Submitted,
		"delivered", stats.Delivered,
		"rejected", stats.Rejected,
		"unreachable", stats.Unreachable,
		"backlogged", stats.Backlogged,
	)

	slog.Info("Shutdown complete")
	return nil
}
