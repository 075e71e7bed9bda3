package api

import (
	"net/http"

	"telemetry/internal/dispatcher"
	"telemetry/internal/health"
	"telemetry/internal/measure"
	"telemetry/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Engine        *dispatcher.Dispatcher
	Builder       *measure.Builder
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
	Disabled      bool
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Engine, cfg.Builder, cfg.HealthChecker, cfg.Disabled)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Reporting endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/events", authMiddleware(http.HandlerFunc(handler.SubmitEvent)))
	mux.Handle("POST /v1/exceptions", authMiddleware(http.HandlerFunc(handler.SubmitException)))
	mux.Handle("POST /v1/screenviews", authMiddleware(http.HandlerFunc(handler.SubmitScreenview)))
	mux.Handle("GET /v1/stats", authMiddleware(http.HandlerFunc(handler.GetStats)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
