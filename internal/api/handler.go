// Package api provides the HTTP API handlers and routing for the telemetry relay.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"telemetry/internal/apperrors"
	"telemetry/internal/dispatcher"
	"telemetry/internal/health"
	"telemetry/internal/measure"
	"telemetry/pkg/report"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the telemetry API
type Handler struct {
	engine   *dispatcher.Dispatcher
	builder  *measure.Builder
	health   *health.Checker
	disabled bool
}

// NewHandler creates a new API handler. When disabled is true the handlers
// accept requests but discard the records without queueing them.
func NewHandler(engine *dispatcher.Dispatcher, builder *measure.Builder, healthChecker *health.Checker, disabled bool) *Handler {
	return &Handler{
		engine:   engine,
		builder:  builder,
		health:   healthChecker,
		disabled: disabled,
	}
}

type eventRequest struct {
	Category   string `json:"category"`
	Action     string `json:"action"`
	Label      string `json:"label,omitempty"`
	Value      int    `json:"value,omitempty"`
	ScreenName string `json:"screen_name,omitempty"`
}

type exceptionRequest struct {
	Description string `json:"description"`
	Fatal       bool   `json:"fatal,omitempty"`
}

type screenviewRequest struct {
	Name string `json:"name"`
}

// SubmitEvent handles POST /v1/events
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Category == "" {
		h.handleError(w, r, apperrors.Validation("category", "event category is required"))
		return
	}
	if req.Action == "" {
		h.handleError(w, r, apperrors.Validation("action", "event action is required"))
		return
	}

	rec := h.builder.Event(req.Category, req.Action, req.Label, req.Value)
	measure.WithScreenName(rec, req.ScreenName)
	h.accept(rec)

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SubmitException handles POST /v1/exceptions
func (h *Handler) SubmitException(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req exceptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Description == "" {
		h.handleError(w, r, apperrors.Validation("description", "exception description is required"))
		return
	}

	h.accept(h.builder.Exception(req.Description, req.Fatal))

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SubmitScreenview handles POST /v1/screenviews
func (h *Handler) SubmitScreenview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req screenviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Name == "" {
		h.handleError(w, r, apperrors.Validation("name", "screen name is required"))
		return
	}

	h.accept(h.builder.Screenview(req.Name))

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Stats())
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness()
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 while shutting down; an offline engine reports degraded
// but keeps accepting records, so it stays 200.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness()

	status := http.StatusOK
	if response.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// accept hands a record to the engine unless reporting is disabled.
func (h *Handler) accept(rec report.Record) {
	if h.disabled {
		return
	}
	h.engine.Submit(rec)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
