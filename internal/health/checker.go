// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"fmt"
	"sync"
)

// EngineState is the view of the dispatch engine the checker inspects.
type EngineState interface {
	// Offline reports whether the engine has latched offline.
	Offline() bool
	// Pending returns the number of records awaiting delivery.
	Pending() int
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker performs health checks on the dispatch engine.
type Checker struct {
	engine EngineState

	mu           sync.RWMutex
	shuttingDown bool
}

// NewChecker creates a new health checker.
func NewChecker(engine EngineState) *Checker {
	return &Checker{engine: engine}
}

// Liveness returns true if the service is alive.
// This is a lightweight check with no external dependencies.
// Failing this probe should trigger a container restart.
func (c *Checker) Liveness() *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks if the relay should keep receiving traffic. An
// offline engine still accepts records (they buffer to the backlog), so
// it reports degraded rather than unhealthy.
func (c *Checker) Readiness() *Response {
	c.mu.RLock()
	shuttingDown := c.shuttingDown
	c.mu.RUnlock()

	if shuttingDown {
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	checks := map[string]CheckResult{
		"dispatcher": c.checkEngine(),
	}

	overallStatus := StatusHealthy
	for _, check := range checks {
		if check.Status != StatusHealthy {
			overallStatus = check.Status
		}
	}

	return &Response{
		Status: overallStatus,
		Checks: checks,
	}
}

// checkEngine reports the dispatch engine state.
func (c *Checker) checkEngine() CheckResult {
	if c.engine == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "dispatcher not configured",
		}
	}

	if c.engine.Offline() {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("collector unreachable, %d records buffered for backlog", c.engine.Pending()),
		}
	}

	return CheckResult{
		Status: StatusHealthy,
	}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// SetShuttingDown marks the service as shutting down.
// This causes readiness checks to return unhealthy, signaling
// load balancers to stop sending new traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
}
