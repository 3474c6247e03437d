package api

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// readyCheckTimeout bounds each dependency probe during readiness.
const readyCheckTimeout = 2 * time.Second

// HealthHandlers provides health and readiness check endpoints.
type HealthHandlers struct {
	dbChecker    HealthChecker
	redisChecker HealthChecker
}

// NewHealthHandlers creates the health check handlers. Either checker
// may be nil; nil checkers are skipped during readiness.
func NewHealthHandlers(dbChecker, redisChecker HealthChecker) *HealthHandlers {
	return &HealthHandlers{dbChecker: dbChecker, redisChecker: redisChecker}
}

// Register wires the health endpoints onto mux.
func (h *HealthHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ready", h.Ready)
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// If the process can respond, it is alive.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// Ready handles GET /ready (readiness probe). It probes the database
// and Redis; any failure makes the service not ready.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	response := HealthResponse{
		Status:    "ready",
		Checks:    make(map[string]string),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	probe := func(name string, checker HealthChecker) {
		if checker == nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()
		if err := checker.HealthCheck(ctx); err != nil {
			response.Checks[name] = "unavailable: " + err.Error()
			response.Status = "not ready"
			status = http.StatusServiceUnavailable
			return
		}
		response.Checks[name] = "ok"
	}

	probe("database", h.dbChecker)
	probe("redis", h.redisChecker)

	writeJSON(w, status, response)
}
