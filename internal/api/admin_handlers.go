package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/stackroom/rankd/internal/middleware"
	"github.com/stackroom/rankd/internal/ranking"
	"github.com/stackroom/rankd/internal/scoring"
)

// maxConfigBodySize bounds admin config payloads.
const maxConfigBodySize = 64 * 1024

// AdminHandlers manages the runtime weight configuration.
type AdminHandlers struct {
	configs ranking.ConfigStore
	base    *scoring.Weights
	logger  *slog.Logger
}

// NewAdminHandlers creates the admin config handlers. base is the
// calibration-derived weight set overrides merge into.
func NewAdminHandlers(configs ranking.ConfigStore, base *scoring.Weights, logger *slog.Logger) *AdminHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	if base == nil {
		base = scoring.DefaultWeights()
	}
	return &AdminHandlers{configs: configs, base: base, logger: logger}
}

// Register wires the admin endpoints onto mux.
func (h *AdminHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/config", h.Config)
}

// ConfigResponse shows the weight configuration: the effective weights
// the workers will use and the raw stored overrides, if any.
type ConfigResponse struct {
	Effective *scoring.Weights `json:"effective"`
	Overrides *scoring.Weights `json:"overrides,omitempty"`
}

// Config dispatches GET and PUT for /admin/config.
func (h *AdminHandlers) Config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getConfig(w, r)
	case http.MethodPut:
		h.putConfig(w, r)
	default:
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

func (h *AdminHandlers) getConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := h.configs.GetConfig(r.Context(), ranking.WeightsConfigKey)
	if err != nil {
		h.logger.Error("failed to read weight config", "error", err)
		fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to read config")
		return
	}

	resp := ConfigResponse{Effective: h.base}
	if len(raw) > 0 {
		overrides, err := scoring.ParseOverrides(raw)
		if err != nil {
			// A bad stored row should be visible, not fatal: report the
			// base weights the workers fall back to.
			h.logger.Warn("stored weight overrides are invalid", "error", err)
		} else {
			resp.Overrides = overrides
			resp.Effective = scoring.Merge(h.base, overrides)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandlers) putConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBodySize))
	if err != nil {
		fail(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body")
		return
	}

	// Validate before persisting so a malformed payload can never reach
	// the workers.
	overrides, err := scoring.ParseOverrides(body)
	if err != nil {
		fail(w, r, http.StatusBadRequest, ErrCodeInvalidWeights, "Weight overrides failed validation: "+err.Error())
		return
	}

	if err := h.configs.SetConfig(r.Context(), ranking.WeightsConfigKey, body); err != nil {
		h.logger.Error("failed to persist weight config", "error", err)
		fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to persist config")
		return
	}

	h.logger.Info("weight overrides updated", "admin", middleware.GetAdminSubject(r.Context()))
	writeJSON(w, http.StatusOK, ConfigResponse{
		Effective: scoring.Merge(h.base, overrides),
		Overrides: overrides,
	})
}
