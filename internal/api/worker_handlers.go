package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/stackroom/rankd/internal/fraud"
	"github.com/stackroom/rankd/internal/quality"
	"github.com/stackroom/rankd/internal/ranking"
	"github.com/stackroom/rankd/internal/recompute"
)

// FullRecomputeRequest is the optional body for POST /workers/full-recompute.
type FullRecomputeRequest struct {
	ItemType         string `json:"item_type,omitempty"`
	ChangedSinceDays int    `json:"changed_since_days,omitempty"`
	DryRun           bool   `json:"dry_run,omitempty"`
}

// ScheduleDeltaRequest is the optional body for POST /workers/delta-recompute.
// When present, the item is scheduled before the queue is drained.
type ScheduleDeltaRequest struct {
	ItemType        string `json:"item_type"`
	ItemID          string `json:"item_id"`
	DebounceSeconds int    `json:"debounce_seconds,omitempty"`
}

// WorkerHandlers exposes the manual worker trigger endpoints. Each
// trigger runs synchronously and returns the run's result; a second
// trigger while a run is in flight gets 409 so operators cannot stack
// overlapping sweeps.
type WorkerHandlers struct {
	full      *recompute.FullWorker
	delta     *recompute.DeltaWorker
	quality   *quality.Sweeper
	fraud     *fraud.Detector
	publisher *ranking.Publisher
	logger    *slog.Logger

	fullRunning    atomic.Bool
	deltaRunning   atomic.Bool
	qualityRunning atomic.Bool
	fraudRunning   atomic.Bool
	refreshRunning atomic.Bool
}

// NewWorkerHandlers creates the worker trigger handlers.
func NewWorkerHandlers(full *recompute.FullWorker, delta *recompute.DeltaWorker, qualitySweeper *quality.Sweeper, fraudDetector *fraud.Detector, publisher *ranking.Publisher, logger *slog.Logger) *WorkerHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerHandlers{
		full:      full,
		delta:     delta,
		quality:   qualitySweeper,
		fraud:     fraudDetector,
		publisher: publisher,
		logger:    logger,
	}
}

// Register wires the worker endpoints onto mux.
func (h *WorkerHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/workers/full-recompute", h.FullRecompute)
	mux.HandleFunc("/workers/delta-recompute", h.DeltaRecompute)
	mux.HandleFunc("/workers/quality-sweep", h.QualitySweep)
	mux.HandleFunc("/workers/fraud-sweep", h.FraudSweep)
	mux.HandleFunc("/workers/refresh-view", h.RefreshView)
}

// FullRecompute handles POST /workers/full-recompute.
func (h *WorkerHandlers) FullRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	if !h.fullRunning.CompareAndSwap(false, true) {
		fail(w, r, http.StatusConflict, ErrCodeWorkerBusy, "A full recompute is already running")
		return
	}
	defer h.fullRunning.Store(false)

	var req FullRecomputeRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		fail(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	params := recompute.FullParams{
		ChangedSinceDays: req.ChangedSinceDays,
		DryRun:           req.DryRun,
	}
	if req.ItemType != "" {
		itemType, err := ranking.ParseItemType(req.ItemType)
		if err != nil {
			fail(w, r, http.StatusBadRequest, ErrCodeInvalidItemType, "item_type must be card or collection")
			return
		}
		params.ItemType = &itemType
	}

	result, err := h.full.Run(r.Context(), params)
	if err != nil {
		h.logger.Error("full recompute failed", "error", err)
		fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Full recompute failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeltaRecompute handles POST /workers/delta-recompute. An optional
// body schedules one item before the due queue is drained.
func (h *WorkerHandlers) DeltaRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	if !h.deltaRunning.CompareAndSwap(false, true) {
		fail(w, r, http.StatusConflict, ErrCodeWorkerBusy, "A delta recompute is already running")
		return
	}
	defer h.deltaRunning.Store(false)

	var req ScheduleDeltaRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		fail(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if req.ItemID != "" || req.ItemType != "" {
		itemType, err := ranking.ParseItemType(req.ItemType)
		if err != nil {
			fail(w, r, http.StatusBadRequest, ErrCodeInvalidItemType, "item_type must be card or collection")
			return
		}
		debounce := recompute.DefaultDebounce
		if req.DebounceSeconds > 0 {
			debounce = time.Duration(req.DebounceSeconds) * time.Second
		}
		if err := h.delta.ScheduleDelta(r.Context(), itemType, req.ItemID, debounce); err != nil {
			if errors.Is(err, ranking.ErrEmptyItemID) {
				fail(w, r, http.StatusBadRequest, ErrCodeValidation, "item_id must not be empty")
				return
			}
			h.logger.Error("failed to schedule delta", "error", err)
			fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to schedule delta")
			return
		}
	}

	result, err := h.delta.Drain(r.Context())
	if err != nil {
		h.logger.Error("delta recompute failed", "error", err)
		fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Delta recompute failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// QualitySweep handles POST /workers/quality-sweep.
func (h *WorkerHandlers) QualitySweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	if !h.qualityRunning.CompareAndSwap(false, true) {
		fail(w, r, http.StatusConflict, ErrCodeWorkerBusy, "A quality sweep is already running")
		return
	}
	defer h.qualityRunning.Store(false)

	result, err := h.quality.RunSweep(r.Context())
	if err != nil {
		h.logger.Error("quality sweep failed", "error", err)
		fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Quality sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// FraudSweep handles POST /workers/fraud-sweep.
func (h *WorkerHandlers) FraudSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	if !h.fraudRunning.CompareAndSwap(false, true) {
		fail(w, r, http.StatusConflict, ErrCodeWorkerBusy, "A fraud sweep is already running")
		return
	}
	defer h.fraudRunning.Store(false)

	report, err := h.fraud.Sweep(r.Context())
	if err != nil {
		h.logger.Error("fraud sweep failed", "error", err)
		fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Fraud sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RefreshView handles POST /workers/refresh-view.
func (h *WorkerHandlers) RefreshView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	if !h.refreshRunning.CompareAndSwap(false, true) {
		fail(w, r, http.StatusConflict, ErrCodeWorkerBusy, "A view refresh is already running")
		return
	}
	defer h.refreshRunning.Store(false)

	if err := h.publisher.Refresh(r.Context()); err != nil {
		h.logger.Error("view refresh failed", "error", err)
		fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "View refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// decodeOptionalBody decodes a JSON request body into dst, treating an
// empty body as valid.
func decodeOptionalBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
