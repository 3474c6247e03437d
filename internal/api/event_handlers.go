package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/stackroom/rankd/internal/events"
	"github.com/stackroom/rankd/internal/ranking"
)

// EventHandlers ingests engagement events.
type EventHandlers struct {
	eventLogger *events.Logger
	logger      *slog.Logger
}

// NewEventHandlers creates the event ingest handlers.
func NewEventHandlers(eventLogger *events.Logger, logger *slog.Logger) *EventHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandlers{eventLogger: eventLogger, logger: logger}
}

// Register wires the event endpoints onto mux.
func (h *EventHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/events", h.LogEvent)
}

// EventResponse reports the outcome of one event submission. logged is
// false when event logging is disabled; the event is acknowledged
// either way so emitters need no feature awareness.
type EventResponse struct {
	Logged bool `json:"logged"`
}

// LogEvent handles POST /events.
func (h *EventHandlers) LogEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var event events.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		fail(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if err := h.eventLogger.Log(r.Context(), event); err != nil {
		switch {
		case errors.Is(err, events.ErrInvalidEventType):
			fail(w, r, http.StatusBadRequest, ErrCodeInvalidEvent, "Unknown event type")
		case errors.Is(err, events.ErrMissingItemID), errors.Is(err, ranking.ErrInvalidItemType):
			fail(w, r, http.StatusBadRequest, ErrCodeValidation, "Event item reference is invalid")
		default:
			h.logger.Error("failed to log event", "error", err)
			fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to log event")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, EventResponse{Logged: h.eventLogger.Enabled()})
}
