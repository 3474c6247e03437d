package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stackroom/rankd/internal/ranking"
)

// DeltaScheduler enqueues a debounced single-item recompute. Implemented
// by the recompute package's durable queue so a crash after Log cannot
// silently drop the recompute.
type DeltaScheduler interface {
	ScheduleDelta(ctx context.Context, itemType ranking.ItemType, itemID string, debounce time.Duration) error
}

// Logger appends engagement events and schedules the follow-up delta
// recompute. The whole path is feature-gated: when disabled, Log is a
// validated no-op so callers need no flag checks of their own.
type Logger struct {
	store     Store
	scheduler DeltaScheduler
	enabled   bool
	debounce  time.Duration
	logger    *slog.Logger
}

// NewLogger creates an event logger. scheduler may be nil to log events
// without driving recomputes (useful in backfill tooling).
func NewLogger(store Store, scheduler DeltaScheduler, enabled bool, debounce time.Duration, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		store:     store,
		scheduler: scheduler,
		enabled:   enabled,
		debounce:  debounce,
		logger:    logger,
	}
}

// Enabled reports whether event logging is active.
func (l *Logger) Enabled() bool {
	return l.enabled
}

// Log validates and appends one event, then schedules the item's delta
// recompute through the durable queue. Malformed events are rejected
// before any write. A scheduling failure does not fail the call: the
// event is already durable and the next full sweep self-heals the
// score.
func (l *Logger) Log(ctx context.Context, event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if !l.enabled {
		return nil
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if err := l.store.Append(ctx, event); err != nil {
		return fmt.Errorf("failed to log engagement event: %w", err)
	}

	if l.scheduler == nil {
		return nil
	}
	if err := l.scheduler.ScheduleDelta(ctx, event.ItemType, event.ItemID, l.debounce); err != nil {
		l.logger.Error("failed to schedule delta recompute",
			"item_type", event.ItemType,
			"item_id", event.ItemID,
			"error", err)
	}
	return nil
}
