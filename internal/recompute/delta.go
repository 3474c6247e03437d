package recompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stackroom/rankd/internal/catalog"
	"github.com/stackroom/rankd/internal/jobs"
	"github.com/stackroom/rankd/internal/quality"
	"github.com/stackroom/rankd/internal/ranking"
	"github.com/stackroom/rankd/internal/scoring"
	"github.com/stackroom/rankd/internal/stats"
)

// DefaultDeltaBatchSize caps how many claimed deltas one poll processes.
const DefaultDeltaBatchSize = 200

// DeltaResult reports one delta drain pass.
type DeltaResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// DeltaWorker recomputes single items on demand through the durable
// debounce queue. It satisfies events.DeltaScheduler so the event
// logger can enqueue work without importing this package's internals.
type DeltaWorker struct {
	queue     Queue
	source    catalog.Source
	store     ranking.Store
	configs   ranking.ConfigStore
	qualities quality.ScoreStore
	base      *scoring.Weights
	batchSize int
	logger    *slog.Logger
	metrics   *jobs.Metrics
	now       func() time.Time
}

// NewDeltaWorker creates a delta recompute worker backed by queue.
func NewDeltaWorker(queue Queue, source catalog.Source, store ranking.Store, configs ranking.ConfigStore, qualities quality.ScoreStore, base *scoring.Weights, logger *slog.Logger, metrics *jobs.Metrics) *DeltaWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if base == nil {
		base = scoring.DefaultWeights()
	}
	return &DeltaWorker{
		queue:     queue,
		source:    source,
		store:     store,
		configs:   configs,
		qualities: qualities,
		base:      base,
		batchSize: DefaultDeltaBatchSize,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// SetClock overrides the worker clock for deterministic tests.
func (w *DeltaWorker) SetClock(now func() time.Time) {
	w.now = now
}

// SetBatchSize overrides the per-drain claim limit.
func (w *DeltaWorker) SetBatchSize(n int) {
	if n > 0 {
		w.batchSize = n
	}
}

// ScheduleDelta requests a debounced recompute for one item.
func (w *DeltaWorker) ScheduleDelta(ctx context.Context, itemType ranking.ItemType, itemID string, debounce time.Duration) error {
	return w.queue.Schedule(ctx, itemType, itemID, debounce)
}

// Drain claims and processes all currently due deltas. Failed items are
// logged and dropped rather than retried; the periodic full sweep
// re-scores them.
func (w *DeltaWorker) Drain(ctx context.Context) (*DeltaResult, error) {
	weights := loadWeights(ctx, w.configs, w.base, w.logger)
	batch := stats.NewBatchStats()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tasks, err := w.queue.ClaimDue(ctx, w.batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to claim due deltas: %w", err)
		}
		if len(tasks) == 0 {
			break
		}
		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			w.processTask(ctx, weights, task, batch)
		}
	}

	if w.metrics != nil {
		w.metrics.AddJobItems(jobs.JobTypeDeltaRecompute, jobs.OutcomeSucceeded, int(batch.Succeeded()))
		w.metrics.AddJobItems(jobs.JobTypeDeltaRecompute, jobs.OutcomeFailed, int(batch.Failed()))
	}
	if batch.Processed() > 0 {
		batch.LogSummary(w.logger, jobs.JobTypeDeltaRecompute)
	}

	return &DeltaResult{
		Processed: int(batch.Processed()),
		Succeeded: int(batch.Succeeded()),
		Failed:    int(batch.Failed()),
		Errors:    batch.Errors(),
	}, nil
}

func (w *DeltaWorker) processTask(ctx context.Context, weights *scoring.Weights, task Task, batch *stats.BatchStats) {
	ref := fmt.Sprintf("%s/%s", task.Type, task.ID)

	err := w.recompute(ctx, weights, task)
	if err != nil {
		w.logger.Warn("failed to recompute delta", "item", ref, "error", err)
		batch.RecordFailure(ref, err)
	} else {
		batch.RecordSuccess()
	}

	// Complete either way: failed items wait for the next full sweep,
	// and a newer schedule survives the scheduled_at guard in Complete.
	if err := w.queue.Complete(ctx, task); err != nil {
		w.logger.Warn("failed to complete delta task", "item", ref, "error", err)
	}
}

// recompute re-scores one item. An item that vanished from the source
// has its ranking row removed so it drops out of the feed.
func (w *DeltaWorker) recompute(ctx context.Context, weights *scoring.Weights, task Task) error {
	item, err := w.source.GetItem(ctx, task.Type, task.ID)
	if err != nil {
		if errors.Is(err, catalog.ErrItemNotFound) {
			return w.store.Delete(ctx, task.Type, task.ID)
		}
		return err
	}

	now := w.now()
	raw, err := scoreItem(ctx, w.source, w.qualities, weights, *item, now)
	if err != nil {
		return err
	}
	return w.store.UpsertScore(ctx, task.Type, task.ID, raw)
}
