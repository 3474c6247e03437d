package recompute

import (
	"context"
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

// DefaultChangedSinceDays bounds a full sweep to items touched within
// the last month; older items have decayed far enough that re-scoring
// them barely moves the feed.
const DefaultChangedSinceDays = 30

// FullParams controls one full recompute run.
type FullParams struct {
	// ItemType restricts the run to one item type. Nil runs both.
	ItemType *ranking.ItemType

	// ChangedSinceDays bounds the sweep to items updated within this
	// many days. Zero or negative uses DefaultChangedSinceDays.
	ChangedSinceDays int

	// DryRun computes every score without persisting anything.
	DryRun bool
}

// FullResult reports one full recompute run.
type FullResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
	DryRun    bool     `json:"dry_run"`
}

// FullWorker recomputes scores for every recently changed item, then
// normalizes the window and republishes the ranked view. One bad item
// never aborts the sweep.
type FullWorker struct {
	source     catalog.Source
	store      ranking.Store
	configs    ranking.ConfigStore
	qualities  quality.ScoreStore
	normalizer *ranking.Normalizer
	publisher  *ranking.Publisher
	base       *scoring.Weights
	logger     *slog.Logger
	metrics    *jobs.Metrics
	now        func() time.Time
}

// NewFullWorker creates a full recompute worker. base is the
// calibration-derived weight set; normalizer and publisher may be nil
// in tests that only exercise scoring.
func NewFullWorker(source catalog.Source, store ranking.Store, configs ranking.ConfigStore, qualities quality.ScoreStore, normalizer *ranking.Normalizer, publisher *ranking.Publisher, base *scoring.Weights, logger *slog.Logger, metrics *jobs.Metrics) *FullWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if base == nil {
		base = scoring.DefaultWeights()
	}
	return &FullWorker{
		source:     source,
		store:      store,
		configs:    configs,
		qualities:  qualities,
		normalizer: normalizer,
		publisher:  publisher,
		base:       base,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// SetClock overrides the worker clock for deterministic tests.
func (w *FullWorker) SetClock(now func() time.Time) {
	w.now = now
}

// Run executes one full recompute pass.
func (w *FullWorker) Run(ctx context.Context, params FullParams) (*FullResult, error) {
	days := params.ChangedSinceDays
	if days <= 0 {
		days = DefaultChangedSinceDays
	}
	now := w.now()
	changedSince := now.Add(-time.Duration(days) * 24 * time.Hour)

	// Weights resolve once per run so every item in the sweep is scored
	// against the same configuration.
	weights := loadWeights(ctx, w.configs, w.base, w.logger)

	types := []ranking.ItemType{ranking.ItemTypeCard, ranking.ItemTypeCollection}
	if params.ItemType != nil {
		types = []ranking.ItemType{*params.ItemType}
	}

	batch := stats.NewBatchStats()
	for _, itemType := range types {
		items, err := w.source.ListItems(ctx, itemType, &changedSince)
		if err != nil {
			return nil, fmt.Errorf("failed to list %ss for full recompute: %w", itemType, err)
		}
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			w.recomputeItem(ctx, weights, item, now, params.DryRun, batch)
		}
	}

	if !params.DryRun {
		if err := w.finish(ctx, batch); err != nil {
			batch.RecordFailure("publish", err)
		}
	}

	if w.metrics != nil {
		w.metrics.AddJobItems(jobs.JobTypeFullRecompute, jobs.OutcomeSucceeded, int(batch.Succeeded()))
		w.metrics.AddJobItems(jobs.JobTypeFullRecompute, jobs.OutcomeFailed, int(batch.Failed()))
	}
	batch.LogSummary(w.logger, jobs.JobTypeFullRecompute)

	return &FullResult{
		Processed: int(batch.Processed()),
		Succeeded: int(batch.Succeeded()),
		Failed:    int(batch.Failed()),
		Errors:    batch.Errors(),
		DryRun:    params.DryRun,
	}, nil
}

func (w *FullWorker) recomputeItem(ctx context.Context, weights *scoring.Weights, item catalog.ItemSummary, now time.Time, dryRun bool, batch *stats.BatchStats) {
	ref := fmt.Sprintf("%s/%s", item.Type, item.ID)
	raw, err := scoreItem(ctx, w.source, w.qualities, weights, item, now)
	if err != nil {
		w.logger.Warn("failed to score item", "item", ref, "error", err)
		batch.RecordFailure(ref, err)
		return
	}
	if !dryRun {
		if err := w.store.UpsertScore(ctx, item.Type, item.ID, raw); err != nil {
			w.logger.Warn("failed to persist score", "item", ref, "error", err)
			batch.RecordFailure(ref, err)
			return
		}
	}
	batch.RecordSuccess()
}

// finish normalizes the recent window and republishes the ranked view
// after a non-dry run.
func (w *FullWorker) finish(ctx context.Context, batch *stats.BatchStats) error {
	if w.normalizer != nil {
		result, err := w.normalizer.Normalize(ctx)
		if err != nil {
			return fmt.Errorf("failed to normalize scores: %w", err)
		}
		w.logger.Info("normalized scores after full recompute",
			"window", result.Window,
			"mean", result.Mean,
			"std_dev", result.StdDev,
		)
	}
	if w.publisher != nil {
		if err := w.publisher.Refresh(ctx); err != nil {
			return fmt.Errorf("failed to publish ranked view: %w", err)
		}
	}
	return nil
}
