package quality

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stackroom/rankd/internal/catalog"
	"github.com/stackroom/rankd/internal/jobs"
	"github.com/stackroom/rankd/internal/stats"
)

// SweepResult summarizes one quality sweep run.
type SweepResult struct {
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// Sweeper recomputes quality scores for all users on demand or on a
// schedule.
type Sweeper struct {
	source  catalog.Source
	store   ScoreStore
	logger  *slog.Logger
	metrics *jobs.Metrics
	now     func() time.Time
}

// NewSweeper creates a quality sweeper. metrics may be nil.
func NewSweeper(source catalog.Source, store ScoreStore, logger *slog.Logger, metrics *jobs.Metrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		source:  source,
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock overrides the sweep clock for deterministic tests.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// RunSweep recomputes and persists the quality score of every user.
// Per-user failures are isolated: they are recorded and the sweep
// continues. Only a failure to list users aborts the run.
func (s *Sweeper) RunSweep(ctx context.Context) (*SweepResult, error) {
	userIDs, err := s.source.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users for quality sweep: %w", err)
	}

	batch := stats.NewBatchStats()
	now := s.now()

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			// Interrupted mid-sweep: scores written so far are durable,
			// the rest stay stale until the next run.
			return nil, fmt.Errorf("quality sweep interrupted: %w", err)
		}

		if err := s.sweepUser(ctx, userID, now); err != nil {
			s.logger.Error("failed to recompute quality score",
				"user_id", userID,
				"error", err)
			batch.RecordFailure(userID, err)
			continue
		}
		batch.RecordSuccess()
	}

	if s.metrics != nil {
		s.metrics.AddJobItems(jobs.JobTypeQualitySweep, jobs.OutcomeSucceeded, int(batch.Succeeded()))
		s.metrics.AddJobItems(jobs.JobTypeQualitySweep, jobs.OutcomeFailed, int(batch.Failed()))
	}
	batch.LogSummary(s.logger, jobs.JobTypeQualitySweep)

	return &SweepResult{
		Updated: int(batch.Succeeded()),
		Failed:  int(batch.Failed()),
		Errors:  batch.Errors(),
	}, nil
}

func (s *Sweeper) sweepUser(ctx context.Context, userID string, now time.Time) error {
	sig, err := s.source.GetUserSignals(ctx, userID)
	if err != nil {
		return err
	}
	return s.store.SaveScore(ctx, Score{
		UserID:     userID,
		Quality:    ComputeQuality(*sig, now),
		ComputedAt: now,
	})
}
