// Package fraud flags anomalous engagement bursts so operators can
// review them before they distort the feed.
package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stackroom/rankd/internal/events"
	"github.com/stackroom/rankd/internal/jobs"
)

// Per-user activity thresholds over one detection window. Exceeding any
// of them flags the user.
const (
	MaxVotesPerWindow     = 50
	MaxClonesPerWindow    = 10
	MaxCreationsPerWindow = 30
)

// DefaultWindow is how far back one sweep looks.
const DefaultWindow = time.Hour

// Spike is one threshold violation by one user.
type Spike struct {
	UserID    string `json:"user_id"`
	Count     int    `json:"count"`
	Threshold int    `json:"threshold"`
}

// Report lists every violation found in one sweep. Flagged users are
// surfaced for review only; scores are not touched automatically.
type Report struct {
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	VoteSpikes     []Spike   `json:"vote_spikes,omitempty"`
	CloneSpikes    []Spike   `json:"clone_spikes,omitempty"`
	CreationSpikes []Spike   `json:"creation_spikes,omitempty"`
	FlaggedUsers   []string  `json:"flagged_users,omitempty"`
}

// Flagged reports whether the sweep found anything.
func (r *Report) Flagged() bool {
	return len(r.FlaggedUsers) > 0
}

// Detector scans recent event activity for per-user spikes.
type Detector struct {
	store   events.Store
	window  time.Duration
	logger  *slog.Logger
	metrics *jobs.Metrics
	now     func() time.Time
}

// NewDetector creates a fraud detector over the event store. window <= 0
// uses DefaultWindow.
func NewDetector(store events.Store, window time.Duration, logger *slog.Logger, metrics *jobs.Metrics) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		store:   store,
		window:  window,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock overrides the detector clock for deterministic tests.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// Sweep aggregates activity over the window and reports every user that
// crossed a threshold.
func (d *Detector) Sweep(ctx context.Context) (*Report, error) {
	end := d.now()
	start := end.Add(-d.window)

	activity, err := d.store.UserActivitySince(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user activity: %w", err)
	}

	report := &Report{WindowStart: start, WindowEnd: end}
	flagged := make(map[string]bool)
	for _, act := range activity {
		if act.Votes > MaxVotesPerWindow {
			report.VoteSpikes = append(report.VoteSpikes, Spike{act.UserID, act.Votes, MaxVotesPerWindow})
			flagged[act.UserID] = true
		}
		if act.Clones > MaxClonesPerWindow {
			report.CloneSpikes = append(report.CloneSpikes, Spike{act.UserID, act.Clones, MaxClonesPerWindow})
			flagged[act.UserID] = true
		}
		if act.Creations > MaxCreationsPerWindow {
			report.CreationSpikes = append(report.CreationSpikes, Spike{act.UserID, act.Creations, MaxCreationsPerWindow})
			flagged[act.UserID] = true
		}
		if flagged[act.UserID] {
			report.FlaggedUsers = append(report.FlaggedUsers, act.UserID)
		}
	}

	if d.metrics != nil {
		d.metrics.AddJobItems(jobs.JobTypeFraudSweep, jobs.OutcomeSucceeded, len(activity))
	}
	if report.Flagged() {
		d.logger.Warn("fraud sweep flagged users",
			"flagged", len(report.FlaggedUsers),
			"vote_spikes", len(report.VoteSpikes),
			"clone_spikes", len(report.CloneSpikes),
			"creation_spikes", len(report.CreationSpikes),
		)
	} else {
		d.logger.Info("fraud sweep found no anomalies", "users_checked", len(activity))
	}
	return report, nil
}
