package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// DefaultWindow is the maximum number of most-recently-updated rows the
// normalizer operates on. Bounding the window bounds the cost of every
// pass regardless of how many items the platform holds.
const DefaultWindow = 10000

// NormalizeResult summarizes one normalization pass.
type NormalizeResult struct {
	Window int     `json:"window"` // Rows in the window
	Mean   float64 `json:"mean"`   // Mean raw score over the window
	StdDev float64 `json:"std_dev"`
}

// Normalizer assigns z-scored norm_score values over the recent window.
// Cards and collections use different weight sets and half-lives, so
// their raw score scales differ; z-scoring over a shared recent
// population makes the two kinds comparable in one blended feed.
type Normalizer struct {
	store  Store
	window int
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer over store. A window of 0 uses
// DefaultWindow.
func NewNormalizer(store Store, window int, logger *slog.Logger) *Normalizer {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{store: store, window: window, logger: logger}
}

// Normalize recomputes norm_score for every row in the recent window,
// not just changed ones, so staleness is bounded independently of how
// many items changed since the last pass. When the window has zero
// variance every norm score becomes 0. Tolerates concurrent raw score
// writers; the next pass restores consistency.
func (n *Normalizer) Normalize(ctx context.Context) (*NormalizeResult, error) {
	window, err := n.store.RecentWindow(ctx, n.window)
	if err != nil {
		return nil, fmt.Errorf("failed to load normalization window: %w", err)
	}
	if len(window) == 0 {
		return &NormalizeResult{}, nil
	}

	mean, stddev := meanStdDev(window)

	updates := make([]NormUpdate, len(window))
	for i, item := range window {
		norm := 0.0
		if stddev > 0 {
			norm = (item.RawScore - mean) / stddev
		}
		updates[i] = NormUpdate{Type: item.Type, ID: item.ID, Norm: norm}
	}

	if err := n.store.SetNormScores(ctx, updates); err != nil {
		return nil, fmt.Errorf("failed to persist norm scores: %w", err)
	}

	n.logger.Debug("normalization pass completed",
		"window", len(window),
		"mean", mean,
		"std_dev", stddev)

	return &NormalizeResult{Window: len(window), Mean: mean, StdDev: stddev}, nil
}

// meanStdDev computes the population mean and standard deviation of the
// raw scores in the window.
func meanStdDev(window []Item) (float64, float64) {
	var sum float64
	for _, item := range window {
		sum += item.RawScore
	}
	mean := sum / float64(len(window))

	var sqSum float64
	for _, item := range window {
		d := item.RawScore - mean
		sqSum += d * d
	}
	return mean, math.Sqrt(sqSum / float64(len(window)))
}
