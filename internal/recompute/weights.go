package recompute

import (
	"context"
	"log/slog"
	"time"

	"github.com/stackroom/rankd/internal/catalog"
	"github.com/stackroom/rankd/internal/quality"
	"github.com/stackroom/rankd/internal/ranking"
	"github.com/stackroom/rankd/internal/scoring"
)

// loadWeights resolves the effective weights for one run: the
// calibration-derived base merged with any admin overrides persisted in
// the ranking config store. Override problems fall back to the base so
// a bad config row never stalls recomputes.
func loadWeights(ctx context.Context, configs ranking.ConfigStore, base *scoring.Weights, logger *slog.Logger) *scoring.Weights {
	if configs == nil {
		return base
	}
	raw, err := configs.GetConfig(ctx, ranking.WeightsConfigKey)
	if err != nil {
		logger.Warn("failed to load weight overrides, using base weights", "error", err)
		return base
	}
	if len(raw) == 0 {
		return base
	}
	overrides, err := scoring.ParseOverrides(raw)
	if err != nil {
		logger.Warn("invalid weight overrides in config store, using base weights", "error", err)
		return base
	}
	return scoring.Merge(base, overrides)
}

// scoreItem computes one item's raw score from its source counters,
// creator quality, promotion state, and age. A quality or promotion
// lookup error fails just this item.
func scoreItem(ctx context.Context, source catalog.Source, qualities quality.ScoreStore, weights *scoring.Weights, item catalog.ItemSummary, now time.Time) (float64, error) {
	q := scoring.DefaultQuality
	if qualities != nil {
		score, err := qualities.GetScore(ctx, item.CreatorID)
		if err != nil {
			return 0, err
		}
		if score != nil {
			q = score.Quality
		}
	}

	promoted, err := source.IsPromoted(ctx, item.Type, item.ID, now)
	if err != nil {
		return 0, err
	}

	w := weights.Card
	if item.Type == ranking.ItemTypeCollection {
		w = weights.Collection
	}

	in := scoring.Inputs{
		Upvotes:   item.Upvotes,
		Saves:     item.Saves,
		Comments:  item.Comments,
		Visits:    item.Visits,
		Quality:   q,
		Promoted:  promoted,
		CreatedAt: item.CreatedAt,
	}
	return scoring.ComputeScore(in, w, now), nil
}
