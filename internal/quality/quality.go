// Package quality computes per-creator reputation scores from account
// history and engagement received, feeding the ranking formula's
// creator factor.
package quality

import (
	"math"
	"time"

	"github.com/stackroom/rankd/internal/catalog"
)

// Baseline is the starting score for every creator; a brand-new account
// with no history lands here.
const Baseline = 50

// Component caps keep any single signal from dominating the score.
const (
	maxAgeBonus        = 10
	maxCollectionBonus = 20
	maxUpvoteBonus     = 15
	maxCardBonus       = 10
	maxCommentBonus    = 5
	reportPenalty      = 5
)

// ComputeQuality calculates the 0-100 quality score for one creator.
//
// Starting from Baseline, capped bonuses accrue for account age, public
// collection count, upvotes received, card count, and live comments;
// each resolved report against the user subtracts a flat penalty. The
// result is clamped to [0, 100] and rounded, so it is bounded for
// arbitrary input magnitudes.
func ComputeQuality(sig catalog.UserSignals, now time.Time) int {
	score := float64(Baseline)

	ageDays := now.Sub(sig.AccountCreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	score += math.Min(maxAgeBonus, ageDays/3)
	score += math.Min(maxCollectionBonus, float64(sig.PublicCollections)*2)
	score += math.Min(maxUpvoteBonus, float64(sig.UpvotesReceived)/10)
	score += math.Min(maxCardBonus, float64(sig.Cards)*0.5)
	score += math.Min(maxCommentBonus, float64(sig.LiveComments)*0.2)
	score -= float64(sig.ResolvedReports) * reportPenalty

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(math.Round(score))
}
