// Package scoring provides the pure relevance scoring function for
// ranked items, with calibration support for deploy-time weight tuning.
package scoring

import (
	"math"
	"time"
)

// DefaultQuality is the creator quality score assumed when no computed
// score exists for the creator.
const DefaultQuality = 50

// Inputs holds everything the scoring formula needs for one item.
// Counter fields are clamped to >= 0 before use so that stale or
// corrupted negative counters cannot produce NaN from the log terms.
type Inputs struct {
	Upvotes  int64
	Saves    int64
	Comments int64
	Visits   int64 // Always 0 for collections

	Quality  int  // Creator quality score 0-100; DefaultQuality if unknown
	Promoted bool // Whether a promotion window covers now

	CreatedAt time.Time

	// AbuseFactor is a multiplicative penalty in (0, 1]. It is reserved
	// for fraud signal integration; callers pass 0 to mean "unset" and
	// get the neutral factor 1.
	AbuseFactor float64
}

// ComputeScore computes the raw relevance score for one item.
//
// The formula is:
//
//	base = w_u*ln(1+U) + w_s*ln(1+S) + w_c*ln(1+C) + w_v*ln(1+V)
//	raw  = base * (1 + Q/100) * (1 + P*boost) * e^(-ln2/H * ageHours) * f_abuse
//
// It is deterministic and side-effect free: identical inputs always
// yield the identical score. It is monotone non-decreasing in each
// engagement counter and monotone decreasing in age. Negative ages
// (clock skew between the content store and this process) are treated
// as 0 so future-dated items are not inflated.
func ComputeScore(in Inputs, w ItemWeights, now time.Time) float64 {
	base := w.Upvotes*math.Log1p(clampCount(in.Upvotes)) +
		w.Saves*math.Log1p(clampCount(in.Saves)) +
		w.Comments*math.Log1p(clampCount(in.Comments)) +
		w.Visits*math.Log1p(clampCount(in.Visits))

	quality := in.Quality
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	creatorFactor := 1 + float64(quality)/100

	promoFactor := 1.0
	if in.Promoted {
		promoFactor = 1 + w.PromoBoost
	}

	ageHours := now.Sub(in.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	ageFactor := 1.0
	if w.HalfLifeHours > 0 {
		lambda := math.Ln2 / w.HalfLifeHours
		ageFactor = math.Exp(-lambda * ageHours)
	}

	return base * creatorFactor * promoFactor * ageFactor * clampAbuse(in.AbuseFactor)
}

// clampCount converts a counter to a non-negative float.
func clampCount(n int64) float64 {
	if n < 0 {
		return 0
	}
	return float64(n)
}

// clampAbuse maps an abuse factor into (0, 1]. Zero (unset) and
// out-of-range values become the neutral factor 1; a genuine penalty
// must be strictly positive so a score can never be zeroed outright.
func clampAbuse(f float64) float64 {
	if f <= 0 || f > 1 {
		return 1
	}
	return f
}
