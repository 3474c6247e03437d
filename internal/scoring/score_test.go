package scoring

import (
	"math"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func baseInputs() Inputs {
	return Inputs{
		Upvotes:   10,
		Saves:     5,
		Comments:  2,
		Visits:    100,
		Quality:   80,
		CreatedAt: testNow.Add(-24 * time.Hour),
	}
}

// TestComputeScore_RegressionVector pins the formula against a hand
// computed value so weight refactors cannot silently change results.
func TestComputeScore_RegressionVector(t *testing.T) {
	got := ComputeScore(baseInputs(), DefaultWeights().Card, testNow)

	// base = 1.0*ln(11) + 2.0*ln(6) + 2.5*ln(3) + 1.5*ln(101) ~= 15.65
	// raw  = base * 1.8 * e^(-ln2/48*24) ~= 19.9
	if math.Abs(got-19.9) > 0.1 {
		t.Errorf("ComputeScore() = %f, want ~19.9", got)
	}
}

// TestComputeScore_CounterMonotonicity verifies the score is
// non-decreasing in each engagement counter individually.
func TestComputeScore_CounterMonotonicity(t *testing.T) {
	w := DefaultWeights().Card

	bump := []struct {
		name string
		mut  func(*Inputs)
	}{
		{"upvotes", func(in *Inputs) { in.Upvotes += 7 }},
		{"saves", func(in *Inputs) { in.Saves += 7 }},
		{"comments", func(in *Inputs) { in.Comments += 7 }},
		{"visits", func(in *Inputs) { in.Visits += 7 }},
	}

	for _, tt := range bump {
		t.Run(tt.name, func(t *testing.T) {
			lo := baseInputs()
			hi := baseInputs()
			tt.mut(&hi)

			before := ComputeScore(lo, w, testNow)
			after := ComputeScore(hi, w, testNow)
			if after < before {
				t.Errorf("score decreased when %s increased: %f -> %f", tt.name, before, after)
			}
		})
	}
}

// TestComputeScore_AgeDecay verifies older items never outrank younger
// ones when everything else is equal.
func TestComputeScore_AgeDecay(t *testing.T) {
	w := DefaultWeights().Card

	young := baseInputs()
	young.CreatedAt = testNow.Add(-2 * time.Hour)
	old := baseInputs()
	old.CreatedAt = testNow.Add(-96 * time.Hour)

	if ComputeScore(young, w, testNow) < ComputeScore(old, w, testNow) {
		t.Error("younger item scored below older item with identical engagement")
	}
}

func TestComputeScore_NegativeAgeTreatedAsZero(t *testing.T) {
	w := DefaultWeights().Card

	future := baseInputs()
	future.CreatedAt = testNow.Add(3 * time.Hour) // clock skew
	fresh := baseInputs()
	fresh.CreatedAt = testNow

	got := ComputeScore(future, w, testNow)
	want := ComputeScore(fresh, w, testNow)
	if got != want {
		t.Errorf("future-dated item score = %f, want %f (age clamped to 0)", got, want)
	}
}

func TestComputeScore_NegativeCountersClamped(t *testing.T) {
	w := DefaultWeights().Card

	in := baseInputs()
	in.Upvotes = -50
	in.Visits = -3

	got := ComputeScore(in, w, testNow)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("ComputeScore() = %f, want finite", got)
	}

	zeroed := baseInputs()
	zeroed.Upvotes = 0
	zeroed.Visits = 0
	if got != ComputeScore(zeroed, w, testNow) {
		t.Error("negative counters should score identically to zero counters")
	}
}

// TestComputeScore_PromotionExactBoost checks a promoted collection
// scores exactly 1.5x its unpromoted twin with the default 0.5 boost.
func TestComputeScore_PromotionExactBoost(t *testing.T) {
	w := DefaultWeights().Collection

	plain := baseInputs()
	plain.Visits = 0
	promoted := plain
	promoted.Promoted = true

	unpromoted := ComputeScore(plain, w, testNow)
	boosted := ComputeScore(promoted, w, testNow)

	if boosted != unpromoted*1.5 {
		t.Errorf("promoted score = %f, want exactly %f", boosted, unpromoted*1.5)
	}
	if boosted < unpromoted {
		t.Error("promotion must never lower a score")
	}
}

func TestComputeScore_Deterministic(t *testing.T) {
	w := DefaultWeights().Card
	in := baseInputs()

	first := ComputeScore(in, w, testNow)
	for i := 0; i < 10; i++ {
		if got := ComputeScore(in, w, testNow); got != first {
			t.Fatalf("run %d: ComputeScore() = %f, want %f", i, got, first)
		}
	}
}

func TestComputeScore_AbuseFactor(t *testing.T) {
	w := DefaultWeights().Card
	in := baseInputs()

	tests := []struct {
		name   string
		factor float64
		want   float64
	}{
		{"unset defaults to neutral", 0, ComputeScore(in, w, testNow)},
		{"above one clamped to neutral", 2.5, ComputeScore(in, w, testNow)},
		{"half penalty", 0.5, ComputeScore(in, w, testNow) * 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scored := in
			scored.AbuseFactor = tt.factor
			if got := ComputeScore(scored, w, testNow); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("ComputeScore() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestComputeScore_QualityClamped(t *testing.T) {
	w := DefaultWeights().Card

	in := baseInputs()
	in.Quality = 250
	capped := baseInputs()
	capped.Quality = 100
	if ComputeScore(in, w, testNow) != ComputeScore(capped, w, testNow) {
		t.Error("quality above 100 should clamp to 100")
	}

	in.Quality = -10
	floored := baseInputs()
	floored.Quality = 0
	if ComputeScore(in, w, testNow) != ComputeScore(floored, w, testNow) {
		t.Error("quality below 0 should clamp to 0")
	}
}
