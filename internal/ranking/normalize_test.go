package ranking

import (
	"context"
	"math"
	"testing"
	"time"
)

func seedStore(t *testing.T, scores map[string]float64) *InMemoryStore {
	t.Helper()
	store := NewInMemoryStore()
	ctx := context.Background()
	for id, raw := range scores {
		if err := store.UpsertScore(ctx, ItemTypeCard, id, raw); err != nil {
			t.Fatalf("UpsertScore(%s) error = %v", id, err)
		}
	}
	return store
}

func TestNormalize_EmptyWindow(t *testing.T) {
	n := NewNormalizer(NewInMemoryStore(), 0, nil)
	res, err := n.Normalize(context.Background())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Window != 0 {
		t.Errorf("window = %d, want 0", res.Window)
	}
}

// TestNormalize_EqualScores verifies a zero-variance window maps every
// norm score to 0 rather than dividing by zero.
func TestNormalize_EqualScores(t *testing.T) {
	store := seedStore(t, map[string]float64{"a": 7.5, "b": 7.5, "c": 7.5})
	n := NewNormalizer(store, 0, nil)

	res, err := n.Normalize(context.Background())
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.StdDev != 0 {
		t.Errorf("std dev = %f, want 0", res.StdDev)
	}

	window, _ := store.RecentWindow(context.Background(), 0)
	for _, item := range window {
		if item.NormScore != 0 {
			t.Errorf("item %s norm = %f, want 0", item.ID, item.NormScore)
		}
	}
}

// TestNormalize_ZScoreDistribution verifies the normalized window has
// mean ~0 and standard deviation ~1.
func TestNormalize_ZScoreDistribution(t *testing.T) {
	store := seedStore(t, map[string]float64{
		"a": 1.0, "b": 4.0, "c": 9.0, "d": 16.0, "e": 25.0,
	})
	n := NewNormalizer(store, 0, nil)

	if _, err := n.Normalize(context.Background()); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	window, err := store.RecentWindow(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentWindow() error = %v", err)
	}

	var sum float64
	for _, item := range window {
		sum += item.NormScore
	}
	mean := sum / float64(len(window))
	if math.Abs(mean) > 1e-9 {
		t.Errorf("mean of norm scores = %f, want ~0", mean)
	}

	var sqSum float64
	for _, item := range window {
		sqSum += (item.NormScore - mean) * (item.NormScore - mean)
	}
	stddev := math.Sqrt(sqSum / float64(len(window)))
	if math.Abs(stddev-1) > 1e-9 {
		t.Errorf("std dev of norm scores = %f, want ~1", stddev)
	}
}

// TestNormalize_WindowBound verifies only the most recently updated
// rows are renormalized when the population exceeds the window.
func TestNormalize_WindowBound(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	// "old" is written first so it falls outside a window of 2.
	for _, id := range []string{"old", "mid", "new"} {
		if err := store.UpsertScore(ctx, ItemTypeCard, id, float64(tick)); err != nil {
			t.Fatalf("UpsertScore(%s) error = %v", id, err)
		}
	}

	n := NewNormalizer(store, 2, nil)
	res, err := n.Normalize(ctx)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if res.Window != 2 {
		t.Errorf("window = %d, want 2", res.Window)
	}

	outside, err := store.Get(ctx, ItemTypeCard, "old")
	if err != nil {
		t.Fatalf("Get(old) error = %v", err)
	}
	if outside.NormScore != 0 {
		t.Errorf("row outside window was renormalized: norm = %f", outside.NormScore)
	}
}

func TestMeanStdDev(t *testing.T) {
	window := []Item{{RawScore: 2}, {RawScore: 4}, {RawScore: 4}, {RawScore: 4}, {RawScore: 5}, {RawScore: 5}, {RawScore: 7}, {RawScore: 9}}
	mean, stddev := meanStdDev(window)
	if mean != 5 {
		t.Errorf("mean = %f, want 5", mean)
	}
	if stddev != 2 {
		t.Errorf("stddev = %f, want 2", stddev)
	}
}
