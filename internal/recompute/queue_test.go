package recompute

import (
	"context"
	"testing"
	"time"

	"github.com/stackroom/rankd/internal/ranking"
)

func TestQueueCoalescesBursts(t *testing.T) {
	q := NewInMemoryQueue()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })
	ctx := context.Background()

	// A burst of events against the same item collapses to one row.
	for i := 0; i < 5; i++ {
		if err := q.Schedule(ctx, ranking.ItemTypeCard, "c1", 5*time.Second); err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
		now = now.Add(time.Second)
	}
	if got := q.Pending(); got != 1 {
		t.Fatalf("pending rows = %d, want 1 after coalescing", got)
	}

	// The last event pushed the due time forward, so nothing is due yet.
	tasks, err := q.ClaimDue(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("claimed %d tasks before due time, want 0", len(tasks))
	}

	now = now.Add(5 * time.Second)
	tasks, err = q.ClaimDue(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("claimed %d tasks, want 1", len(tasks))
	}
	if tasks[0].Type != ranking.ItemTypeCard || tasks[0].ID != "c1" {
		t.Errorf("claimed %s/%s, want card/c1", tasks[0].Type, tasks[0].ID)
	}
}

func TestQueueClaimedRowIsInvisible(t *testing.T) {
	q := NewInMemoryQueue()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })
	ctx := context.Background()

	if err := q.Schedule(ctx, ranking.ItemTypeCollection, "col1", time.Second); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	now = now.Add(2 * time.Second)

	first, err := q.ClaimDue(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first claim = %d tasks, want 1", len(first))
	}

	second, err := q.ClaimDue(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second claim = %d tasks, want 0 while first claim in flight", len(second))
	}

	if err := q.Complete(ctx, first[0]); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got := q.Pending(); got != 0 {
		t.Errorf("pending rows = %d, want 0 after complete", got)
	}
}

func TestQueueRescheduleSupersedesClaim(t *testing.T) {
	q := NewInMemoryQueue()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })
	ctx := context.Background()

	if err := q.Schedule(ctx, ranking.ItemTypeCard, "c1", time.Second); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	now = now.Add(2 * time.Second)

	claimed, err := q.ClaimDue(ctx, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue() = %v tasks, err %v; want 1 task", len(claimed), err)
	}

	// New activity while the claim is in flight reschedules the row.
	if err := q.Schedule(ctx, ranking.ItemTypeCard, "c1", time.Second); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// Completing the stale claim must not lose the rescheduled work.
	if err := q.Complete(ctx, claimed[0]); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got := q.Pending(); got != 1 {
		t.Fatalf("pending rows = %d, want 1 surviving reschedule", got)
	}

	now = now.Add(2 * time.Second)
	again, err := q.ClaimDue(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(again) != 1 {
		t.Errorf("claimed %d tasks after reschedule, want 1", len(again))
	}
}

func TestQueueClaimLimitOrdersByDueTime(t *testing.T) {
	q := NewInMemoryQueue()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return now })
	ctx := context.Background()

	if err := q.Schedule(ctx, ranking.ItemTypeCard, "late", 10*time.Second); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if err := q.Schedule(ctx, ranking.ItemTypeCard, "early", time.Second); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	now = now.Add(time.Minute)

	tasks, err := q.ClaimDue(ctx, 1)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "early" {
		t.Fatalf("claimed %v, want the earliest-due task", tasks)
	}
}

func TestQueueScheduleValidation(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	if err := q.Schedule(ctx, "board", "x", time.Second); err != ranking.ErrInvalidItemType {
		t.Errorf("Schedule() with bad type = %v, want ErrInvalidItemType", err)
	}
	if err := q.Schedule(ctx, ranking.ItemTypeCard, "", time.Second); err != ranking.ErrEmptyItemID {
		t.Errorf("Schedule() with empty id = %v, want ErrEmptyItemID", err)
	}
}
