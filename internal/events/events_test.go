package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stackroom/rankd/internal/ranking"
)

type scheduledDelta struct {
	itemType ranking.ItemType
	itemID   string
	debounce time.Duration
}

type stubScheduler struct {
	mu    sync.Mutex
	calls []scheduledDelta
	err   error
}

func (s *stubScheduler) ScheduleDelta(_ context.Context, itemType ranking.ItemType, itemID string, debounce time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, scheduledDelta{itemType, itemID, debounce})
	return nil
}

func (s *stubScheduler) scheduled() []scheduledDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduledDelta, len(s.calls))
	copy(out, s.calls)
	return out
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr error
	}{
		{
			name:  "valid upvote",
			event: Event{ItemType: ranking.ItemTypeCard, ItemID: "c1", EventType: EventUpvote},
		},
		{
			name:  "valid promote on collection",
			event: Event{ItemType: ranking.ItemTypeCollection, ItemID: "col1", EventType: EventPromote},
		},
		{
			name:    "unknown event type",
			event:   Event{ItemType: ranking.ItemTypeCard, ItemID: "c1", EventType: "boost"},
			wantErr: ErrInvalidEventType,
		},
		{
			name:    "empty event type",
			event:   Event{ItemType: ranking.ItemTypeCard, ItemID: "c1"},
			wantErr: ErrInvalidEventType,
		},
		{
			name:    "missing item id",
			event:   Event{ItemType: ranking.ItemTypeCard, EventType: EventSave},
			wantErr: ErrMissingItemID,
		},
		{
			name:    "bad item type",
			event:   Event{ItemType: "board", ItemID: "b1", EventType: EventSave},
			wantErr: ranking.ErrInvalidItemType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerAppendsAndSchedules(t *testing.T) {
	store := NewInMemoryStore()
	sched := &stubScheduler{}
	logger := NewLogger(store, sched, true, 3*time.Second, nil)

	event := Event{ItemType: ranking.ItemTypeCard, ItemID: "c1", EventType: EventUpvote, UserID: "u1"}
	if err := logger.Log(context.Background(), event); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	if got := len(store.Events()); got != 1 {
		t.Fatalf("stored events = %d, want 1", got)
	}
	calls := sched.scheduled()
	if len(calls) != 1 {
		t.Fatalf("scheduled deltas = %d, want 1", len(calls))
	}
	if calls[0].itemType != ranking.ItemTypeCard || calls[0].itemID != "c1" {
		t.Errorf("scheduled %s/%s, want card/c1", calls[0].itemType, calls[0].itemID)
	}
	if calls[0].debounce != 3*time.Second {
		t.Errorf("debounce = %v, want 3s", calls[0].debounce)
	}
}

func TestLoggerDisabledIsNoOp(t *testing.T) {
	store := NewInMemoryStore()
	sched := &stubScheduler{}
	logger := NewLogger(store, sched, false, time.Second, nil)

	event := Event{ItemType: ranking.ItemTypeCard, ItemID: "c1", EventType: EventVisit}
	if err := logger.Log(context.Background(), event); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if got := len(store.Events()); got != 0 {
		t.Errorf("stored events = %d, want 0 when disabled", got)
	}
	if got := len(sched.scheduled()); got != 0 {
		t.Errorf("scheduled deltas = %d, want 0 when disabled", got)
	}
}

func TestLoggerRejectsInvalidEvent(t *testing.T) {
	store := NewInMemoryStore()
	logger := NewLogger(store, &stubScheduler{}, true, time.Second, nil)

	err := logger.Log(context.Background(), Event{ItemType: ranking.ItemTypeCard, EventType: EventUpvote})
	if !errors.Is(err, ErrMissingItemID) {
		t.Fatalf("Log() error = %v, want ErrMissingItemID", err)
	}
	if got := len(store.Events()); got != 0 {
		t.Errorf("stored events = %d, want 0 after rejected event", got)
	}
}

func TestLoggerScheduleFailureDoesNotFailLog(t *testing.T) {
	store := NewInMemoryStore()
	sched := &stubScheduler{err: errors.New("queue down")}
	logger := NewLogger(store, sched, true, time.Second, nil)

	event := Event{ItemType: ranking.ItemTypeCollection, ItemID: "col1", EventType: EventSave}
	if err := logger.Log(context.Background(), event); err != nil {
		t.Fatalf("Log() error = %v, want nil when only scheduling fails", err)
	}
	if got := len(store.Events()); got != 1 {
		t.Errorf("stored events = %d, want 1 even when scheduling fails", got)
	}
}

func TestUserActivitySince(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	record := func(eventType, userID string, at time.Time) {
		t.Helper()
		err := store.Append(ctx, Event{
			ItemType:  ranking.ItemTypeCard,
			ItemID:    "c1",
			EventType: eventType,
			UserID:    userID,
			CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	record(EventUpvote, "alice", now.Add(-10*time.Minute))
	record(EventUpvote, "alice", now.Add(-5*time.Minute))
	record(EventClone, "alice", now.Add(-1*time.Minute))
	record(EventCreate, "bob", now.Add(-30*time.Minute))
	record(EventUpvote, "bob", now.Add(-2*time.Hour)) // outside window
	record(EventVisit, "carol", now.Add(-1*time.Minute))
	record(EventUpvote, "", now.Add(-1*time.Minute)) // anonymous, not attributed

	activity, err := store.UserActivitySince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("UserActivitySince() error = %v", err)
	}

	byUser := make(map[string]UserActivity)
	for _, a := range activity {
		byUser[a.UserID] = a
	}

	alice, ok := byUser["alice"]
	if !ok {
		t.Fatal("expected activity for alice")
	}
	if alice.Votes != 2 || alice.Clones != 1 || alice.Creations != 0 {
		t.Errorf("alice activity = %+v, want votes=2 clones=1 creations=0", alice)
	}

	bob, ok := byUser["bob"]
	if !ok {
		t.Fatal("expected activity for bob")
	}
	if bob.Votes != 0 || bob.Creations != 1 {
		t.Errorf("bob activity = %+v, want votes=0 creations=1", bob)
	}

	if _, ok := byUser[""]; ok {
		t.Error("anonymous events must not be attributed to a user")
	}
}
