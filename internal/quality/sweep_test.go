package quality

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stackroom/rankd/internal/catalog"
)

func TestRunSweep(t *testing.T) {
	source := catalog.NewInMemorySource()
	source.AddUser(catalog.UserSignals{UserID: "alice", AccountCreatedAt: qualityNow.AddDate(-1, 0, 0)})
	source.AddUser(catalog.UserSignals{UserID: "bob", AccountCreatedAt: qualityNow, ResolvedReports: 2})

	store := NewInMemoryScoreStore()
	s := NewSweeper(source, store, nil, nil)
	s.SetClock(func() time.Time { return qualityNow })

	res, err := s.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if res.Updated != 2 || res.Failed != 0 {
		t.Errorf("result = %+v, want 2 updated, 0 failed", res)
	}

	alice, err := store.GetScore(context.Background(), "alice")
	if err != nil || alice == nil {
		t.Fatalf("GetScore(alice) = %v, %v", alice, err)
	}
	if alice.Quality != 60 {
		t.Errorf("alice quality = %d, want 60", alice.Quality)
	}

	bob, _ := store.GetScore(context.Background(), "bob")
	if bob == nil || bob.Quality != 40 {
		t.Errorf("bob score = %+v, want quality 40", bob)
	}
}

// TestRunSweep_FailureIsolation verifies one user's failing signal
// lookup does not abort the sweep for the others.
func TestRunSweep_FailureIsolation(t *testing.T) {
	source := catalog.NewInMemorySource()
	source.AddUser(catalog.UserSignals{UserID: "alice", AccountCreatedAt: qualityNow})
	source.AddUser(catalog.UserSignals{UserID: "broken", AccountCreatedAt: qualityNow})
	source.AddUser(catalog.UserSignals{UserID: "carol", AccountCreatedAt: qualityNow})
	source.FailUser("broken", errors.New("signals query timed out"))

	store := NewInMemoryScoreStore()
	s := NewSweeper(source, store, nil, nil)
	s.SetClock(func() time.Time { return qualityNow })

	res, err := s.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if res.Updated != 2 {
		t.Errorf("updated = %d, want 2", res.Updated)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "broken") {
		t.Errorf("errors = %v, want one entry naming the broken user", res.Errors)
	}

	if score, _ := store.GetScore(context.Background(), "carol"); score == nil {
		t.Error("carol was not scored despite broken preceding user")
	}
	if score, _ := store.GetScore(context.Background(), "broken"); score != nil {
		t.Error("broken user should have no persisted score")
	}
}

func TestRunSweep_CancelledContext(t *testing.T) {
	source := catalog.NewInMemorySource()
	source.AddUser(catalog.UserSignals{UserID: "alice", AccountCreatedAt: qualityNow})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSweeper(source, NewInMemoryScoreStore(), nil, nil)
	if _, err := s.RunSweep(ctx); err == nil {
		t.Error("RunSweep() with cancelled context should error")
	}
}
