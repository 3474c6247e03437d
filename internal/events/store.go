package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists engagement events. Appends are the only write; the log
// has no retention requirement.
type Store interface {
	// Append adds one event to the log.
	Append(ctx context.Context, event Event) error

	// UserActivitySince aggregates per-user vote, clone, and creation
	// counts for events at or after since. Events without a user id are
	// excluded.
	UserActivitySince(ctx context.Context, since time.Time) ([]UserActivity, error)
}

// InMemoryStore is an in-memory implementation of Store for tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemoryStore creates a new in-memory event store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append adds one event to the log.
func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

// Events returns a copy of the log (for tests).
func (s *InMemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// UserActivitySince aggregates per-user activity counts.
func (s *InMemoryStore) UserActivitySince(_ context.Context, since time.Time) ([]UserActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUser := make(map[string]*UserActivity)
	for _, e := range s.events {
		if e.UserID == "" || e.CreatedAt.Before(since) {
			continue
		}
		act, ok := byUser[e.UserID]
		if !ok {
			act = &UserActivity{UserID: e.UserID}
			byUser[e.UserID] = act
		}
		switch e.EventType {
		case EventUpvote:
			act.Votes++
		case EventClone:
			act.Clones++
		case EventCreate:
			act.Creations++
		}
	}

	out := make([]UserActivity, 0, len(byUser))
	for _, act := range byUser {
		out = append(out, *act)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres event store.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Append adds one event to the ranking_events log.
func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO ranking_events (id, item_type, item_id, event_type, user_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), string(event.ItemType), event.ItemID, event.EventType, event.UserID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append ranking event: %w", err)
	}
	return nil
}

// UserActivitySince aggregates per-user activity counts in SQL so the
// fraud sweep reads one small result set, not the raw log.
func (s *PostgresStore) UserActivitySince(ctx context.Context, since time.Time) ([]UserActivity, error) {
	query := `
		SELECT user_id,
			COUNT(*) FILTER (WHERE event_type = 'upvote'),
			COUNT(*) FILTER (WHERE event_type = 'clone'),
			COUNT(*) FILTER (WHERE event_type = 'create')
		FROM ranking_events
		WHERE user_id IS NOT NULL AND created_at >= $1
		GROUP BY user_id
		ORDER BY user_id
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user activity: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close activity rows", "error", err)
		}
	}()

	var out []UserActivity
	for rows.Next() {
		var act UserActivity
		if err := rows.Scan(&act.UserID, &act.Votes, &act.Clones, &act.Creations); err != nil {
			return nil, fmt.Errorf("failed to scan user activity: %w", err)
		}
		out = append(out, act)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user activity: %w", err)
	}
	return out, nil
}
