// Package recompute provides the full and delta score recompute
// workers and the durable debounce queue that coalesces delta requests.
package recompute

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stackroom/rankd/internal/ranking"
)

// DefaultDebounce is how long a delta request waits before running so
// bursts against the same item collapse to one recompute.
const DefaultDebounce = 5 * time.Second

// Task is one claimed delta recompute.
type Task struct {
	Type        ranking.ItemType
	ID          string
	ScheduledAt time.Time
}

// Queue is the durable debounce/coalescing store for delta recomputes.
// Scheduling the same (type, id) again pushes its due time forward and
// unclaims it, so at most one effective recompute survives a burst.
// State is persisted, so workers are re-entrant and replicable.
type Queue interface {
	// Schedule upserts the coalescing row for (itemType, itemID) with a
	// due time of now+debounce.
	Schedule(ctx context.Context, itemType ranking.ItemType, itemID string, debounce time.Duration) error

	// ClaimDue atomically claims up to limit due, unclaimed rows. A
	// claimed row is invisible to other workers until completed or
	// superseded by a newer Schedule.
	ClaimDue(ctx context.Context, limit int) ([]Task, error)

	// Complete removes a claimed row. If a newer Schedule superseded the
	// claim, the row survives for its later due time and this call is a
	// no-op.
	Complete(ctx context.Context, task Task) error
}

type queueKey struct {
	t  ranking.ItemType
	id string
}

type queueRow struct {
	scheduledAt time.Time
	claimed     bool
}

// InMemoryQueue is an in-memory implementation of Queue for tests.
type InMemoryQueue struct {
	mu   sync.Mutex
	rows map[queueKey]queueRow
	now  func() time.Time
}

// NewInMemoryQueue creates a new in-memory delta queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		rows: make(map[queueKey]queueRow),
		now:  time.Now,
	}
}

// SetClock overrides the queue clock for deterministic tests.
func (q *InMemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	q.now = now
	q.mu.Unlock()
}

// Schedule upserts the coalescing row for one item.
func (q *InMemoryQueue) Schedule(_ context.Context, itemType ranking.ItemType, itemID string, debounce time.Duration) error {
	if !itemType.Valid() {
		return ranking.ErrInvalidItemType
	}
	if itemID == "" {
		return ranking.ErrEmptyItemID
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	q.mu.Lock()
	q.rows[queueKey{itemType, itemID}] = queueRow{scheduledAt: q.now().Add(debounce)}
	q.mu.Unlock()
	return nil
}

// ClaimDue claims up to limit due, unclaimed rows.
func (q *InMemoryQueue) ClaimDue(_ context.Context, limit int) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var due []Task
	for key, row := range q.rows {
		if row.claimed || row.scheduledAt.After(now) {
			continue
		}
		due = append(due, Task{Type: key.t, ID: key.id, ScheduledAt: row.scheduledAt})
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ScheduledAt.Before(due[j].ScheduledAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, task := range due {
		key := queueKey{task.Type, task.ID}
		row := q.rows[key]
		row.claimed = true
		q.rows[key] = row
	}
	return due, nil
}

// Complete removes a claimed row unless it was superseded.
func (q *InMemoryQueue) Complete(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := queueKey{task.Type, task.ID}
	row, ok := q.rows[key]
	if !ok {
		return nil
	}
	if !row.scheduledAt.Equal(task.ScheduledAt) {
		// A newer Schedule superseded this claim; keep the row.
		return nil
	}
	delete(q.rows, key)
	return nil
}

// Pending returns the number of queued rows (for tests).
func (q *InMemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.rows)
}

// PostgresQueue implements Queue against the delta_queue table.
type PostgresQueue struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresQueue creates a new Postgres delta queue.
func NewPostgresQueue(db *sql.DB, logger *slog.Logger) *PostgresQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQueue{db: db, logger: logger}
}

// Schedule upserts the coalescing row; the conflict path pushes the due
// time forward and unclaims the row, superseding any in-flight claim.
func (q *PostgresQueue) Schedule(ctx context.Context, itemType ranking.ItemType, itemID string, debounce time.Duration) error {
	if !itemType.Valid() {
		return ranking.ErrInvalidItemType
	}
	if itemID == "" {
		return ranking.ErrEmptyItemID
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	query := `
		INSERT INTO delta_queue (item_type, item_id, scheduled_at, claimed_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second', NULL)
		ON CONFLICT (item_type, item_id)
		DO UPDATE SET scheduled_at = EXCLUDED.scheduled_at, claimed_at = NULL
	`
	if _, err := q.db.ExecContext(ctx, query, string(itemType), itemID, debounce.Seconds()); err != nil {
		return fmt.Errorf("failed to schedule delta for %s/%s: %w", itemType, itemID, err)
	}
	return nil
}

// ClaimDue claims due rows with SKIP LOCKED so replicas never block on
// or double-claim the same row.
func (q *PostgresQueue) ClaimDue(ctx context.Context, limit int) ([]Task, error) {
	query := `
		UPDATE delta_queue SET claimed_at = NOW()
		WHERE (item_type, item_id) IN (
			SELECT item_type, item_id FROM delta_queue
			WHERE scheduled_at <= NOW() AND claimed_at IS NULL
			ORDER BY scheduled_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING item_type, item_id, scheduled_at
	`
	rows, err := q.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due deltas: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			q.logger.Warn("failed to close claim rows", "error", err)
		}
	}()

	var tasks []Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.Type, &task.ID, &task.ScheduledAt); err != nil {
			return nil, fmt.Errorf("failed to scan claimed delta: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claimed deltas: %w", err)
	}
	return tasks, nil
}

// Complete deletes a claimed row. The scheduled_at guard makes the
// delete a no-op when a newer Schedule superseded the claim.
func (q *PostgresQueue) Complete(ctx context.Context, task Task) error {
	query := `
		DELETE FROM delta_queue
		WHERE item_type = $1 AND item_id = $2 AND scheduled_at = $3
	`
	if _, err := q.db.ExecContext(ctx, query, string(task.Type), task.ID, task.ScheduledAt); err != nil {
		return fmt.Errorf("failed to complete delta for %s/%s: %w", task.Type, task.ID, err)
	}
	return nil
}
