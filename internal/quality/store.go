package quality

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Score is the persisted quality score for one creator.
type Score struct {
	UserID     string    `json:"user_id"`
	Quality    int       `json:"quality_score"`
	ComputedAt time.Time `json:"computed_at"`
}

// ScoreStore persists computed creator quality scores.
type ScoreStore interface {
	// SaveScore stores a computed quality score.
	SaveScore(ctx context.Context, score Score) error
	// GetScore retrieves a quality score by user id. Returns nil with
	// no error when the user has never been scored.
	GetScore(ctx context.Context, userID string) (*Score, error)
}

// InMemoryScoreStore is an in-memory implementation of ScoreStore for
// tests.
type InMemoryScoreStore struct {
	mu     sync.RWMutex
	scores map[string]Score
}

// NewInMemoryScoreStore creates a new in-memory score store.
func NewInMemoryScoreStore() *InMemoryScoreStore {
	return &InMemoryScoreStore{scores: make(map[string]Score)}
}

// SaveScore stores a computed quality score.
func (s *InMemoryScoreStore) SaveScore(_ context.Context, score Score) error {
	s.mu.Lock()
	s.scores[score.UserID] = score
	s.mu.Unlock()
	return nil
}

// GetScore retrieves a quality score by user id.
func (s *InMemoryScoreStore) GetScore(_ context.Context, userID string) (*Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[userID]
	if !ok {
		return nil, nil
	}
	// Return a copy to avoid external modification
	return &score, nil
}

// PostgresScoreStore implements ScoreStore using PostgreSQL.
type PostgresScoreStore struct {
	db *sql.DB
}

// NewPostgresScoreStore creates a new PostgresScoreStore.
func NewPostgresScoreStore(db *sql.DB) *PostgresScoreStore {
	return &PostgresScoreStore{db: db}
}

// SaveScore upserts the quality score for one creator.
func (s *PostgresScoreStore) SaveScore(ctx context.Context, score Score) error {
	query := `
		INSERT INTO creator_quality_scores (user_id, quality_score, computed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET quality_score = EXCLUDED.quality_score, computed_at = EXCLUDED.computed_at
	`
	if _, err := s.db.ExecContext(ctx, query, score.UserID, score.Quality, score.ComputedAt); err != nil {
		return fmt.Errorf("failed to save quality score for %s: %w", score.UserID, err)
	}
	return nil
}

// GetScore retrieves the quality score for one creator.
func (s *PostgresScoreStore) GetScore(ctx context.Context, userID string) (*Score, error) {
	var score Score
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, quality_score, computed_at
		FROM creator_quality_scores
		WHERE user_id = $1
	`, userID).Scan(&score.UserID, &score.Quality, &score.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quality score for %s: %w", userID, err)
	}
	return &score, nil
}
