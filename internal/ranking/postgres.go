package ranking

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// PostgresStore implements Store and ConfigStore using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// UpsertScore writes the raw score for (itemType, itemID). Each upsert
// commits independently so an interrupted batch leaves prior rows
// intact.
func (s *PostgresStore) UpsertScore(ctx context.Context, itemType ItemType, itemID string, rawScore float64) error {
	if !itemType.Valid() {
		return ErrInvalidItemType
	}
	if itemID == "" {
		return ErrEmptyItemID
	}

	query := `
		INSERT INTO ranking_items (item_type, item_id, raw_score, norm_score, updated_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (item_type, item_id)
		DO UPDATE SET raw_score = EXCLUDED.raw_score, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, string(itemType), itemID, rawScore); err != nil {
		return fmt.Errorf("failed to upsert score for %s/%s: %w", itemType, itemID, err)
	}
	return nil
}

// Get retrieves one ranked item.
func (s *PostgresStore) Get(ctx context.Context, itemType ItemType, itemID string) (*Item, error) {
	query := `
		SELECT item_type, item_id, raw_score, norm_score, updated_at
		FROM ranking_items
		WHERE item_type = $1 AND item_id = $2
	`
	var item Item
	err := s.db.QueryRowContext(ctx, query, string(itemType), itemID).
		Scan(&item.Type, &item.ID, &item.RawScore, &item.NormScore, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking item %s/%s: %w", itemType, itemID, err)
	}
	return &item, nil
}

// Delete removes a ranked item.
func (s *PostgresStore) Delete(ctx context.Context, itemType ItemType, itemID string) error {
	query := `DELETE FROM ranking_items WHERE item_type = $1 AND item_id = $2`
	if _, err := s.db.ExecContext(ctx, query, string(itemType), itemID); err != nil {
		return fmt.Errorf("failed to delete ranking item %s/%s: %w", itemType, itemID, err)
	}
	return nil
}

// RecentWindow returns up to limit rows by updated_at descending.
func (s *PostgresStore) RecentWindow(ctx context.Context, limit int) ([]Item, error) {
	query := `
		SELECT item_type, item_id, raw_score, norm_score, updated_at
		FROM ranking_items
		ORDER BY updated_at DESC, item_id ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent window: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close window rows", "error", err)
		}
	}()

	var window []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.Type, &item.ID, &item.RawScore, &item.NormScore, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ranking item: %w", err)
		}
		window = append(window, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent window: %w", err)
	}
	return window, nil
}

// SetNormScores persists a batch of normalized scores in one
// transaction so a partially applied normalization pass never becomes
// visible.
func (s *PostgresStore) SetNormScores(ctx context.Context, updates []NormUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Always attempt rollback on function exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.logger.Warn("failed to rollback norm score transaction", "error", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE ranking_items SET norm_score = $3
		WHERE item_type = $1 AND item_id = $2
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare norm score update: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			s.logger.Warn("failed to close norm score statement", "error", err)
		}
	}()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, string(u.Type), u.ID, u.Norm); err != nil {
			return fmt.Errorf("failed to set norm score for %s/%s: %w", u.Type, u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit norm scores: %w", err)
	}
	return nil
}

// RankedPage reads a page of the ranked_feed materialized view.
func (s *PostgresStore) RankedPage(ctx context.Context, limit, offset int) ([]RankedEntry, error) {
	query := `
		SELECT item_type, item_id, norm_score
		FROM ranked_feed
		ORDER BY norm_score DESC, item_id ASC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranked page: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close ranked page rows", "error", err)
		}
	}()

	entries := []RankedEntry{}
	for rows.Next() {
		var e RankedEntry
		if err := rows.Scan(&e.Type, &e.ID, &e.NormScore); err != nil {
			return nil, fmt.Errorf("failed to scan ranked entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ranked page: %w", err)
	}
	return entries, nil
}

// RefreshView rebuilds the ranked_feed materialized view. CONCURRENTLY
// keeps the old projection readable while the new one builds, so feed
// reads never block on a refresh.
func (s *PostgresStore) RefreshView(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY ranked_feed`); err != nil {
		return fmt.Errorf("failed to refresh ranked_feed view: %w", err)
	}
	return nil
}

// GetConfig returns the raw config value stored under key, or nil when
// the key has never been written.
func (s *PostgresStore) GetConfig(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT config_value FROM ranking_config WHERE config_key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config %q: %w", key, err)
	}
	return value, nil
}

// SetConfig atomically replaces the config value stored under key.
// Writes are rare (admin action only) so a plain upsert suffices.
func (s *PostgresStore) SetConfig(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO ranking_config (config_key, config_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (config_key)
		DO UPDATE SET config_value = EXCLUDED.config_value, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set config %q: %w", key, err)
	}
	return nil
}
