package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/stackroom/rankd/internal/ranking"
)

// PostgresSource implements Source against the content store schema.
// All queries are read-only and restricted to active, public rows.
type PostgresSource struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSource creates a new PostgresSource.
func NewPostgresSource(db *sql.DB, logger *slog.Logger) *PostgresSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSource{db: db, logger: logger}
}

const cardColumns = `
	SELECT id, creator_id, upvotes, saves, comments, visits, created_at, updated_at
	FROM cards
	WHERE deleted_at IS NULL AND visibility = 'public'
`

const collectionColumns = `
	SELECT id, creator_id, upvotes, saves, comments, created_at, updated_at
	FROM collections
	WHERE deleted_at IS NULL AND visibility = 'public'
`

// ListItems returns all active public items of the given kind.
func (s *PostgresSource) ListItems(ctx context.Context, itemType ranking.ItemType, changedSince *time.Time) ([]ItemSummary, error) {
	if !itemType.Valid() {
		return nil, ranking.ErrInvalidItemType
	}

	query := cardColumns
	if itemType == ranking.ItemTypeCollection {
		query = collectionColumns
	}

	var (
		rows *sql.Rows
		err  error
	)
	if changedSince != nil {
		rows, err = s.db.QueryContext(ctx, query+` AND updated_at >= $1`, *changedSince)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss: %w", itemType, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close item rows", "error", err)
		}
	}()

	var items []ItemSummary
	for rows.Next() {
		item, err := scanItem(rows, itemType)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %ss: %w", itemType, err)
	}
	return items, nil
}

// GetItem returns one active public item, or ErrItemNotFound.
func (s *PostgresSource) GetItem(ctx context.Context, itemType ranking.ItemType, itemID string) (*ItemSummary, error) {
	if !itemType.Valid() {
		return nil, ranking.ErrInvalidItemType
	}

	query := cardColumns
	if itemType == ranking.ItemTypeCollection {
		query = collectionColumns
	}

	row := s.db.QueryRowContext(ctx, query+` AND id = $1`, itemID)
	item, err := scanItem(row, itemType)
	if err == sql.ErrNoRows {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner, itemType ranking.ItemType) (*ItemSummary, error) {
	item := ItemSummary{Type: itemType}
	var err error
	if itemType == ranking.ItemTypeCard {
		err = row.Scan(&item.ID, &item.CreatorID, &item.Upvotes, &item.Saves,
			&item.Comments, &item.Visits, &item.CreatedAt, &item.UpdatedAt)
	} else {
		err = row.Scan(&item.ID, &item.CreatorID, &item.Upvotes, &item.Saves,
			&item.Comments, &item.CreatedAt, &item.UpdatedAt)
	}
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", itemType, err)
	}
	return &item, nil
}

// IsPromoted reports whether an open promotion window covers the item.
func (s *PostgresSource) IsPromoted(ctx context.Context, itemType ranking.ItemType, itemID string, now time.Time) (bool, error) {
	var promoted bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM promotion_windows
			WHERE item_type = $1 AND item_id = $2 AND promoted_until > $3
		)
	`, string(itemType), itemID, now).Scan(&promoted)
	if err != nil {
		return false, fmt.Errorf("failed to check promotion for %s/%s: %w", itemType, itemID, err)
	}
	return promoted, nil
}

// ListUserIDs returns ids of all non-deleted users.
func (s *PostgresSource) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close user rows", "error", err)
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return ids, nil
}

// GetUserSignals aggregates the quality inputs for one user in a single
// query so the sweep does one round trip per user.
func (s *PostgresSource) GetUserSignals(ctx context.Context, userID string) (*UserSignals, error) {
	sig := UserSignals{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			u.created_at,
			(SELECT COUNT(*) FROM collections c WHERE c.creator_id = u.id AND c.deleted_at IS NULL AND c.visibility = 'public'),
			(SELECT COALESCE(SUM(k.upvotes), 0) FROM cards k WHERE k.creator_id = u.id AND k.deleted_at IS NULL),
			(SELECT COUNT(*) FROM cards k WHERE k.creator_id = u.id AND k.deleted_at IS NULL),
			(SELECT COUNT(*) FROM comments m WHERE m.author_id = u.id AND m.deleted_at IS NULL),
			(SELECT COUNT(*) FROM reports r WHERE r.reported_user_id = u.id AND r.status = 'resolved')
		FROM users u
		WHERE u.id = $1 AND u.deleted_at IS NULL
	`, userID).Scan(
		&sig.AccountCreatedAt,
		&sig.PublicCollections,
		&sig.UpvotesReceived,
		&sig.Cards,
		&sig.LiveComments,
		&sig.ResolvedReports,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load signals for user %s: %w", userID, err)
	}
	return &sig, nil
}
