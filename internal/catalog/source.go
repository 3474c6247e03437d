// Package catalog provides read access to the content store that owns
// cards, collections, creators, and promotion windows. The ranking
// engine never writes through this package.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/stackroom/rankd/internal/ranking"
)

// ErrItemNotFound is returned when a requested content item does not
// exist or is not publicly visible.
var ErrItemNotFound = errors.New("content item not found")

// ErrUserNotFound is returned when a requested user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ItemSummary is the slice of a content item the scoring pipeline
// needs: its engagement counters and creator identity.
type ItemSummary struct {
	Type      ranking.ItemType
	ID        string
	CreatorID string

	Upvotes  int64
	Saves    int64
	Comments int64
	Visits   int64 // Always 0 for collections

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserSignals holds the per-user inputs to the creator quality score.
type UserSignals struct {
	UserID            string
	AccountCreatedAt  time.Time
	PublicCollections int
	UpvotesReceived   int
	Cards             int
	LiveComments      int // Non-deleted comments
	ResolvedReports   int // Reports against the user that were upheld
}

// Source exposes the content store reads the workers depend on.
type Source interface {
	// ListItems returns all active, publicly visible items of the given
	// kind. A non-nil changedSince restricts the list to items whose
	// content changed at or after that instant.
	ListItems(ctx context.Context, itemType ranking.ItemType, changedSince *time.Time) ([]ItemSummary, error)

	// GetItem returns one active item, or ErrItemNotFound.
	GetItem(ctx context.Context, itemType ranking.ItemType, itemID string) (*ItemSummary, error)

	// IsPromoted reports whether a promotion window covers the item at
	// the given instant.
	IsPromoted(ctx context.Context, itemType ranking.ItemType, itemID string, now time.Time) (bool, error)

	// ListUserIDs returns the ids of all users eligible for a creator
	// quality score.
	ListUserIDs(ctx context.Context) ([]string, error)

	// GetUserSignals returns the quality inputs for one user, or
	// ErrUserNotFound.
	GetUserSignals(ctx context.Context, userID string) (*UserSignals, error)
}
