// Package ranking provides the ranked item store, statistical
// normalization, and the published feed projection.
package ranking

import (
	"errors"
	"time"
)

// ItemType identifies the kind of ranked content item.
type ItemType string

// The two ranked item kinds.
const (
	ItemTypeCard       ItemType = "card"
	ItemTypeCollection ItemType = "collection"
)

// Common errors for ranking operations.
var (
	ErrInvalidItemType = errors.New("invalid item type: must be card or collection")
	ErrItemNotFound    = errors.New("ranking item not found")
	ErrEmptyItemID     = errors.New("item id must not be empty")
)

// Valid reports whether t is one of the known item kinds.
func (t ItemType) Valid() bool {
	return t == ItemTypeCard || t == ItemTypeCollection
}

// ParseItemType validates and converts a wire string into an ItemType.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	if !t.Valid() {
		return "", ErrInvalidItemType
	}
	return t, nil
}

// Item is one row of the ranking store, keyed by (Type, ID).
// RawScore is the unnormalized scoring output; NormScore is the z-score
// of RawScore over the recent window and is what the feed orders by.
type Item struct {
	Type      ItemType  `json:"item_type"`
	ID        string    `json:"item_id"`
	RawScore  float64   `json:"raw_score"`
	NormScore float64   `json:"norm_score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormUpdate carries one normalized score assignment.
type NormUpdate struct {
	Type ItemType
	ID   string
	Norm float64
}

// RankedEntry is one row of the published feed projection.
type RankedEntry struct {
	Type      ItemType `json:"item_type"`
	ID        string   `json:"item_id"`
	NormScore float64  `json:"norm_score"`
}
