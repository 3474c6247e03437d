// Package events provides the append-only engagement event log that
// feeds the delta recompute path and the fraud detector.
package events

import (
	"errors"
	"time"

	"github.com/stackroom/rankd/internal/ranking"
)

// Engagement event types.
const (
	EventUpvote  = "upvote"
	EventUnvote  = "unvote"
	EventSave    = "save"
	EventUnsave  = "unsave"
	EventComment = "comment"
	EventVisit   = "visit"
	EventClone   = "clone"
	EventCreate  = "create"
	EventPromote = "promote"
)

// validEventTypes is the closed set of accepted event types.
var validEventTypes = map[string]bool{
	EventUpvote:  true,
	EventUnvote:  true,
	EventSave:    true,
	EventUnsave:  true,
	EventComment: true,
	EventVisit:   true,
	EventClone:   true,
	EventCreate:  true,
	EventPromote: true,
}

// Validation errors.
var (
	ErrInvalidEventType = errors.New("invalid event type")
	ErrMissingItemID    = errors.New("event item id must not be empty")
)

// Event is one engagement action against a ranked item.
type Event struct {
	ItemType  ranking.ItemType `json:"item_type"`
	ItemID    string           `json:"item_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate checks the event is well formed before any work happens.
func (e Event) Validate() error {
	if !e.ItemType.Valid() {
		return ranking.ErrInvalidItemType
	}
	if e.ItemID == "" {
		return ErrMissingItemID
	}
	if !validEventTypes[e.EventType] {
		return ErrInvalidEventType
	}
	return nil
}

// UserActivity aggregates one user's event counts over a window,
// consumed by the fraud detector.
type UserActivity struct {
	UserID    string `json:"user_id"`
	Votes     int    `json:"votes"`
	Clones    int    `json:"clones"`
	Creations int    `json:"creations"`
}
