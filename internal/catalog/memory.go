package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stackroom/rankd/internal/ranking"
)

type sourceKey struct {
	t  ranking.ItemType
	id string
}

// InMemorySource is an in-memory implementation of Source for tests.
// Thread-safe via RWMutex.
type InMemorySource struct {
	mu         sync.RWMutex
	items      map[sourceKey]ItemSummary
	promotions map[sourceKey]time.Time // key -> promoted_until
	users      map[string]UserSignals

	// itemErrs injects per-item failures for failure isolation tests.
	itemErrs map[sourceKey]error
	userErrs map[string]error
}

// NewInMemorySource creates an empty in-memory source.
func NewInMemorySource() *InMemorySource {
	return &InMemorySource{
		items:      make(map[sourceKey]ItemSummary),
		promotions: make(map[sourceKey]time.Time),
		users:      make(map[string]UserSignals),
		itemErrs:   make(map[sourceKey]error),
		userErrs:   make(map[string]error),
	}
}

// AddItem adds or replaces a content item.
func (s *InMemorySource) AddItem(item ItemSummary) {
	s.mu.Lock()
	s.items[sourceKey{item.Type, item.ID}] = item
	s.mu.Unlock()
}

// RemoveItem deletes a content item.
func (s *InMemorySource) RemoveItem(itemType ranking.ItemType, itemID string) {
	s.mu.Lock()
	delete(s.items, sourceKey{itemType, itemID})
	s.mu.Unlock()
}

// Promote opens a promotion window on an item.
func (s *InMemorySource) Promote(itemType ranking.ItemType, itemID string, until time.Time) {
	s.mu.Lock()
	s.promotions[sourceKey{itemType, itemID}] = until
	s.mu.Unlock()
}

// AddUser adds or replaces a user's quality signals.
func (s *InMemorySource) AddUser(sig UserSignals) {
	s.mu.Lock()
	s.users[sig.UserID] = sig
	s.mu.Unlock()
}

// FailItem makes reads of one item return err.
func (s *InMemorySource) FailItem(itemType ranking.ItemType, itemID string, err error) {
	s.mu.Lock()
	s.itemErrs[sourceKey{itemType, itemID}] = err
	s.mu.Unlock()
}

// FailUser makes signal reads for one user return err.
func (s *InMemorySource) FailUser(userID string, err error) {
	s.mu.Lock()
	s.userErrs[userID] = err
	s.mu.Unlock()
}

// ListItems returns all items of the given kind, optionally filtered to
// those changed at or after changedSince. Ordered by id for
// deterministic batches in tests.
func (s *InMemorySource) ListItems(_ context.Context, itemType ranking.ItemType, changedSince *time.Time) ([]ItemSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ItemSummary
	for key, item := range s.items {
		if key.t != itemType {
			continue
		}
		if changedSince != nil && item.UpdatedAt.Before(*changedSince) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetItem returns one item, or ErrItemNotFound.
func (s *InMemorySource) GetItem(_ context.Context, itemType ranking.ItemType, itemID string) (*ItemSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := sourceKey{itemType, itemID}
	if err, ok := s.itemErrs[key]; ok {
		return nil, err
	}
	item, ok := s.items[key]
	if !ok {
		return nil, ErrItemNotFound
	}
	return &item, nil
}

// IsPromoted reports whether a promotion window covers the item now.
func (s *InMemorySource) IsPromoted(_ context.Context, itemType ranking.ItemType, itemID string, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	until, ok := s.promotions[sourceKey{itemType, itemID}]
	return ok && now.Before(until), nil
}

// ListUserIDs returns all user ids, ordered for deterministic sweeps.
func (s *InMemorySource) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetUserSignals returns quality inputs for one user.
func (s *InMemorySource) GetUserSignals(_ context.Context, userID string) (*UserSignals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.userErrs[userID]; ok {
		return nil, err
	}
	sig, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &sig, nil
}
