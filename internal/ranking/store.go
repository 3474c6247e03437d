package ranking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists ranked item scores and serves the windows the
// normalizer and the published feed read from.
type Store interface {
	// UpsertScore writes the raw score for (itemType, itemID) with
	// last-writer-wins semantics. Safe to call concurrently; recompute
	// is idempotent given identical inputs.
	UpsertScore(ctx context.Context, itemType ItemType, itemID string, rawScore float64) error

	// Get retrieves one ranked item. Returns ErrItemNotFound when the
	// item has never been scored.
	Get(ctx context.Context, itemType ItemType, itemID string) (*Item, error)

	// Delete removes a ranked item, cascading from source item removal.
	Delete(ctx context.Context, itemType ItemType, itemID string) error

	// RecentWindow returns up to limit items ordered by updated_at
	// descending. This is the population the normalizer operates on.
	RecentWindow(ctx context.Context, limit int) ([]Item, error)

	// SetNormScores persists a batch of normalized score assignments.
	SetNormScores(ctx context.Context, updates []NormUpdate) error

	// RankedPage reads a page of the published projection ordered by
	// norm_score descending.
	RankedPage(ctx context.Context, limit, offset int) ([]RankedEntry, error)

	// RefreshView rebuilds the read-optimized ranked projection.
	RefreshView(ctx context.Context) error
}

// ConfigStore persists admin-tunable ranking configuration values.
type ConfigStore interface {
	// GetConfig returns the raw value stored under key, or nil when the
	// key has never been written.
	GetConfig(ctx context.Context, key string) ([]byte, error)

	// SetConfig atomically replaces the value stored under key.
	SetConfig(ctx context.Context, key string, value []byte) error
}

// WeightsConfigKey is the ranking_config key holding the admin weight
// override document.
const WeightsConfigKey = "weights"

type itemKey struct {
	t  ItemType
	id string
}

// InMemoryStore is an in-memory implementation of Store and ConfigStore
// for tests and local development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu        sync.RWMutex
	items     map[itemKey]Item
	published []RankedEntry
	config    map[string][]byte
	now       func() time.Time
}

// NewInMemoryStore creates a new in-memory ranking store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items:  make(map[itemKey]Item),
		config: make(map[string][]byte),
		now:    time.Now,
	}
}

// SetClock overrides the store clock, for tests that assert on
// updated_at ordering.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// UpsertScore writes the raw score for one item.
func (s *InMemoryStore) UpsertScore(_ context.Context, itemType ItemType, itemID string, rawScore float64) error {
	if !itemType.Valid() {
		return ErrInvalidItemType
	}
	if itemID == "" {
		return ErrEmptyItemID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := itemKey{itemType, itemID}
	item := s.items[key]
	item.Type = itemType
	item.ID = itemID
	item.RawScore = rawScore
	item.UpdatedAt = s.now()
	s.items[key] = item
	return nil
}

// Get retrieves one ranked item.
func (s *InMemoryStore) Get(_ context.Context, itemType ItemType, itemID string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemKey{itemType, itemID}]
	if !ok {
		return nil, ErrItemNotFound
	}
	// Return a copy to avoid external modification
	return &item, nil
}

// Delete removes a ranked item.
func (s *InMemoryStore) Delete(_ context.Context, itemType ItemType, itemID string) error {
	s.mu.Lock()
	delete(s.items, itemKey{itemType, itemID})
	s.mu.Unlock()
	return nil
}

// RecentWindow returns up to limit items by updated_at descending.
func (s *InMemoryStore) RecentWindow(_ context.Context, limit int) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		window = append(window, item)
	}
	sort.Slice(window, func(i, j int) bool {
		if !window[i].UpdatedAt.Equal(window[j].UpdatedAt) {
			return window[i].UpdatedAt.After(window[j].UpdatedAt)
		}
		return window[i].ID < window[j].ID
	})
	if limit > 0 && len(window) > limit {
		window = window[:limit]
	}
	return window, nil
}

// SetNormScores persists a batch of normalized score assignments.
// Unknown items are skipped: the item may have been deleted between the
// window read and this write, which the next pass repairs.
func (s *InMemoryStore) SetNormScores(_ context.Context, updates []NormUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		key := itemKey{u.Type, u.ID}
		item, ok := s.items[key]
		if !ok {
			continue
		}
		item.NormScore = u.Norm
		s.items[key] = item
	}
	return nil
}

// RankedPage reads a page of the last published projection. Pages are
// served from the snapshot taken at RefreshView time, not live rows,
// mirroring materialized view semantics.
func (s *InMemoryStore) RankedPage(_ context.Context, limit, offset int) ([]RankedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset >= len(s.published) {
		return []RankedEntry{}, nil
	}
	end := len(s.published)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page := make([]RankedEntry, end-offset)
	copy(page, s.published[offset:end])
	return page, nil
}

// RefreshView rebuilds the published projection from current items.
func (s *InMemoryStore) RefreshView(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	published := make([]RankedEntry, 0, len(s.items))
	for _, item := range s.items {
		published = append(published, RankedEntry{Type: item.Type, ID: item.ID, NormScore: item.NormScore})
	}
	sort.Slice(published, func(i, j int) bool {
		if published[i].NormScore != published[j].NormScore {
			return published[i].NormScore > published[j].NormScore
		}
		return published[i].ID < published[j].ID
	})
	s.published = published
	return nil
}

// GetConfig returns the raw config value stored under key.
func (s *InMemoryStore) GetConfig(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.config[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// SetConfig replaces the config value stored under key.
func (s *InMemoryStore) SetConfig(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.config[key] = stored
	return nil
}

// Len returns the number of ranked items (for tests).
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
