package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// FeedCacheKey is the Redis key holding the CBOR-encoded top page of
// the published ranking.
const FeedCacheKey = "rankd:feed:top"

// DefaultTopPageSize is the number of leading entries cached and
// exported after each publish.
const DefaultTopPageSize = 100

// DefaultCacheTTL bounds how stale the cached top page can get if
// publishing stops; feed reads fall back to the view afterwards.
const DefaultCacheTTL = 15 * time.Minute

// Exporter uploads a published ranking snapshot to external storage for
// edge consumers. Implemented by the snapshot package.
type Exporter interface {
	Export(ctx context.Context, entries []RankedEntry) error
}

// Publisher refreshes the read-optimized ranked projection the
// discovery feed consumes. Cache and exporter are optional: a nil
// client or exporter disables that step without failing the publish.
type Publisher struct {
	store    Store
	cache    *redis.Client
	exporter Exporter
	topN     int
	cacheTTL time.Duration
	logger   *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithCache enables caching of the top page in Redis.
func WithCache(client *redis.Client) PublisherOption {
	return func(p *Publisher) { p.cache = client }
}

// WithExporter enables snapshot export after each publish.
func WithExporter(e Exporter) PublisherOption {
	return func(p *Publisher) { p.exporter = e }
}

// WithTopPageSize overrides the size of the cached/exported top page.
func WithTopPageSize(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.topN = n
		}
	}
}

// NewPublisher creates a Publisher over store.
func NewPublisher(store Store, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		store:    store,
		topN:     DefaultTopPageSize,
		cacheTTL: DefaultCacheTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Refresh rebuilds the ranked projection, then caches and exports the
// top page. Cache and export failures are logged but do not fail the
// refresh: the view itself is the source of truth and already
// published by the time they run.
func (p *Publisher) Refresh(ctx context.Context) error {
	start := time.Now()
	if err := p.store.RefreshView(ctx); err != nil {
		return fmt.Errorf("failed to refresh ranked view: %w", err)
	}

	p.logger.Info("ranked view refreshed",
		"duration_ms", time.Since(start).Milliseconds())

	if p.cache == nil && p.exporter == nil {
		return nil
	}

	top, err := p.store.RankedPage(ctx, p.topN, 0)
	if err != nil {
		p.logger.Warn("failed to read top page after refresh", "error", err)
		return nil
	}

	if p.cache != nil {
		if err := p.cacheTopPage(ctx, top); err != nil {
			p.logger.Warn("failed to cache top page", "error", err)
		}
	}

	if p.exporter != nil {
		if err := p.exporter.Export(ctx, top); err != nil {
			p.logger.Warn("failed to export ranking snapshot", "error", err)
		}
	}
	return nil
}

// cacheTopPage stores the CBOR-encoded top page in Redis with a TTL.
// CBOR keeps the payload compact for the hot feed path.
func (p *Publisher) cacheTopPage(ctx context.Context, top []RankedEntry) error {
	data, err := cbor.Marshal(top)
	if err != nil {
		return fmt.Errorf("failed to encode top page: %w", err)
	}
	if err := p.cache.Set(ctx, FeedCacheKey, data, p.cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to write feed cache: %w", err)
	}
	return nil
}

// CachedTopPage reads the cached top page from Redis. Returns nil with
// no error on a cache miss so callers fall through to the view.
func CachedTopPage(ctx context.Context, client *redis.Client) ([]RankedEntry, error) {
	data, err := client.Get(ctx, FeedCacheKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feed cache: %w", err)
	}
	var entries []RankedEntry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode feed cache: %w", err)
	}
	return entries, nil
}
