package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/stackroom/rankd/internal/ranking"
)

// Feed paging bounds.
const (
	DefaultFeedLimit = 25
	MaxFeedLimit     = 100
)

// RankingHandlers serves the read side of the ranked feed.
type RankingHandlers struct {
	store  ranking.Store
	cache  *redis.Client
	logger *slog.Logger
}

// NewRankingHandlers creates the feed read handlers. cache may be nil;
// reads then always hit the store.
func NewRankingHandlers(store ranking.Store, cache *redis.Client, logger *slog.Logger) *RankingHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RankingHandlers{store: store, cache: cache, logger: logger}
}

// Register wires the feed endpoints onto mux.
func (h *RankingHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/rankings", h.GetRankings)
}

// RankingsResponse is the paged ranked feed.
type RankingsResponse struct {
	Entries []ranking.RankedEntry `json:"entries"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// GetRankings handles GET /rankings?limit=&offset=.
// The first page is served from the Redis top-page cache when it is
// warm; everything else reads the published view.
func (h *RankingHandlers) GetRankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		fail(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	limit, err := queryInt(r, "limit", DefaultFeedLimit)
	if err != nil || limit <= 0 || limit > MaxFeedLimit {
		fail(w, r, http.StatusBadRequest, ErrCodeValidation, "limit must be between 1 and 100")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		fail(w, r, http.StatusBadRequest, ErrCodeValidation, "offset must be >= 0")
		return
	}

	if entries, ok := h.fromCache(r, limit, offset); ok {
		writeJSON(w, http.StatusOK, RankingsResponse{Entries: entries, Limit: limit, Offset: offset})
		return
	}

	entries, err := h.store.RankedPage(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to read ranked page", "error", err)
		fail(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to read rankings")
		return
	}
	if entries == nil {
		entries = []ranking.RankedEntry{}
	}
	writeJSON(w, http.StatusOK, RankingsResponse{Entries: entries, Limit: limit, Offset: offset})
}

// fromCache serves a request from the cached top page when the whole
// requested slice fits inside it. Cache problems fall through to the
// store.
func (h *RankingHandlers) fromCache(r *http.Request, limit, offset int) ([]ranking.RankedEntry, bool) {
	if h.cache == nil {
		return nil, false
	}
	page, err := ranking.CachedTopPage(r.Context(), h.cache)
	if err != nil {
		h.logger.Warn("feed cache read failed", "error", err)
		return nil, false
	}
	if page == nil || offset+limit > len(page) {
		return nil, false
	}
	return page[offset : offset+limit], true
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
