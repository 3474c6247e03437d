// Package stats provides utilities for tracking batch worker statistics.
package stats

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// MaxRecordedErrors caps how many error messages a batch retains so a
// systemically failing sweep cannot grow without bound; the failed
// counter still reflects the true total.
const MaxRecordedErrors = 25

// BatchStats tracks cumulative statistics for one batch worker run.
// All operations are thread-safe, so a bounded-concurrency batch loop
// can share one instance.
type BatchStats struct {
	processed int64
	succeeded int64
	failed    int64

	mu     sync.Mutex
	errors []string
}

// NewBatchStats creates a new BatchStats instance.
func NewBatchStats() *BatchStats {
	return &BatchStats{}
}

// RecordSuccess counts one processed item that succeeded.
func (s *BatchStats) RecordSuccess() {
	atomic.AddInt64(&s.processed, 1)
	atomic.AddInt64(&s.succeeded, 1)
}

// RecordFailure counts one processed item that failed and retains its
// error message up to MaxRecordedErrors.
func (s *BatchStats) RecordFailure(itemID string, err error) {
	atomic.AddInt64(&s.processed, 1)
	atomic.AddInt64(&s.failed, 1)

	s.mu.Lock()
	if len(s.errors) < MaxRecordedErrors {
		s.errors = append(s.errors, fmt.Sprintf("%s: %v", itemID, err))
	}
	s.mu.Unlock()
}

// Processed returns the total number of items processed.
func (s *BatchStats) Processed() int64 {
	return atomic.LoadInt64(&s.processed)
}

// Succeeded returns the number of items that succeeded.
func (s *BatchStats) Succeeded() int64 {
	return atomic.LoadInt64(&s.succeeded)
}

// Failed returns the number of items that failed.
func (s *BatchStats) Failed() int64 {
	return atomic.LoadInt64(&s.failed)
}

// Errors returns a copy of the retained error messages.
func (s *BatchStats) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.errors))
	copy(out, s.errors)
	return out
}

// String returns a human-readable summary of the statistics.
func (s *BatchStats) String() string {
	return fmt.Sprintf("processed=%d succeeded=%d failed=%d", s.Processed(), s.Succeeded(), s.Failed())
}

// LogSummary logs a summary of batch statistics at INFO level.
func (s *BatchStats) LogSummary(logger *slog.Logger, job string) {
	logger.Info("batch statistics",
		"job", job,
		"processed", s.Processed(),
		"succeeded", s.Succeeded(),
		"failed", s.Failed(),
	)
}
