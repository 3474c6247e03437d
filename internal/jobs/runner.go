package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stackroom/rankd/internal/tracing"
)

// Recorder is the subset of Metrics the runner reports to. A nil
// Recorder disables reporting.
type Recorder interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// RunnerConfig configures a periodic job runner.
type RunnerConfig struct {
	// JobType labels metrics and log lines.
	JobType string
	// Interval is the duration between runs.
	Interval time.Duration
	// Timeout bounds each run; 0 means no per-run timeout.
	Timeout time.Duration
	// Logger for runner activity.
	Logger *slog.Logger
	// Metrics for centralized background job tracking.
	Metrics Recorder
}

// Runner periodically executes a worker function. Workers are stateless
// request/response functions, so a runner can be stopped and restarted,
// and several replicas may run the same job concurrently; coordination
// state lives in the store.
type Runner struct {
	config RunnerConfig
	fn     func(ctx context.Context) error

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRunner creates a periodic runner for fn.
func NewRunner(config RunnerConfig, fn func(ctx context.Context) error) *Runner {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Runner{config: config, fn: fn}
}

// Start begins the periodic runs. Returns immediately; the job runs in
// a background goroutine. Starting a running runner is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)
}

// Stop signals the runner to stop and waits for the loop to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// IsRunning returns whether the runner loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RunNow executes one run immediately without waiting for the ticker.
func (r *Runner) RunNow(ctx context.Context) {
	r.execute(ctx)
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.config.Logger.Info("job runner stopping due to context cancellation",
				"job_type", r.config.JobType)
			return
		case <-r.stopCh:
			r.config.Logger.Info("job runner stopping due to stop signal",
				"job_type", r.config.JobType)
			return
		case <-ticker.C:
			r.execute(ctx)
		}
	}
}

func (r *Runner) execute(parentCtx context.Context) {
	ctx := parentCtx
	cancel := func() {}
	if r.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, r.config.Timeout)
	}
	defer cancel()

	ctx, endSpan := tracing.StartJobSpan(ctx, r.config.JobType)

	start := time.Now()
	err := r.fn(ctx)
	duration := time.Since(start).Seconds()
	endSpan(err)

	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		r.config.Logger.Error("scheduled job failed",
			"job_type", r.config.JobType,
			"error", err,
			"duration_seconds", duration)
		if r.config.Metrics != nil {
			r.config.Metrics.IncJobErrors(r.config.JobType, "run_error")
		}
	}

	if r.config.Metrics != nil {
		r.config.Metrics.IncJobsTotal(r.config.JobType, status)
		r.config.Metrics.ObserveJobDuration(r.config.JobType, duration)
	}
}
