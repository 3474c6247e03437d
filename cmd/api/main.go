// Package main is the entry point for the ranking API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stackroom/rankd/internal/api"
	"github.com/stackroom/rankd/internal/auth"
	"github.com/stackroom/rankd/internal/catalog"
	"github.com/stackroom/rankd/internal/config"
	"github.com/stackroom/rankd/internal/db"
	"github.com/stackroom/rankd/internal/events"
	"github.com/stackroom/rankd/internal/fraud"
	"github.com/stackroom/rankd/internal/health"
	"github.com/stackroom/rankd/internal/jobs"
	"github.com/stackroom/rankd/internal/middleware"
	"github.com/stackroom/rankd/internal/quality"
	"github.com/stackroom/rankd/internal/ranking"
	"github.com/stackroom/rankd/internal/recompute"
	"github.com/stackroom/rankd/internal/scoring"
	"github.com/stackroom/rankd/internal/snapshot"
	"github.com/stackroom/rankd/internal/tracing"
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if *help {
		fmt.Println("Rankd API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	// Tracing (optional)
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "rankd-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	// Database
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	sqlDB, err := db.Open(dbCtx, cfg.DatabaseURL)
	dbCancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	// Redis (optional): feed cache and distributed rate limiting
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}()
	}

	// Scoring calibration. A broken calibration file degrades to
	// defaults rather than blocking startup.
	baseWeights, err := scoring.LoadCalibration(cfg.CalibrationPath)
	if err != nil {
		logger.Warn("calibration load degraded to defaults", "error", err)
	}

	// Stores
	rankingStore := ranking.NewPostgresStore(sqlDB, logger)
	eventStore := events.NewPostgresStore(sqlDB, logger)
	qualityStore := quality.NewPostgresScoreStore(sqlDB)
	source := catalog.NewPostgresSource(sqlDB, logger)
	queue := recompute.NewPostgresQueue(sqlDB, logger)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := jobs.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// Publisher with optional cache and snapshot export
	publisherOpts := []ranking.PublisherOption{ranking.WithTopPageSize(cfg.FeedTopPageSize)}
	if redisClient != nil {
		publisherOpts = append(publisherOpts, ranking.WithCache(redisClient))
	}
	if cfg.SnapshotBucket != "" {
		exporter, err := snapshot.NewExporter(snapshot.ExporterConfig{
			Bucket:          cfg.SnapshotBucket,
			AccessKeyID:     cfg.SnapshotAccessKeyID,
			SecretAccessKey: cfg.SnapshotSecretAccessKey,
			Endpoint:        cfg.SnapshotEndpoint,
		}, logger)
		if err != nil {
			logger.Error("failed to initialize snapshot exporter", "error", err)
			os.Exit(1)
		}
		publisherOpts = append(publisherOpts, ranking.WithExporter(exporter))
	}
	publisher := ranking.NewPublisher(rankingStore, logger, publisherOpts...)
	normalizer := ranking.NewNormalizer(rankingStore, cfg.NormalizeWindow, logger)

	// Workers
	fullWorker := recompute.NewFullWorker(source, rankingStore, rankingStore, qualityStore, normalizer, publisher, baseWeights, logger, metrics)
	deltaWorker := recompute.NewDeltaWorker(queue, source, rankingStore, rankingStore, qualityStore, baseWeights, logger, metrics)
	qualitySweeper := quality.NewSweeper(source, qualityStore, logger, metrics)
	fraudDetector := fraud.NewDetector(eventStore, fraud.DefaultWindow, logger, metrics)

	eventLogger := events.NewLogger(eventStore, deltaWorker, cfg.EventLoggingEnabled, cfg.DeltaDebounce(), logger)

	// Auth
	var jwtService *auth.JWTService
	if cfg.JWTPreviousSecret != "" {
		jwtService = auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
	} else {
		jwtService = auth.NewJWTService(cfg.JWTSecret)
	}

	// Rate limiting: Redis-backed when available so limits hold across
	// replicas, in-memory otherwise.
	var rateLimitStore middleware.RateLimitStore
	if redisClient != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				memStore.Cleanup()
			}
		}()
		rateLimitStore = memStore
	}

	// Routes
	mux := http.NewServeMux()

	api.NewHealthHandlers(
		health.NewDBChecker(sqlDB),
		redisCheckerOrNil(redisClient),
	).Register(mux)

	// Event ingest is called by the content service, so it shares the
	// worker secret; the rate limit is a backstop against runaway clients.
	eventMux := http.NewServeMux()
	api.NewEventHandlers(eventLogger, logger).Register(eventMux)
	eventChain := middleware.WorkerAuth(cfg.WorkerSecret, logger)(
		middleware.RateLimiter(rateLimitStore, middleware.DefaultEventLimit(), middleware.IPKeyFunc())(eventMux))
	mux.Handle("/events", eventChain)

	rankingMux := http.NewServeMux()
	api.NewRankingHandlers(rankingStore, redisClient, logger).Register(rankingMux)
	mux.Handle("/rankings", middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())(rankingMux))

	workerMux := http.NewServeMux()
	api.NewWorkerHandlers(fullWorker, deltaWorker, qualitySweeper, fraudDetector, publisher, logger).Register(workerMux)
	mux.Handle("/workers/", middleware.WorkerAuth(cfg.WorkerSecret, logger)(workerMux))

	adminMux := http.NewServeMux()
	api.NewAdminHandlers(rankingStore, baseWeights, logger).Register(adminMux)
	mux.Handle("/admin/", middleware.AdminAuth(jwtService)(adminMux))

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"rankd-api","version":"0.0.1"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Apply middleware: RequestID -> Logging
	var handler http.Handler = middleware.RequestID(middleware.Logging(logger)(mux))
	if tracerProvider.IsEnabled() {
		handler = otelhttp.NewHandler(handler, "rankd-api")
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background schedules
	runnerCtx, stopRunners := context.WithCancel(context.Background())
	runners := []*jobs.Runner{
		jobs.NewRunner(jobs.RunnerConfig{
			JobType:  jobs.JobTypeFullRecompute,
			Interval: time.Duration(cfg.FullRecomputeIntervalMinutes) * time.Minute,
			Logger:   logger,
			Metrics:  metrics,
		}, func(ctx context.Context) error {
			_, err := fullWorker.Run(ctx, recompute.FullParams{})
			return err
		}),
		jobs.NewRunner(jobs.RunnerConfig{
			JobType:  jobs.JobTypeDeltaRecompute,
			Interval: cfg.DeltaPollInterval(),
			Logger:   logger,
			Metrics:  metrics,
		}, func(ctx context.Context) error {
			_, err := deltaWorker.Drain(ctx)
			return err
		}),
		jobs.NewRunner(jobs.RunnerConfig{
			JobType:  jobs.JobTypeViewPublish,
			Interval: time.Duration(cfg.ViewRefreshIntervalMinutes) * time.Minute,
			Logger:   logger,
			Metrics:  metrics,
		}, publisher.Refresh),
		jobs.NewRunner(jobs.RunnerConfig{
			JobType:  jobs.JobTypeQualitySweep,
			Interval: time.Duration(cfg.QualitySweepIntervalMinutes) * time.Minute,
			Logger:   logger,
			Metrics:  metrics,
		}, func(ctx context.Context) error {
			_, err := qualitySweeper.RunSweep(ctx)
			return err
		}),
		jobs.NewRunner(jobs.RunnerConfig{
			JobType:  jobs.JobTypeFraudSweep,
			Interval: time.Duration(cfg.FraudSweepIntervalMinutes) * time.Minute,
			Logger:   logger,
			Metrics:  metrics,
		}, func(ctx context.Context) error {
			_, err := fraudDetector.Sweep(ctx)
			return err
		}),
	}
	for _, r := range runners {
		r.Start(runnerCtx)
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	stopRunners()
	for _, r := range runners {
		r.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// redisCheckerOrNil returns a typed nil-free HealthChecker for Redis.
func redisCheckerOrNil(client *redis.Client) api.HealthChecker {
	if client == nil {
		return nil
	}
	return health.NewRedisChecker(client)
}
