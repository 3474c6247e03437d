// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis feed cache and distributed rate limiting. Optional; empty
	// disables both.
	RedisURL string `koanf:"redis_url"`

	// Worker endpoint shared secret. Empty leaves the worker endpoints
	// unprotected (logged loudly at startup).
	WorkerSecret string `koanf:"worker_secret"`

	// JWT authentication for /admin/*.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Scoring calibration file (JSON). Empty uses built-in defaults.
	CalibrationPath string `koanf:"calibration_path"`

	// Event logging feature flag.
	EventLoggingEnabled bool `koanf:"event_logging_enabled"`

	// Ranking tunables.
	NormalizeWindow      int `koanf:"normalize_window"`
	DeltaDebounceSeconds int `koanf:"delta_debounce_seconds"`
	FeedTopPageSize      int `koanf:"feed_top_page_size"`

	// Background schedules (minutes).
	FullRecomputeIntervalMinutes int `koanf:"full_recompute_interval_minutes"`
	ViewRefreshIntervalMinutes   int `koanf:"view_refresh_interval_minutes"`
	QualitySweepIntervalMinutes  int `koanf:"quality_sweep_interval_minutes"`
	FraudSweepIntervalMinutes    int `koanf:"fraud_sweep_interval_minutes"`
	DeltaPollIntervalSeconds     int `koanf:"delta_poll_interval_seconds"`

	// Snapshot export (S3-compatible storage). Optional; empty bucket
	// disables exports.
	SnapshotBucket          string `koanf:"snapshot_bucket"`
	SnapshotEndpoint        string `koanf:"snapshot_endpoint"`
	SnapshotAccessKeyID     string `koanf:"snapshot_access_key_id"`
	SnapshotSecretAccessKey string `koanf:"snapshot_secret_access_key"`

	// Tracing
	TracingEnabled bool   `koanf:"tracing_enabled"`
	OTLPEndpoint   string `koanf:"otlp_endpoint"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrInvalidWindow      = errors.New("NORMALIZE_WINDOW must be > 0")
	ErrInvalidDebounce    = errors.New("DELTA_DEBOUNCE_SECONDS must be > 0")
	ErrIncompleteSnapshot = errors.New("snapshot export requires endpoint, access key id, and secret access key")
)

// Default values for non-secret configuration.
const (
	DefaultPort                         = 8080
	DefaultEnv                          = "development"
	DefaultEventLoggingEnabled          = true
	DefaultNormalizeWindow              = 10000
	DefaultDeltaDebounceSeconds         = 5
	DefaultFeedTopPageSize              = 100
	DefaultFullRecomputeIntervalMinutes = 60
	DefaultViewRefreshIntervalMinutes   = 5
	DefaultQualitySweepIntervalMinutes  = 1440
	DefaultFraudSweepIntervalMinutes    = 60
	DefaultDeltaPollIntervalSeconds     = 5
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// YAML file first, so env vars win.
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefaultMulti([]string{"RANKD_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	intSetting := func(envKey, koanfKey string, defaultVal int) int {
		v, err := getEnvIntOrDefault(envKey, k.Int(koanfKey), defaultVal)
		if err != nil {
			loadErrs = append(loadErrs, err)
			return defaultVal
		}
		return v
	}

	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefaultMulti([]string{"RANKD_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:            getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		WorkerSecret:        getEnvOrKoanf("WORKER_SECRET", k, "worker_secret"),
		JWTSecret:           getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:   getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		CalibrationPath:     getEnvOrKoanf("CALIBRATION_PATH", k, "calibration_path"),
		EventLoggingEnabled: getEnvBoolOrDefault("EVENT_LOGGING_ENABLED", k, "event_logging_enabled", DefaultEventLoggingEnabled),

		NormalizeWindow:      intSetting("NORMALIZE_WINDOW", "normalize_window", DefaultNormalizeWindow),
		DeltaDebounceSeconds: intSetting("DELTA_DEBOUNCE_SECONDS", "delta_debounce_seconds", DefaultDeltaDebounceSeconds),
		FeedTopPageSize:      intSetting("FEED_TOP_PAGE_SIZE", "feed_top_page_size", DefaultFeedTopPageSize),

		FullRecomputeIntervalMinutes: intSetting("FULL_RECOMPUTE_INTERVAL_MINUTES", "full_recompute_interval_minutes", DefaultFullRecomputeIntervalMinutes),
		ViewRefreshIntervalMinutes:   intSetting("VIEW_REFRESH_INTERVAL_MINUTES", "view_refresh_interval_minutes", DefaultViewRefreshIntervalMinutes),
		QualitySweepIntervalMinutes:  intSetting("QUALITY_SWEEP_INTERVAL_MINUTES", "quality_sweep_interval_minutes", DefaultQualitySweepIntervalMinutes),
		FraudSweepIntervalMinutes:    intSetting("FRAUD_SWEEP_INTERVAL_MINUTES", "fraud_sweep_interval_minutes", DefaultFraudSweepIntervalMinutes),
		DeltaPollIntervalSeconds:     intSetting("DELTA_POLL_INTERVAL_SECONDS", "delta_poll_interval_seconds", DefaultDeltaPollIntervalSeconds),

		SnapshotBucket:          getEnvOrKoanf("SNAPSHOT_BUCKET", k, "snapshot_bucket"),
		SnapshotEndpoint:        getEnvOrKoanf("SNAPSHOT_ENDPOINT", k, "snapshot_endpoint"),
		SnapshotAccessKeyID:     getEnvOrKoanf("SNAPSHOT_ACCESS_KEY_ID", k, "snapshot_access_key_id"),
		SnapshotSecretAccessKey: getEnvOrKoanf("SNAPSHOT_SECRET_ACCESS_KEY", k, "snapshot_secret_access_key"),

		TracingEnabled: getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		OTLPEndpoint:   getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.NormalizeWindow <= 0 {
		errs = append(errs, ErrInvalidWindow)
	}
	if c.DeltaDebounceSeconds <= 0 {
		errs = append(errs, ErrInvalidDebounce)
	}
	if c.SnapshotBucket != "" {
		if c.SnapshotEndpoint == "" || c.SnapshotAccessKeyID == "" || c.SnapshotSecretAccessKey == "" {
			errs = append(errs, ErrIncompleteSnapshot)
		}
	}
	return errs
}

// DeltaDebounce returns the delta debounce as a duration.
func (c *Config) DeltaDebounce() time.Duration {
	return time.Duration(c.DeltaDebounceSeconds) * time.Second
}

// DeltaPollInterval returns the delta poller cadence as a duration.
func (c *Config) DeltaPollInterval() time.Duration {
	return time.Duration(c.DeltaPollIntervalSeconds) * time.Second
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer", envKey)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as bool if set,
// otherwise the koanf value, or default. Unparseable env values keep
// the prior value.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}
