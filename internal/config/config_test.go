package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rankd_test")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.Env != DefaultEnv {
		t.Errorf("Env = %q, want %q", cfg.Env, DefaultEnv)
	}
	if !cfg.EventLoggingEnabled {
		t.Error("EventLoggingEnabled should default to true")
	}
	if cfg.NormalizeWindow != DefaultNormalizeWindow {
		t.Errorf("NormalizeWindow = %d, want %d", cfg.NormalizeWindow, DefaultNormalizeWindow)
	}
	if cfg.DeltaDebounce().Seconds() != float64(DefaultDeltaDebounceSeconds) {
		t.Errorf("DeltaDebounce = %v, want %ds", cfg.DeltaDebounce(), DefaultDeltaDebounceSeconds)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	_, errs := Load("")
	if !containsErr(errs, ErrMissingDatabaseURL) {
		t.Errorf("errors %v missing ErrMissingDatabaseURL", errs)
	}
	if !containsErr(errs, ErrMissingJWTSecret) {
		t.Errorf("errors %v missing ErrMissingJWTSecret", errs)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte("port: 9000\nenv: production\nnormalize_window: 500\n")
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/rankd_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "7777")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}
	if cfg.Port != 7777 {
		t.Errorf("Port = %d, want env var to win over file", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("Env = %q, want file value production", cfg.Env)
	}
	if cfg.NormalizeWindow != 500 {
		t.Errorf("NormalizeWindow = %d, want file value 500", cfg.NormalizeWindow)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rankd_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "not-a-port")

	_, errs := Load("")
	if !containsErr(errs, ErrInvalidPort) {
		t.Errorf("errors %v missing ErrInvalidPort", errs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, errs := Load("/nonexistent/config.yaml")
	if len(errs) == 0 {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidateIncompleteSnapshot(t *testing.T) {
	cfg := &Config{
		DatabaseURL:          "postgres://localhost/rankd",
		JWTSecret:            "s",
		NormalizeWindow:      100,
		DeltaDebounceSeconds: 5,
		SnapshotBucket:       "rankd-snapshots",
	}
	errs := cfg.Validate()
	if !containsErr(errs, ErrIncompleteSnapshot) {
		t.Errorf("errors %v missing ErrIncompleteSnapshot", errs)
	}
}

func TestEventLoggingFlagFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rankd_test")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("EVENT_LOGGING_ENABLED", "false")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}
	if cfg.EventLoggingEnabled {
		t.Error("EventLoggingEnabled = true, want env var to disable it")
	}
}

func containsErr(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
