package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
environment: test
safety:
  enabled_monitors: ["statistical"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Trace.DefaultVisibility != "private" {
		t.Fatalf("expected default visibility private, got %s", cfg.Trace.DefaultVisibility)
	}
	if cfg.Bundle.DefaultChunkSize != 65536 {
		t.Fatalf("expected default chunk size 65536, got %d", cfg.Bundle.DefaultChunkSize)
	}
	if cfg.Anchor.Label != 0x504f4954 {
		t.Fatalf("expected default anchor label, got %x", cfg.Anchor.Label)
	}
}

func TestLoad_SubstitutesEnvVars(t *testing.T) {
	os.Setenv("POI_TRACE_TEST_DSN", "postgres://test")
	defer os.Unsetenv("POI_TRACE_TEST_DSN")

	path := writeTempConfig(t, `
store:
  dsn: "${POI_TRACE_TEST_DSN}"
safety:
  enabled_monitors: ["statistical"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.DSN != "postgres://test" {
		t.Fatalf("expected env var substitution, got %q", cfg.Store.DSN)
	}
}

func TestLoad_EnvVarDefaultFallback(t *testing.T) {
	os.Unsetenv("POI_TRACE_UNSET_VAR")
	path := writeTempConfig(t, `
store:
  dsn: "${POI_TRACE_UNSET_VAR:-postgres://fallback}"
safety:
  enabled_monitors: ["statistical"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.DSN != "postgres://fallback" {
		t.Fatalf("expected fallback default, got %q", cfg.Store.DSN)
	}
}

func TestValidate_RejectsMissingDSNAndMonitors(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for empty config")
	}
}

func TestValidate_PassesWithRequiredFields(t *testing.T) {
	cfg := &Config{
		Store:  StoreConfig{DSN: "postgres://test"},
		Safety: SafetyConfig{EnabledMonitors: []string{"statistical"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
