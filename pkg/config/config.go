// Package config loads the nested YAML configuration for a poi-trace
// deployment, with ${VAR}/${VAR:-default} environment substitution exactly
// as the teacher's anchor_config.go does, scoped down from the teacher's
// chain/consensus/contract sections to the Trace/Bundle/Safety/Anchor/
// Store/Logging sections this module actually has.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Environment string        `yaml:"environment"`
	Trace       TraceConfig   `yaml:"trace"`
	Bundle      BundleConfig  `yaml:"bundle"`
	Safety      SafetyConfig  `yaml:"safety"`
	Anchor      AnchorConfig  `yaml:"anchor"`
	Store       StoreConfig   `yaml:"store"`
	Logging     LoggingConfig `yaml:"logging"`
}

// TraceConfig governs builder-side limits and default visibilities.
type TraceConfig struct {
	MaxEventsPerRun     int    `yaml:"max_events_per_run"`
	DefaultVisibility   string `yaml:"default_visibility"`
	CommandVisibility   string `yaml:"command_visibility"`
	ObservationVisibility string `yaml:"observation_visibility"`
}

// BundleConfig governs manifest chunking of a finalized bundle.
type BundleConfig struct {
	DefaultChunkSize int `yaml:"default_chunk_size"`
}

// SafetyConfig selects which monitors run and at what thresholds.
type SafetyConfig struct {
	EnabledMonitors  []string               `yaml:"enabled_monitors"`
	Thresholds       map[string]float64     `yaml:"thresholds"`
	ThresholdPolicyID string                `yaml:"threshold_policy_id"`
	TimingAttested   bool                   `yaml:"timing_attested"`
}

// AnchorConfig governs the CBOR metadata label and storage URI template
// for entries this core produces; it never configures chain submission.
type AnchorConfig struct {
	Label             int    `yaml:"label"`
	StorageURITemplate string `yaml:"storage_uri_template"`
	IncludeMerkleRoot bool   `yaml:"include_merkle_root"`
}

// StoreConfig governs the Postgres-backed bundle/manifest archive.
type StoreConfig struct {
	DSN               string   `yaml:"dsn"`
	MigrationsPath    string   `yaml:"migrations_path"`
	MaxOpenConns      int      `yaml:"max_open_conns"`
	MaxIdleConns      int      `yaml:"max_idle_conns"`
	ConnMaxLifetime   Duration `yaml:"conn_max_lifetime"`
}

// LoggingConfig governs the pkg/logging wrapper.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Duration marshals/unmarshals as a Go duration string ("30s", "5m") in
// YAML rather than an integer nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads path, substitutes environment variables, parses the YAML, and
// applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trace.DefaultVisibility == "" {
		c.Trace.DefaultVisibility = "private"
	}
	if c.Trace.CommandVisibility == "" {
		c.Trace.CommandVisibility = "public"
	}
	if c.Trace.ObservationVisibility == "" {
		c.Trace.ObservationVisibility = "public"
	}
	if c.Bundle.DefaultChunkSize == 0 {
		c.Bundle.DefaultChunkSize = 65536
	}
	if c.Safety.ThresholdPolicyID == "" {
		c.Safety.ThresholdPolicyID = "default"
	}
	if c.Anchor.Label == 0 {
		c.Anchor.Label = 0x504f4954 // "POIT"
	}
	if c.Store.MaxOpenConns == 0 {
		c.Store.MaxOpenConns = 25
	}
	if c.Store.MaxIdleConns == 0 {
		c.Store.MaxIdleConns = 5
	}
	if c.Store.ConnMaxLifetime == 0 {
		c.Store.ConnMaxLifetime = Duration(time.Hour)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate reports missing required fields for production use.
func (c *Config) Validate() error {
	var errs []string
	if c.Store.DSN == "" {
		errs = append(errs, "store.dsn is required")
	}
	if len(c.Safety.EnabledMonitors) == 0 {
		errs = append(errs, "safety.enabled_monitors must list at least one monitor")
	}
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "; " + e
	}
	return fmt.Errorf("invalid configuration: %s", msg)
}
