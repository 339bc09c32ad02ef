// Package config loads service configuration from file, environment and
// defaults.
package config

import (
	"fmt"
	"time"
)

// Defaults applied when neither file nor environment sets a value.
const (
	// DefaultMaxReportAge bounds how old an uploaded coverage file may be
	// before it is rejected.
	DefaultMaxReportAge = 12 * time.Hour

	// DefaultArchiveRoot is where serialized reports are persisted.
	DefaultArchiveRoot = "file://./covmerge-archive"

	// DefaultMetricsAddr serves the Prometheus scrape endpoint.
	DefaultMetricsAddr = ":9090"
)

// Config is the full service configuration.
type Config struct {
	// MaxReportAge rejects uploaded files older than this. Zero disables
	// the check; the per-commit user configuration may tighten it further.
	MaxReportAge time.Duration `mapstructure:"max_report_age"`

	Archive ArchiveConfig `mapstructure:"archive"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// ArchiveConfig configures report persistence.
type ArchiveConfig struct {
	// Root is an afs URL: file://, s3://, gs://, mem://.
	Root string `mapstructure:"root"`

	// Compress lz4-frames chunk documents at rest.
	Compress bool `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Validate checks invariants that defaults alone cannot guarantee.
func (c *Config) Validate() error {
	if c.MaxReportAge < 0 {
		return fmt.Errorf("max_report_age must not be negative, got %s", c.MaxReportAge)
	}

	if c.Archive.Root == "" {
		return fmt.Errorf("archive.root must not be empty")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level)
	}

	return nil
}
