// Package config holds the exceptrace configuration, loaded from file,
// environment, and defaults.
package config

import (
	"errors"
	"time"
)

// Defaults applied before any file or environment override.
const (
	// DefaultOutputDir is where cache, shards, and reports land.
	DefaultOutputDir = "exceptrace-out"

	// DefaultJobs is the fragment-ingest and extraction parallelism.
	DefaultJobs = 4

	// DefaultTimeout bounds one extractor invocation per TU.
	DefaultTimeout = 5 * time.Minute

	// DefaultIPMTool and DefaultICGTool are the extractor executables,
	// resolved through PATH when not absolute.
	DefaultIPMTool = "exceptrace-ipm"
	DefaultICGTool = "exceptrace-icg"
)

// Validation errors.
var (
	ErrNoJobs    = errors.New("jobs must be at least 1")
	ErrNoTimeout = errors.New("timeout must be positive")
	ErrNoOutput  = errors.New("output dir must not be empty")
	ErrNoIPMTool = errors.New("extract.ipm_tool must not be empty")
	ErrNoICGTool = errors.New("extract.icg_tool must not be empty")
)

// Config is the top-level configuration struct.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	OutputDir           string `mapstructure:"output_dir"`
	Jobs                int    `mapstructure:"jobs"`
	Strict              bool   `mapstructure:"strict"`
	ExpandVirtualCalls  bool   `mapstructure:"expand_virtual_calls"`
	IncludeSystemHeader bool   `mapstructure:"include_system_header"`

	Extract       ExtractConfig       `mapstructure:"extract"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ExtractConfig holds the extractor invocation knobs.
type ExtractConfig struct {
	IPMTool string        `mapstructure:"ipm_tool"`
	ICGTool string        `mapstructure:"icg_tool"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ObservabilityConfig holds logging and telemetry knobs.
type ObservabilityConfig struct {
	LogLevel     string `mapstructure:"log_level"`
	LogJSON      bool   `mapstructure:"log_json"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return ErrNoOutput
	}

	if c.Jobs < 1 {
		return ErrNoJobs
	}

	if c.Extract.Timeout <= 0 {
		return ErrNoTimeout
	}

	if c.Extract.IPMTool == "" {
		return ErrNoIPMTool
	}

	if c.Extract.ICGTool == "" {
		return ErrNoICGTool
	}

	return nil
}
