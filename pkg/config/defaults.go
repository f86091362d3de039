package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default values for configuration fields.
const (
	// Engine defaults
	DefaultMaxCascadeDepth = 16
	DefaultOverflowPolicy  = "drop"
	DefaultDuplicateIDs    = "error"

	// Rules defaults
	DefaultRulesMode        = "file"
	DefaultRulesPath        = "./rules"
	DefaultRulesDebounce    = 100 * time.Millisecond
	DefaultGitBranch        = "main"
	DefaultGitPath          = "."
	DefaultGitPollInterval  = 30 * time.Second
	DefaultGitPollTimeout   = 10 * time.Second
	DefaultGitAuthType      = "none"
	DefaultGitLocalPathName = "fre-rules"

	// Runtime defaults
	DefaultTickInterval = 100 * time.Millisecond

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "text"
	DefaultMetricsAddress     = "127.0.0.1:9464"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "fre"
	DefaultTracingEndpoint    = "localhost:4318"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingService     = "fre"

	// Journal defaults
	DefaultJournalPath        = "data/journal.db"
	DefaultJournalBusyTimeout = 5 * time.Second
)

// DefaultExtensions are the rule file extensions loaded from directories.
var DefaultExtensions = []string{".yaml", ".yml"}

// NewDefault returns a configuration with every default applied.
func NewDefault() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Engine defaults
	if cfg.Engine.MaxCascadeDepth == nil {
		depth := DefaultMaxCascadeDepth
		cfg.Engine.MaxCascadeDepth = &depth
	}
	if cfg.Engine.OverflowPolicy == "" {
		cfg.Engine.OverflowPolicy = DefaultOverflowPolicy
	}
	if cfg.Engine.DuplicateIDs == "" {
		cfg.Engine.DuplicateIDs = DefaultDuplicateIDs
	}

	// Rules defaults
	if cfg.Rules.Mode == "" {
		cfg.Rules.Mode = DefaultRulesMode
	}
	if len(cfg.Rules.Paths) == 0 && cfg.Rules.Mode == "file" {
		cfg.Rules.Paths = []string{DefaultRulesPath}
	}
	if cfg.Rules.Debounce == 0 {
		cfg.Rules.Debounce = DefaultRulesDebounce
	}
	if len(cfg.Rules.Extensions) == 0 {
		cfg.Rules.Extensions = append([]string(nil), DefaultExtensions...)
	}
	applyGitDefaults(&cfg.Rules.Git)

	// Runtime defaults
	if cfg.Runtime.TickInterval == nil {
		interval := DefaultTickInterval
		cfg.Runtime.TickInterval = &interval
	}

	for i := range cfg.Schedules {
		if cfg.Schedules[i].Name == "" {
			cfg.Schedules[i].Name = cfg.Schedules[i].Event
		}
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Address == "" {
		cfg.Telemetry.Metrics.Address = DefaultMetricsAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.SampleRatio == nil {
		ratio := DefaultTracingSampleRatio
		cfg.Telemetry.Tracing.SampleRatio = &ratio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}

	// Journal defaults
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	if cfg.Journal.BusyTimeout == 0 {
		cfg.Journal.BusyTimeout = DefaultJournalBusyTimeout
	}
}

func applyGitDefaults(g *GitConfig) {
	if g.Branch == "" {
		g.Branch = DefaultGitBranch
	}
	if g.Path == "" {
		g.Path = DefaultGitPath
	}
	if g.LocalPath == "" {
		g.LocalPath = filepath.Join(os.TempDir(), DefaultGitLocalPathName)
	}
	if g.PollInterval == 0 {
		g.PollInterval = DefaultGitPollInterval
	}
	if g.PollTimeout == 0 {
		g.PollTimeout = DefaultGitPollTimeout
	}
	if g.Auth.Type == "" {
		g.Auth.Type = DefaultGitAuthType
	}
}
