package config

import "time"

// Config is the root configuration structure for the fre runtime.
type Config struct {
	// Engine contains rule evaluation settings: cascade limits, overflow
	// handling and the duplicate rule id policy.
	Engine EngineConfig `yaml:"engine"`

	// Rules contains the rule source location, hot reload and git settings.
	Rules RulesConfig `yaml:"rules"`

	// Runtime contains settings for the host loop driving the engine.
	Runtime RuntimeConfig `yaml:"runtime"`

	// Schedules are cron entries that emit events into the engine.
	Schedules []ScheduleConfig `yaml:"schedules"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Journal contains configuration for the activation journal.
	Journal JournalConfig `yaml:"journal"`
}

// EngineConfig contains configuration for the rule engine.
type EngineConfig struct {
	// MaxCascadeDepth is the number of drain passes allowed after the first
	// in one tick. Nil means the default; 0 is a valid limit.
	// Default: 16
	MaxCascadeDepth *int `yaml:"max_cascade_depth" env:"FRE_ENGINE_MAX_CASCADE_DEPTH"`

	// OverflowPolicy is "drop" or "keep".
	// Default: "drop"
	OverflowPolicy string `yaml:"overflow_policy" env:"FRE_ENGINE_OVERFLOW_POLICY"`

	// DuplicateIDs is "error" or "suffix".
	// Default: "error"
	DuplicateIDs string `yaml:"duplicate_ids" env:"FRE_ENGINE_DUPLICATE_IDS"`

	// MaxPendingEvents bounds the event queue. 0 means unbounded.
	MaxPendingEvents int `yaml:"max_pending_events" env:"FRE_ENGINE_MAX_PENDING_EVENTS"`

	// Strict makes rule validation warnings fatal.
	Strict bool `yaml:"strict" env:"FRE_ENGINE_STRICT"`

	// KnownActions restricts the action ids rules may dispatch. Empty
	// disables the check.
	KnownActions []string `yaml:"known_actions" env:"FRE_ENGINE_KNOWN_ACTIONS" envSeparator:","`
}

// RulesConfig contains configuration for the rule source.
type RulesConfig struct {
	// Mode is "file" or "git".
	// Default: "file"
	Mode string `yaml:"mode" env:"FRE_RULES_MODE"`

	// Paths are rule files or directories, used in file mode.
	// Default: ["./rules"]
	Paths []string `yaml:"paths" env:"FRE_RULES_PATHS" envSeparator:","`

	// Watch enables hot reload when rule files change.
	Watch bool `yaml:"watch" env:"FRE_RULES_WATCH"`

	// Debounce is the quiet period before a reload after a change.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce" env:"FRE_RULES_DEBOUNCE"`

	// Extensions are the file extensions loaded from directories.
	// Default: [".yaml", ".yml"]
	Extensions []string `yaml:"extensions" env:"FRE_RULES_EXTENSIONS" envSeparator:","`

	// Git configures the git rule source used in git mode.
	Git GitConfig `yaml:"git"`
}

// GitConfig contains configuration for a git-backed rule source.
type GitConfig struct {
	// Repository is the clone URL.
	Repository string `yaml:"repository" env:"FRE_RULES_GIT_REPOSITORY"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch" env:"FRE_RULES_GIT_BRANCH"`

	// Path is the rules directory inside the repository.
	// Default: "."
	Path string `yaml:"path" env:"FRE_RULES_GIT_PATH"`

	// LocalPath is where the repository is cloned.
	// Default: "<tmp>/fre-rules"
	LocalPath string `yaml:"local_path" env:"FRE_RULES_GIT_LOCAL_PATH"`

	// Depth limits clone history. 0 clones everything.
	Depth int `yaml:"depth" env:"FRE_RULES_GIT_DEPTH"`

	// CleanOnStart removes LocalPath before cloning.
	CleanOnStart bool `yaml:"clean_on_start" env:"FRE_RULES_GIT_CLEAN_ON_START"`

	// PollInterval is how often the remote is checked for new commits.
	// Default: 30s
	PollInterval time.Duration `yaml:"poll_interval" env:"FRE_RULES_GIT_POLL_INTERVAL"`

	// PollTimeout bounds each clone or pull.
	// Default: 10s
	PollTimeout time.Duration `yaml:"poll_timeout" env:"FRE_RULES_GIT_POLL_TIMEOUT"`

	// Auth configures repository authentication.
	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig contains git authentication settings.
type GitAuthConfig struct {
	// Type is "none", "token" or "ssh".
	Type string `yaml:"type" env:"FRE_RULES_GIT_AUTH_TYPE"`

	Token            string `yaml:"token" env:"FRE_RULES_GIT_AUTH_TOKEN"`
	SSHKeyPath       string `yaml:"ssh_key_path" env:"FRE_RULES_GIT_AUTH_SSH_KEY_PATH"`
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase" env:"FRE_RULES_GIT_AUTH_SSH_KEY_PASSPHRASE"`
}

// RuntimeConfig contains configuration for the host loop.
type RuntimeConfig struct {
	// TickInterval is the period between automatic ticks. 0 disables
	// automatic ticking; ticks then happen on request only.
	// Default: 100ms
	TickInterval *time.Duration `yaml:"tick_interval" env:"FRE_RUNTIME_TICK_INTERVAL"`
}

// ScheduleConfig describes one cron entry.
type ScheduleConfig struct {
	// Name identifies the entry in logs. Defaults to the event name.
	Name string `yaml:"name"`

	// Cron is a standard five-field cron expression or a descriptor such
	// as "@every 5s".
	Cron string `yaml:"cron"`

	// Event is the event emitted on each run.
	Event string `yaml:"event"`

	// Payload is attached to every emitted event.
	Payload map[string]string `yaml:"payload"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level" env:"FRE_LOG_LEVEL"`

	// Format is "json" or "text".
	// Default: "text"
	Format string `yaml:"format" env:"FRE_LOG_FORMAT"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source" env:"FRE_LOG_ADD_SOURCE"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP server.
	Enabled bool `yaml:"enabled" env:"FRE_METRICS_ENABLED"`

	// Address is the listen address of the metrics server.
	// Default: "127.0.0.1:9464"
	Address string `yaml:"address" env:"FRE_METRICS_ADDRESS"`

	// Path is the HTTP path serving metrics.
	// Default: "/metrics"
	Path string `yaml:"path" env:"FRE_METRICS_PATH"`

	// Namespace prefixes every metric name.
	// Default: "fre"
	Namespace string `yaml:"namespace" env:"FRE_METRICS_NAMESPACE"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled exports spans over OTLP/HTTP.
	Enabled bool `yaml:"enabled" env:"FRE_TRACING_ENABLED"`

	// Endpoint is the OTLP collector host:port.
	// Default: "localhost:4318"
	Endpoint string `yaml:"endpoint" env:"FRE_TRACING_ENDPOINT"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure" env:"FRE_TRACING_INSECURE"`

	// SampleRatio is the fraction of ticks traced, between 0 and 1.
	// Default: 1.0
	SampleRatio *float64 `yaml:"sample_ratio" env:"FRE_TRACING_SAMPLE_RATIO"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "fre"
	ServiceName string `yaml:"service_name" env:"FRE_TRACING_SERVICE_NAME"`
}

// JournalConfig contains configuration for the SQLite activation journal.
type JournalConfig struct {
	// Enabled records firings, rule errors and overflows.
	Enabled bool `yaml:"enabled" env:"FRE_JOURNAL_ENABLED"`

	// Path is the database file.
	// Default: "data/journal.db"
	Path string `yaml:"path" env:"FRE_JOURNAL_PATH"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"FRE_JOURNAL_BUSY_TIMEOUT"`
}
