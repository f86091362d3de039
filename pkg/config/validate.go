package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "engine.overflow_policy").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateRules(&cfg.Rules)...)
	errs = append(errs, validateRuntime(&cfg.Runtime)...)
	errs = append(errs, validateSchedules(cfg.Schedules)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxCascadeDepth != nil && *cfg.MaxCascadeDepth < 0 {
		errs = append(errs, FieldError{
			Field:   "engine.max_cascade_depth",
			Message: "must not be negative",
		})
	}
	if cfg.OverflowPolicy != "drop" && cfg.OverflowPolicy != "keep" {
		errs = append(errs, FieldError{
			Field:   "engine.overflow_policy",
			Message: fmt.Sprintf("invalid policy %q: must be 'drop' or 'keep'", cfg.OverflowPolicy),
		})
	}
	if cfg.DuplicateIDs != "error" && cfg.DuplicateIDs != "suffix" {
		errs = append(errs, FieldError{
			Field:   "engine.duplicate_ids",
			Message: fmt.Sprintf("invalid policy %q: must be 'error' or 'suffix'", cfg.DuplicateIDs),
		})
	}
	if cfg.MaxPendingEvents < 0 {
		errs = append(errs, FieldError{
			Field:   "engine.max_pending_events",
			Message: "must not be negative",
		})
	}

	return errs
}

func validateRules(cfg *RulesConfig) []FieldError {
	var errs []FieldError

	switch cfg.Mode {
	case "file":
		if len(cfg.Paths) == 0 {
			errs = append(errs, FieldError{
				Field:   "rules.paths",
				Message: "at least one path is required when mode is 'file'",
			})
		}
		for i, p := range cfg.Paths {
			if strings.TrimSpace(p) == "" {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("rules.paths[%d]", i),
					Message: "path must not be empty",
				})
			}
		}
	case "git":
		errs = append(errs, validateGit(&cfg.Git)...)
	default:
		errs = append(errs, FieldError{
			Field:   "rules.mode",
			Message: fmt.Sprintf("invalid mode %q: must be 'file' or 'git'", cfg.Mode),
		})
	}

	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "rules.debounce",
			Message: "must not be negative",
		})
	}
	for i, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("rules.extensions[%d]", i),
				Message: fmt.Sprintf("extension %q must start with '.'", ext),
			})
		}
	}

	return errs
}

func validateGit(cfg *GitConfig) []FieldError {
	var errs []FieldError

	if cfg.Repository == "" {
		errs = append(errs, FieldError{
			Field:   "rules.git.repository",
			Message: "repository is required when mode is 'git'",
		})
	}
	if cfg.Branch == "" {
		errs = append(errs, FieldError{
			Field:   "rules.git.branch",
			Message: "branch is required when mode is 'git'",
		})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, FieldError{
			Field:   "rules.git.poll_interval",
			Message: "must be positive",
		})
	}
	if cfg.PollTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "rules.git.poll_timeout",
			Message: "must be positive",
		})
	}
	if cfg.Depth < 0 {
		errs = append(errs, FieldError{
			Field:   "rules.git.depth",
			Message: "must not be negative",
		})
	}

	switch cfg.Auth.Type {
	case "none":
	case "token":
		if cfg.Auth.Token == "" {
			errs = append(errs, FieldError{
				Field:   "rules.git.auth.token",
				Message: "token is required for token auth",
			})
		}
	case "ssh":
		if cfg.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{
				Field:   "rules.git.auth.ssh_key_path",
				Message: "key path is required for ssh auth",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "rules.git.auth.type",
			Message: fmt.Sprintf("invalid type %q: must be 'none', 'token' or 'ssh'", cfg.Auth.Type),
		})
	}

	return errs
}

func validateRuntime(cfg *RuntimeConfig) []FieldError {
	if cfg.TickInterval != nil && *cfg.TickInterval < 0 {
		return []FieldError{{
			Field:   "runtime.tick_interval",
			Message: "must not be negative",
		}}
	}
	return nil
}

// validateSchedules checks cron expressions with the same parser the
// scheduler uses.
func validateSchedules(schedules []ScheduleConfig) []FieldError {
	var errs []FieldError
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	for i, s := range schedules {
		prefix := fmt.Sprintf("schedules[%d]", i)
		if s.Event == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".event",
				Message: "event is required",
			})
		}
		if s.Cron == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".cron",
				Message: "cron expression is required",
			})
			continue
		}
		if _, err := parser.Parse(s.Cron); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix + ".cron",
				Message: fmt.Sprintf("invalid cron expression %q: %v", s.Cron, err),
			})
		}
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Address); err != nil {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.address",
				Message: fmt.Sprintf("invalid address %q: %v", cfg.Metrics.Address, err),
			})
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "path must start with '/'",
			})
		}
	}

	if cfg.Tracing.SampleRatio != nil {
		if r := *cfg.Tracing.SampleRatio; r < 0 || r > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "must be between 0 and 1",
			})
		}
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}

	return errs
}

func validateJournal(cfg *JournalConfig) []FieldError {
	if cfg.Enabled && cfg.Path == "" {
		return []FieldError{{
			Field:   "journal.path",
			Message: "path is required when the journal is enabled",
		}}
	}
	return nil
}
