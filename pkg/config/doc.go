// Package config provides configuration management for the fre runtime.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// from the environment and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("fre.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention FRE_SECTION_FIELD and
// are declared as `env` struct tags, so the override list cannot drift from
// the struct. For example:
//
//   - FRE_ENGINE_MAX_CASCADE_DEPTH overrides engine.max_cascade_depth
//   - FRE_RULES_PATHS overrides rules.paths (comma separated)
//   - FRE_LOG_LEVEL overrides telemetry.logging.level
//
// # Example
//
//	engine:
//	  max_cascade_depth: 16
//	  overflow_policy: drop
//	  duplicate_ids: error
//	rules:
//	  paths: [./rules]
//	  watch: true
//	runtime:
//	  tick_interval: 100ms
//	schedules:
//	  - name: regen
//	    cron: "@every 5s"
//	    event: regen_tick
//	telemetry:
//	  logging:
//	    level: info
//	    format: text
//	  metrics:
//	    enabled: true
//	    address: 127.0.0.1:9464
//	journal:
//	  enabled: true
//	  path: data/journal.db
//
// # Global Configuration
//
// The CLI stores the loaded configuration as the process configuration
// (Load, GetConfig). Library code takes a *Config explicitly.
package config
