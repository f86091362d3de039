package config

import (
	"fmt"
	"sync/atomic"
)

// current is the configuration of the running process, set by the CLI once
// flags are parsed.
var current atomic.Pointer[Config]

// Load reads path with environment overrides and makes it the current
// configuration. On error the previous configuration stays in place.
func Load(path string) (*Config, error) {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	current.Store(cfg)
	return cfg, nil
}

// GetConfig returns the current configuration, or nil before Load or
// SetConfig. Library code takes a *Config explicitly instead.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig replaces the current configuration.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// MustGetConfig is GetConfig for code that runs after startup.
func MustGetConfig() *Config {
	cfg := current.Load()
	if cfg == nil {
		panic("configuration not loaded")
	}
	return cfg
}
