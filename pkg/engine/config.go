package engine

import (
	"fmt"

	"mercator-hq/fre/pkg/rule"
)

// OverflowPolicy determines what happens to the events still pending when a
// tick exceeds the maximum cascade depth.
type OverflowPolicy string

const (
	// OverflowDrop discards the remaining cascade. This is the default.
	OverflowDrop OverflowPolicy = "drop"

	// OverflowKeep puts the remaining events at the front of the intake
	// queue so the next tick continues the cascade.
	OverflowKeep OverflowPolicy = "keep"
)

// Config contains configuration for the rule engine.
type Config struct {
	// MaxCascadeDepth is the number of drain passes allowed after the first
	// one in a single tick. 0 processes only the events pending at tick
	// start. Default: 16.
	MaxCascadeDepth int

	// OverflowPolicy decides the fate of events beyond MaxCascadeDepth.
	// Default: OverflowDrop.
	OverflowPolicy OverflowPolicy

	// DuplicatePolicy is used when registering sets that do not choose one.
	// Default: rule.DuplicateError.
	DuplicatePolicy rule.DuplicatePolicy

	// MaxPendingEvents bounds the intake queue. Emit fails once it is full.
	// 0 means unbounded. Default: 0.
	MaxPendingEvents int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxCascadeDepth: 16,
		OverflowPolicy:  OverflowDrop,
		DuplicatePolicy: rule.DuplicateError,
	}
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	if c.MaxCascadeDepth < 0 {
		return fmt.Errorf("%w: max cascade depth must not be negative", ErrInvalidConfig)
	}
	switch c.OverflowPolicy {
	case OverflowDrop, OverflowKeep:
	default:
		return fmt.Errorf("%w: invalid overflow policy %q", ErrInvalidConfig, c.OverflowPolicy)
	}
	if !c.DuplicatePolicy.IsValid() {
		return fmt.Errorf("%w: invalid duplicate policy %q", ErrInvalidConfig, c.DuplicatePolicy)
	}
	if c.MaxPendingEvents < 0 {
		return fmt.Errorf("%w: max pending events must not be negative", ErrInvalidConfig)
	}
	return nil
}

// WithMaxCascadeDepth sets the maximum cascade depth.
func (c *Config) WithMaxCascadeDepth(depth int) *Config {
	c.MaxCascadeDepth = depth
	return c
}

// WithOverflowPolicy sets the overflow policy.
func (c *Config) WithOverflowPolicy(p OverflowPolicy) *Config {
	c.OverflowPolicy = p
	return c
}

// WithDuplicatePolicy sets the default duplicate-id policy.
func (c *Config) WithDuplicatePolicy(p rule.DuplicatePolicy) *Config {
	c.DuplicatePolicy = p
	return c
}

// WithMaxPendingEvents bounds the intake queue.
func (c *Config) WithMaxPendingEvents(n int) *Config {
	c.MaxPendingEvents = n
	return c
}
