package manager

import (
	"time"

	"mercator-hq/fre/pkg/rule"
)

// Target receives loaded rule sets. *engine.Engine implements it.
type Target interface {
	// LoadRuleSets installs sets immediately.
	LoadRuleSets(sets []*rule.Set) error

	// StageRuleSets installs sets at the start of the next tick.
	StageRuleSets(sets []*rule.Set) error
}

// Status describes the rule sets currently installed by a manager.
type Status struct {
	// Version counts successful loads; 0 means nothing is installed.
	Version uint64

	// LoadedAt is the time of the last successful load.
	LoadedAt time.Time

	// LastError is the error of the most recent load attempt, or nil if it
	// succeeded. The previous sets stay installed after a failure.
	LastError error

	RuleSets int
	Rules    int
	Files    []string
}

// ReloadResult is passed to reload hooks after every load attempt.
type ReloadResult struct {
	Version  uint64
	Duration time.Duration
	Rules    int
	Err      error
}
