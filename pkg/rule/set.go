package rule

import (
	"errors"
	"fmt"

	"mercator-hq/fre/pkg/fact"
)

// Set is the parsed content of one rule file: initial facts, rules and
// optional scenario tests. Every expression in a Set is already parsed.
type Set struct {
	Name        string
	Version     string
	Description string

	// Scope is the registration scope of Rules. Empty means GlobalScope.
	Scope Scope

	// Duplicates overrides the engine's duplicate-id policy for this set.
	Duplicates DuplicatePolicy

	Facts map[string]fact.Value
	Rules []*Rule
	Tests []*Scenario

	SourceFile string
	Location   Location
}

// EffectiveScope returns Scope, defaulting to GlobalScope.
func (s *Set) EffectiveScope() Scope {
	if s.Scope == "" {
		return GlobalScope
	}
	return s.Scope
}

// BuildRegistry registers every set into a fresh registry. It fails on the
// first conflict and never returns a partially built registry.
func BuildRegistry(sets []*Set, policy DuplicatePolicy) (*Registry, error) {
	reg := NewRegistry()
	for _, s := range sets {
		p := policy
		if s.Duplicates != "" {
			p = s.Duplicates
		}
		if _, err := reg.RegisterBatch(s.Rules, s.EffectiveScope(), p); err != nil {
			name := s.Name
			if name == "" {
				name = s.SourceFile
			}
			return nil, fmt.Errorf("rule set %q: %w", name, err)
		}
	}
	return reg, nil
}

// MergeFacts combines the initial facts of sets. A key declared by two sets
// with different values is an error.
func MergeFacts(sets []*Set) (map[string]fact.Value, error) {
	out := make(map[string]fact.Value)
	owner := make(map[string]string)
	var errs []error
	for _, s := range sets {
		for k, v := range s.Facts {
			if prev, ok := out[k]; ok && !prev.Equal(v) {
				errs = append(errs, fmt.Errorf("fact %q declared as %s in %s and %s in %s", k, prev, owner[k], v, s.SourceFile))
				continue
			}
			out[k] = v
			owner[k] = s.SourceFile
		}
	}
	return out, errors.Join(errs...)
}

// Scenario is a scripted test embedded in a rule file.
type Scenario struct {
	Name        string
	Description string
	Facts       map[string]fact.Value // overrides applied to the global layer first
	Steps       []*Step
	Location    Location
}

// Step exits and then enters contexts, then emits its events and runs one
// tick, Repeat times. Expect is checked against everything that happened
// during the step.
type Step struct {
	Enter  []Scope
	Exit   []Scope
	Emit   []EventSpec
	Repeat int // defaults to 1
	Expect *Expectation
}

// EventSpec is an event to emit in a scenario step.
type EventSpec struct {
	Name    string
	Payload map[string]string
}

// Expectation is checked after a step completes. Nil slices are not checked.
type Expectation struct {
	Facts      map[string]fact.Value
	Absent     []string
	Actions    []string // exact sequence dispatched during the step
	NotActions []string // must not be dispatched during the step
	Fired      []string // rule ids that must have fired during the step
	Overflow   *bool
}
