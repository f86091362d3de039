package rule

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Scope partitions the registry. GlobalScope is always active.
type Scope string

// GlobalScope holds rules matched regardless of context.
const GlobalScope Scope = "global"

// DuplicatePolicy controls how RegisterBatch treats ids repeated inside one batch.
type DuplicatePolicy string

const (
	// DuplicateError rejects the batch.
	DuplicateError DuplicatePolicy = "error"
	// DuplicateSuffix renames each repeated id to id-0, id-1, ... in batch order.
	DuplicateSuffix DuplicatePolicy = "suffix"
)

// IsValid reports whether p is a known policy.
func (p DuplicatePolicy) IsValid() bool {
	return p == DuplicateError || p == DuplicateSuffix
}

type entry struct {
	rule    *Rule
	enabled bool
	seq     uint64
}

type scopeRules struct {
	entries []*entry
	byID    map[string]*entry
}

// Registry stores rules by scope and answers which rules an event triggers.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	scopes map[Scope]*scopeRules
	active []Scope // activation order
	seq    uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[Scope]*scopeRules)}
}

func (r *Registry) scope(s Scope, create bool) *scopeRules {
	sr := r.scopes[s]
	if sr == nil && create {
		sr = &scopeRules{byID: make(map[string]*entry)}
		r.scopes[s] = sr
	}
	return sr
}

// Register adds rule to scope. The registry keeps its own copy.
func (r *Registry) Register(rule *Rule, scope Scope) error {
	if err := checkRule(rule, scope); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	sr := r.scope(scope, true)
	if _, ok := sr.byID[rule.ID]; ok {
		return &DuplicateRuleError{ID: rule.ID, Scope: scope, Location: rule.Location}
	}
	r.add(sr, rule.Clone())
	return nil
}

func (r *Registry) add(sr *scopeRules, rule *Rule) {
	r.seq++
	e := &entry{rule: rule, enabled: rule.Enabled, seq: r.seq}
	sr.entries = append(sr.entries, e)
	sr.byID[rule.ID] = e
}

func checkRule(rule *Rule, scope Scope) error {
	switch {
	case rule == nil:
		return &RegistryError{Operation: "register", Scope: scope, Cause: errors.New("rule is nil")}
	case rule.ID == "":
		return &RegistryError{Operation: "register", Scope: scope, Cause: errors.New("rule id is empty")}
	case rule.Event == "":
		return &RegistryError{Operation: "register", RuleID: rule.ID, Scope: scope, Cause: errors.New("rule event is empty")}
	case scope == "":
		return &RegistryError{Operation: "register", RuleID: rule.ID, Cause: errors.New("scope is empty")}
	}
	return nil
}

// RegisterBatch registers rules into scope atomically: either every rule is
// registered or none is. It returns the final ids in batch order.
//
// Under DuplicateSuffix every occurrence of an id repeated inside the batch
// is renamed id-0, id-1, ... A batch id that collides with a rule already in
// the scope is always an error.
func (r *Registry) RegisterBatch(rules []*Rule, scope Scope, policy DuplicatePolicy) ([]string, error) {
	if policy == "" {
		policy = DuplicateError
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("unknown duplicate policy %q", policy)
	}
	for _, rule := range rules {
		if err := checkRule(rule, scope); err != nil {
			return nil, err
		}
	}

	counts := make(map[string]int, len(rules))
	for _, rule := range rules {
		counts[rule.ID]++
	}
	next := make(map[string]int)
	staged := make([]*Rule, len(rules))
	ids := make([]string, len(rules))
	seen := make(map[string]bool, len(rules))

	r.mu.Lock()
	defer r.mu.Unlock()
	sr := r.scope(scope, false)

	for i, rule := range rules {
		c := rule.Clone()
		if counts[rule.ID] > 1 {
			if policy == DuplicateError {
				return nil, &DuplicateRuleError{ID: rule.ID, Scope: scope, Location: rule.Location}
			}
			c.ID = fmt.Sprintf("%s-%d", rule.ID, next[rule.ID])
			next[rule.ID]++
		}
		if seen[c.ID] {
			return nil, &DuplicateRuleError{ID: c.ID, Scope: scope, Location: rule.Location}
		}
		if sr != nil {
			if _, ok := sr.byID[c.ID]; ok {
				return nil, &DuplicateRuleError{ID: c.ID, Scope: scope, Location: rule.Location}
			}
		}
		seen[c.ID] = true
		staged[i] = c
		ids[i] = c.ID
	}

	sr = r.scope(scope, true)
	for _, c := range staged {
		r.add(sr, c)
	}
	return ids, nil
}

// Unregister removes a rule.
func (r *Registry) Unregister(id string, scope Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sr := r.scope(scope, false)
	if sr == nil || sr.byID[id] == nil {
		return &RegistryError{Operation: "unregister", RuleID: id, Scope: scope, Cause: ErrRuleNotFound}
	}
	e := sr.byID[id]
	delete(sr.byID, id)
	sr.entries = slices.DeleteFunc(sr.entries, func(x *entry) bool { return x == e })
	return nil
}

// Get returns a copy of a registered rule.
func (r *Registry) Get(id string, scope Scope) (*Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sr := r.scope(scope, false)
	if sr == nil || sr.byID[id] == nil {
		return nil, false
	}
	e := sr.byID[id]
	c := e.rule.Clone()
	c.Enabled = e.enabled
	return c, true
}

// SetEnabled enables or disables a registered rule without removing it.
func (r *Registry) SetEnabled(id string, scope Scope, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sr := r.scope(scope, false)
	if sr == nil || sr.byID[id] == nil {
		return &RegistryError{Operation: "set_enabled", RuleID: id, Scope: scope, Cause: ErrRuleNotFound}
	}
	sr.byID[id].enabled = enabled
	return nil
}

// Rules returns the rules of scope in registration order.
func (r *Registry) Rules(scope Scope) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sr := r.scope(scope, false)
	if sr == nil {
		return nil
	}
	out := make([]*Rule, len(sr.entries))
	for i, e := range sr.entries {
		out[i] = e.rule
	}
	return out
}

// Scopes returns every scope holding rules, sorted.
func (r *Registry) Scopes() []Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Scope, 0, len(r.scopes))
	for s, sr := range r.scopes {
		if len(sr.entries) > 0 {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the total number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, sr := range r.scopes {
		n += len(sr.entries)
	}
	return n
}

// ClearScope removes every rule in scope.
func (r *Registry) ClearScope(scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scopes, scope)
}

// ActivateScope makes scope's rules eligible for matching. It reports false
// if the scope was already active. Activating GlobalScope is a no-op.
func (r *Registry) ActivateScope(scope Scope) bool {
	if scope == GlobalScope {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.active, scope) {
		return false
	}
	r.active = append(r.active, scope)
	return true
}

// DeactivateScope stops matching scope's rules and keeps them registered.
func (r *Registry) DeactivateScope(scope Scope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.active, scope)
	if i < 0 {
		return false
	}
	r.active = slices.Delete(r.active, i, i+1)
	return true
}

// ActiveScopes returns the active local scopes in activation order.
func (r *Registry) ActiveScopes() []Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.active)
}

// IsActive reports whether scope is matched. GlobalScope always is.
func (r *Registry) IsActive(scope Scope) bool {
	if scope == GlobalScope {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.active, scope)
}

// RulesForEvent returns the enabled rules triggered by event: GlobalScope
// first, then each scope in active in the given order. Within a scope rules
// are ordered by descending Priority, then registration order.
func (r *Registry) RulesForEvent(event string, active []Scope) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Rule
	visited := make(map[Scope]bool, len(active)+1)
	for _, s := range append([]Scope{GlobalScope}, active...) {
		if visited[s] {
			continue
		}
		visited[s] = true
		sr := r.scope(s, false)
		if sr == nil {
			continue
		}
		var matched []*entry
		for _, e := range sr.entries {
			if e.enabled && e.rule.Event == event {
				matched = append(matched, e)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].rule.Priority > matched[j].rule.Priority
		})
		for _, e := range matched {
			out = append(out, e.rule)
		}
	}
	return out
}

// Events returns the sorted set of events with at least one registered rule.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, sr := range r.scopes {
		for _, e := range sr.entries {
			out = append(out, e.rule.Event)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
