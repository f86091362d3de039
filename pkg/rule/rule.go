package rule

import (
	"fmt"
	"strings"

	"mercator-hq/fre/pkg/fact"
)

// Rule binds a triggering event to a condition, modifications, actions and
// output events.
type Rule struct {
	ID          string
	Description string
	Event       string
	Condition   *Condition // nil means always true

	Modifications []*Modification
	Actions       []string
	Outputs       []string

	// ConsumeEvent stops later rules from seeing the event once this rule fires.
	ConsumeEvent bool

	// EmitOnChange suppresses Outputs unless a modification changed a value.
	EmitOnChange bool

	// Priority orders rules within a scope, higher first. Ties keep
	// registration order.
	Priority int
	Enabled  bool
	Location Location
}

// New returns an enabled rule with the given id and trigger.
func New(id, event string) *Rule {
	return &Rule{ID: id, Event: event, Enabled: true}
}

// When sets the condition.
func (r *Rule) When(c *Condition) *Rule {
	r.Condition = c
	return r
}

// Modify appends modifications.
func (r *Rule) Modify(mods ...*Modification) *Rule {
	r.Modifications = append(r.Modifications, mods...)
	return r
}

// Do appends action identifiers.
func (r *Rule) Do(actions ...string) *Rule {
	r.Actions = append(r.Actions, actions...)
	return r
}

// Emit appends output events.
func (r *Rule) Emit(events ...string) *Rule {
	r.Outputs = append(r.Outputs, events...)
	return r
}

// Consume sets ConsumeEvent.
func (r *Rule) Consume() *Rule {
	r.ConsumeEvent = true
	return r
}

// WithPriority sets Priority.
func (r *Rule) WithPriority(p int) *Rule {
	r.Priority = p
	return r
}

// Matches evaluates the rule's condition.
func (r *Rule) Matches(facts fact.Reader) (bool, error) {
	return r.Condition.Evaluate(facts)
}

// Clone returns a shallow copy with its own slices. Conditions and
// expressions are immutable and shared.
func (r *Rule) Clone() *Rule {
	c := *r
	c.Modifications = append([]*Modification(nil), r.Modifications...)
	c.Actions = append([]string(nil), r.Actions...)
	c.Outputs = append([]string(nil), r.Outputs...)
	return &c
}

// String returns a one-line summary.
func (r *Rule) String() string {
	return fmt.Sprintf("rule %s on %s when %s", r.ID, r.Event, r.Condition)
}

// GenerateID returns the id assigned to an unnamed rule: rule_<event>_<index>
// with ':' in the event replaced by '_' and the index zero-padded to 3 digits.
func GenerateID(event string, index int) string {
	return fmt.Sprintf("rule_%s_%03d", strings.ReplaceAll(event, ":", "_"), index)
}
