package engine

import (
	"errors"
	"fmt"

	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
)

// Common sentinel errors
var (
	// ErrCascadeDepthExceeded indicates a tick stopped draining because
	// output events kept triggering rules past the configured depth.
	ErrCascadeDepthExceeded = errors.New("cascade depth exceeded")

	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")

	// ErrContextMismatch indicates ExitContext named a context that is not
	// the innermost one.
	ErrContextMismatch = errors.New("context is not the innermost context")

	// ErrQueueFull indicates the intake queue reached MaxPendingEvents.
	ErrQueueFull = errors.New("event queue is full")

	// ErrNoActionHandler indicates no handler accepts an action id.
	ErrNoActionHandler = errors.New("no handler for action")
)

// Phase names the step of a rule activation that failed.
type Phase string

const (
	PhaseCondition    Phase = "condition"
	PhaseModification Phase = "modification"
	PhaseAction       Phase = "action"
)

// RuleError is a failure localized to one rule activation. The rule is
// treated as not matching (condition), rolled back (modification) or
// left applied (action), and the drain pass continues.
type RuleError struct {
	RuleID  string
	Event   string
	EventID string
	Phase   Phase
	Action  string // PhaseAction only
	Cause   error
}

// Error returns the error message.
func (e *RuleError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("rule %s on %s: %s %s: %v", e.RuleID, e.Event, e.Phase, e.Action, e.Cause)
	}
	return fmt.Sprintf("rule %s on %s: %s: %v", e.RuleID, e.Event, e.Phase, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RuleError) Unwrap() error {
	return e.Cause
}

// CascadeDepthError reports the event that would have started a pass beyond
// the maximum depth.
type CascadeDepthError struct {
	Event      string
	SourceRule string // rule whose output produced Event
	Depth      int
	Pending    int // events left when draining stopped
	Kept       bool
}

// Error returns the error message.
func (e *CascadeDepthError) Error() string {
	fate := "dropped"
	if e.Kept {
		fate = "kept"
	}
	return fmt.Sprintf("cascade depth %d exceeded at event %q from rule %q: %d pending events %s",
		e.Depth, e.Event, e.SourceRule, e.Pending, fate)
}

// Is reports whether target is ErrCascadeDepthExceeded.
func (e *CascadeDepthError) Is(target error) bool {
	return target == ErrCascadeDepthExceeded
}

// Error kinds reported to observers.
const (
	KindUnknownFact          = "unknown_fact"
	KindTypeMismatch         = "type_mismatch"
	KindDivisionByZero       = "division_by_zero"
	KindIntegerOverflow      = "integer_overflow"
	KindDuplicateRuleID      = "duplicate_rule_id"
	KindInvalidScopePop      = "invalid_scope_pop"
	KindCascadeDepthExceeded = "cascade_depth_exceeded"
	KindContextMismatch      = "context_mismatch"
	KindNoActionHandler      = "no_action_handler"
	KindOther                = "other"
)

// Kind maps err to a stable kind string for logs, metrics and the journal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fact.ErrUnknownFact):
		return KindUnknownFact
	case errors.Is(err, fact.ErrTypeMismatch):
		return KindTypeMismatch
	case errors.Is(err, fact.ErrDivisionByZero):
		return KindDivisionByZero
	case errors.Is(err, fact.ErrIntegerOverflow):
		return KindIntegerOverflow
	case errors.Is(err, rule.ErrDuplicateRuleID):
		return KindDuplicateRuleID
	case errors.Is(err, fact.ErrInvalidScopePop):
		return KindInvalidScopePop
	case errors.Is(err, ErrCascadeDepthExceeded):
		return KindCascadeDepthExceeded
	case errors.Is(err, ErrContextMismatch):
		return KindContextMismatch
	case errors.Is(err, ErrNoActionHandler):
		return KindNoActionHandler
	}
	return KindOther
}
