package rule

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRuleID indicates a rule id already registered in its scope.
	ErrDuplicateRuleID = errors.New("duplicate rule id")

	// ErrRuleNotFound indicates a lookup of an unregistered rule.
	ErrRuleNotFound = errors.New("rule not found")
)

// DuplicateRuleError reports a conflicting rule id.
type DuplicateRuleError struct {
	ID       string
	Scope    Scope
	Location Location
}

// Error returns the error message.
func (e *DuplicateRuleError) Error() string {
	if e.Location.IsValid() {
		return fmt.Sprintf("%s: duplicate rule id %q in scope %q", e.Location, e.ID, e.Scope)
	}
	return fmt.Sprintf("duplicate rule id %q in scope %q", e.ID, e.Scope)
}

// Is reports whether target is ErrDuplicateRuleID.
func (e *DuplicateRuleError) Is(target error) bool {
	return target == ErrDuplicateRuleID
}

// RegistryError reports an invalid registry operation.
type RegistryError struct {
	Operation string
	RuleID    string
	Scope     Scope
	Cause     error
}

// Error returns the error message.
func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry %s %q in scope %q: %v", e.Operation, e.RuleID, e.Scope, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RegistryError) Unwrap() error {
	return e.Cause
}

// ModificationError wraps a failure applying one modification.
type ModificationError struct {
	Kind  ModKind
	Key   string
	Cause error
}

// Error returns the error message.
func (e *ModificationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Key, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ModificationError) Unwrap() error {
	return e.Cause
}
