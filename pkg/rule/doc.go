// Package rule defines rules, their conditions and modifications, and the
// scoped registry the engine matches events against.
//
// A Rule binds a triggering event to a Condition, an ordered list of
// Modifications, opaque action identifiers and output events. Conditions are
// either a parsed infix expression or a structured tree (all/any/not,
// comparisons, existence and truth checks). Both forms evaluate against a
// fact.Reader and never mutate it.
//
// # Registry
//
// Registry partitions rules by Scope. GlobalScope is always matched; any
// other scope is matched only while active. Deactivating a scope keeps its
// rules, so re-entering a context restores the same rule set.
//
//	reg := rule.NewRegistry()
//	_ = reg.Register(damage, rule.GlobalScope)
//	_ = reg.Register(greet, "tavern")
//	reg.ActivateScope("tavern")
//	rules := reg.RulesForEvent("hit", reg.ActiveScopes())
//
// Registering an id that already exists in a scope fails with
// ErrDuplicateRuleID. RegisterBatch is all-or-nothing and can optionally
// suffix ids repeated within the batch (-0, -1, ...) when a loader generates
// rules from a list.
package rule
