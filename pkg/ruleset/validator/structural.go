package validator

import (
	"fmt"

	"mercator-hq/fre/pkg/rule"
	rsErrors "mercator-hq/fre/pkg/ruleset/errors"
)

// StructuralValidator checks that rules, conditions, modifications and
// scenarios are well formed. Sets built by the parser already satisfy most
// of this; sets built in code may not.
type StructuralValidator struct {
	errors *rsErrors.ErrorList
}

// NewStructuralValidator creates a structural validator.
func NewStructuralValidator() *StructuralValidator {
	return &StructuralValidator{errors: rsErrors.NewErrorList()}
}

// Validate checks every set.
func (v *StructuralValidator) Validate(sets ...*rule.Set) error {
	v.errors = rsErrors.NewErrorList()
	for _, set := range sets {
		if set == nil {
			v.errors.AddError(rsErrors.ErrorTypeStructural, "Rule set is nil", rule.Location{})
			continue
		}
		if set.Duplicates != "" && !set.Duplicates.IsValid() {
			v.errors.AddError(rsErrors.ErrorTypeStructural,
				fmt.Sprintf("Invalid duplicate_ids policy %q", set.Duplicates), set.Location)
		}
		for i, r := range set.Rules {
			v.validateRule(r, i, set)
		}
		for _, sc := range set.Tests {
			v.validateScenario(sc)
		}
	}
	return v.errors.ToError()
}

func (v *StructuralValidator) addf(at rule.Location, format string, args ...any) {
	v.errors.AddError(rsErrors.ErrorTypeStructural, fmt.Sprintf(format, args...), at)
}

func (v *StructuralValidator) validateRule(r *rule.Rule, index int, set *rule.Set) {
	if r == nil {
		v.addf(set.Location, "Rule at index %d is nil", index)
		return
	}
	if r.ID == "" {
		v.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Rule at index %d has no id", index), r.Location,
			fmt.Sprintf("Use rule.GenerateID, e.g. %q", rule.GenerateID(r.Event, index)))
	}
	if r.Event == "" {
		v.addf(r.Location, "Rule %q has no event", r.ID)
	}
	v.validateCondition(r.Condition, r.ID)
	for _, m := range r.Modifications {
		v.validateModification(m, r)
	}
	for i, a := range r.Actions {
		if a == "" {
			v.addf(r.Location, "Rule %q: action %d is empty", r.ID, i)
		}
	}
	for i, o := range r.Outputs {
		if o == "" {
			v.addf(r.Location, "Rule %q: output %d is empty", r.ID, i)
		}
	}
}

func (v *StructuralValidator) validateCondition(c *rule.Condition, ruleID string) {
	if c == nil {
		return
	}
	switch c.Type {
	case rule.ConditionAlways:
	case rule.ConditionExpr:
		if c.Expr == nil {
			v.addf(c.Location, "Rule %q: expression condition has no expression", ruleID)
		}
	case rule.ConditionCompare:
		if c.Fact == "" || c.Value == nil {
			v.addf(c.Location, "Rule %q: comparison requires a fact and a value", ruleID)
		}
		if !c.Op.IsComparison() {
			v.addf(c.Location, "Rule %q: %s is not a comparison operator", ruleID, c.Op)
		}
	case rule.ConditionExists, rule.ConditionNotExists, rule.ConditionIsTrue, rule.ConditionIsFalse:
		if c.Fact == "" {
			v.addf(c.Location, "Rule %q: %s condition has no fact", ruleID, c.Type)
		}
	case rule.ConditionAll, rule.ConditionAny:
		if len(c.Children) == 0 {
			v.errors.AddError(rsErrors.ErrorTypeWarning,
				fmt.Sprintf("Rule %q: empty %q condition", ruleID, c.Type), c.Location)
		}
	case rule.ConditionNot:
		if len(c.Children) != 1 {
			v.addf(c.Location, "Rule %q: not condition requires exactly one child, got %d", ruleID, len(c.Children))
		}
	default:
		v.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Rule %q: unknown condition type %q", ruleID, c.Type), c.Location,
			"Use expr, compare, all, any, not, exists, not_exists, is_true, is_false or always")
	}
	for _, child := range c.Children {
		if child == nil {
			v.addf(c.Location, "Rule %q: nil child condition", ruleID)
			continue
		}
		v.validateCondition(child, ruleID)
	}
}

func (v *StructuralValidator) validateModification(m *rule.Modification, r *rule.Rule) {
	if m == nil {
		v.addf(r.Location, "Rule %q: nil modification", r.ID)
		return
	}
	at := m.Location
	if !at.IsValid() {
		at = r.Location
	}
	if !m.Kind.IsValid() {
		v.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Rule %q: unknown modification %q", r.ID, m.Kind), at,
			rsErrors.SuggestName(string(m.Kind), rule.ModKinds(), "op"))
		return
	}
	if m.Key == "" {
		v.addf(at, "Rule %q: %s modification has no key", r.ID, m.Kind)
	}
	if m.Kind.NeedsValue() && m.Value == nil {
		v.addf(at, "Rule %q: %s %q requires a value", r.ID, m.Kind, m.Key)
	}
	if m.Kind.NeedsBounds() && (m.Min == nil || m.Max == nil) {
		v.addf(at, "Rule %q: %s %q requires min and max", r.ID, m.Kind, m.Key)
	}
}

func (v *StructuralValidator) validateScenario(sc *rule.Scenario) {
	if sc == nil {
		return
	}
	if len(sc.Steps) == 0 {
		v.addf(sc.Location, "Test %q has no steps", sc.Name)
	}
	for i, step := range sc.Steps {
		if step == nil {
			v.addf(sc.Location, "Test %q step %d is nil", sc.Name, i)
			continue
		}
		if step.Repeat < 0 {
			v.addf(sc.Location, "Test %q step %d: repeat must not be negative", sc.Name, i)
		}
		for _, e := range step.Emit {
			if e.Name == "" {
				v.addf(sc.Location, "Test %q step %d emits an unnamed event", sc.Name, i)
			}
		}
	}
}
