package validator

import (
	"mercator-hq/fre/pkg/rule"
	rsErrors "mercator-hq/fre/pkg/ruleset/errors"
)

// Validator runs the structural and semantic passes over loaded rule sets.
// Semantic checks run only when the structural pass found no errors, so one
// malformed rule does not cascade into dozens of follow-on reports.
type Validator struct {
	structural *StructuralValidator
	semantic   *SemanticValidator
	strict     bool
}

// NewValidator creates a validator with both passes.
func NewValidator() *Validator {
	return &Validator{
		structural: NewStructuralValidator(),
		semantic:   NewSemanticValidator(),
	}
}

// WithStrictMode makes warnings fail validation.
func (v *Validator) WithStrictMode(strict bool) *Validator {
	v.strict = strict
	return v
}

// WithKnownActions enables the unknown-action warning. An action id matches
// when it or its prefix before ':' is in ids.
func (v *Validator) WithKnownActions(ids ...string) *Validator {
	v.semantic.knownActions = ids
	return v
}

// WithDuplicatePolicy sets the policy assumed for sets that do not choose one.
func (v *Validator) WithDuplicatePolicy(p rule.DuplicatePolicy) *Validator {
	v.semantic.policy = p
	return v
}

// Check runs every pass and returns all problems, warnings included.
func (v *Validator) Check(sets ...*rule.Set) *rsErrors.ErrorList {
	all := rsErrors.NewErrorList()
	if err := v.structural.Validate(sets...); err != nil {
		if list, ok := err.(*rsErrors.ErrorList); ok {
			all.Merge(list)
		}
	}
	if !all.HasErrorType(rsErrors.ErrorTypeStructural) {
		if err := v.semantic.Validate(sets...); err != nil {
			if list, ok := err.(*rsErrors.ErrorList); ok {
				all.Merge(list)
			}
		}
	}
	return all
}

// Validate returns the problems that make sets unloadable. Warnings count
// only in strict mode.
func (v *Validator) Validate(sets ...*rule.Set) error {
	return Failures(v.Check(sets...), v.strict).ToError()
}

// Failures filters list to the entries that fail validation.
func Failures(list *rsErrors.ErrorList, strict bool) *rsErrors.ErrorList {
	out := rsErrors.NewErrorList()
	for _, e := range list.Errors {
		if e.Type != rsErrors.ErrorTypeWarning || strict {
			out.Add(e)
		}
	}
	return out
}

// Warnings filters list to its warnings.
func Warnings(list *rsErrors.ErrorList) []*rsErrors.Error {
	return list.ByType(rsErrors.ErrorTypeWarning)
}
