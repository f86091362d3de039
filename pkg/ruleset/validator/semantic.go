package validator

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"mercator-hq/fre/pkg/expr"
	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
	rsErrors "mercator-hq/fre/pkg/ruleset/errors"
)

// EventFactPrefix marks facts supplied by the triggering event's payload.
const EventFactPrefix = "event."

// SemanticValidator checks meaning across all loaded sets: id conflicts,
// constant expressions that can never evaluate, fact references nothing
// provides, output cycles and scenario references.
type SemanticValidator struct {
	policy       rule.DuplicatePolicy
	knownActions []string

	sets     []*rule.Set
	declared map[string]fact.Value // initial facts across sets
	written  map[string]bool       // keys some modification writes
	errors   *rsErrors.ErrorList
}

// NewSemanticValidator creates a semantic validator.
func NewSemanticValidator() *SemanticValidator {
	return &SemanticValidator{
		policy: rule.DuplicateError,
		errors: rsErrors.NewErrorList(),
	}
}

// Validate checks sets together.
func (v *SemanticValidator) Validate(sets ...*rule.Set) error {
	v.sets = sets
	v.errors = rsErrors.NewErrorList()
	v.declared = make(map[string]fact.Value)
	v.written = make(map[string]bool)

	for _, s := range sets {
		for k, val := range s.Facts {
			if prev, ok := v.declared[k]; ok && !prev.Equal(val) {
				v.errors.AddError(rsErrors.ErrorTypeSemantic,
					fmt.Sprintf("Fact %q is declared as %s and %s in different sets", k, prev, val), s.Location)
				continue
			}
			v.declared[k] = val
		}
		for _, r := range s.Rules {
			for _, m := range r.Modifications {
				v.written[m.Key] = true
			}
		}
	}

	v.validateIDs()
	for _, s := range sets {
		for _, r := range s.Rules {
			v.validateRule(r)
		}
	}
	v.validateOutputCycles()
	for _, s := range sets {
		for _, sc := range s.Tests {
			v.validateScenario(sc)
		}
	}
	return v.errors.ToError()
}

func (v *SemanticValidator) addf(t rsErrors.ErrorType, at rule.Location, format string, args ...any) {
	v.errors.AddError(t, fmt.Sprintf(format, args...), at)
}

// validateIDs reports ids that registration would reject.
func (v *SemanticValidator) validateIDs() {
	type owner struct {
		set *rule.Set
		r   *rule.Rule
	}
	seen := make(map[rule.Scope]map[string]owner)
	for _, s := range v.sets {
		policy := v.policy
		if s.Duplicates != "" {
			policy = s.Duplicates
		}
		scope := s.EffectiveScope()
		if seen[scope] == nil {
			seen[scope] = make(map[string]owner)
		}

		ids := make([]string, len(s.Rules))
		counts := make(map[string]int)
		for i, r := range s.Rules {
			ids[i] = r.ID
			counts[r.ID]++
		}
		next := make(map[string]int)
		reported := make(map[string]bool)
		for i, r := range s.Rules {
			if counts[r.ID] > 1 {
				if policy != rule.DuplicateSuffix {
					if !reported[r.ID] {
						v.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeSemantic,
							fmt.Sprintf("Rule id %q is used %d times in scope %q", r.ID, counts[r.ID], scope),
							r.Location, "Rename the rules or set 'duplicate_ids: suffix'")
						reported[r.ID] = true
					}
					continue
				}
				ids[i] = fmt.Sprintf("%s-%d", r.ID, next[r.ID])
				next[r.ID]++
			}
		}
		for i, r := range s.Rules {
			if prev, ok := seen[scope][ids[i]]; ok && prev.set != s {
				v.addf(rsErrors.ErrorTypeSemantic, r.Location,
					"Rule id %q in scope %q is already defined at %s", ids[i], scope, prev.r.Location)
				continue
			}
			seen[scope][ids[i]] = owner{set: s, r: r}
		}
	}
}

func (v *SemanticValidator) validateRule(r *rule.Rule) {
	v.validateCondition(r)
	for _, m := range r.Modifications {
		v.validateModification(r, m)
	}
	for _, a := range r.Actions {
		v.validateAction(r, a)
	}
	for _, key := range r.Condition.References() {
		v.checkReference(r, key, r.Location)
	}
	for _, m := range r.Modifications {
		for _, e := range []*expr.Expr{m.Value, m.Min, m.Max} {
			if e == nil {
				continue
			}
			for _, key := range e.References() {
				v.checkReference(r, key, m.Location)
			}
		}
	}
}

func (v *SemanticValidator) validateCondition(r *rule.Rule) {
	var walk func(c *rule.Condition)
	walk = func(c *rule.Condition) {
		if c == nil {
			return
		}
		switch c.Type {
		case rule.ConditionExpr:
			if v.checkConstant(r, c.Expr, c.Location) && len(c.Expr.References()) == 0 {
				if _, err := c.Expr.EvalBool(fact.MapReader{}); err != nil {
					v.addf(rsErrors.ErrorTypeSemantic, c.Location,
						"Rule %q: condition %q is not boolean: %v", r.ID, c.Expr, err)
				}
			}
		case rule.ConditionCompare:
			if !v.checkConstant(r, c.Value, c.Location) {
				return
			}
			if cur, ok := v.declared[c.Fact]; ok && len(c.Value.References()) == 0 {
				lit, _ := c.Value.Eval(fact.MapReader{})
				if _, err := expr.Compare(c.Op, cur, lit); err != nil {
					v.addf(rsErrors.ErrorTypeWarning, c.Location,
						"Rule %q: comparing %s fact %q with %s fails: %v", r.ID, cur.Kind(), c.Fact, lit.Kind(), err)
				}
			}
		case rule.ConditionIsTrue, rule.ConditionIsFalse:
			if cur, ok := v.declared[c.Fact]; ok && cur.Kind() != fact.KindBool {
				v.addf(rsErrors.ErrorTypeWarning, c.Location,
					"Rule %q: %s on %s fact %q", r.ID, c.Type, cur.Kind(), c.Fact)
			}
		}
		for _, child := range c.Children {
			walk(child)
		}
	}
	walk(r.Condition)

	// Evaluate against the declared facts when everything referenced is declared.
	refs := r.Condition.References()
	for _, k := range refs {
		if _, ok := v.declared[k]; !ok {
			return
		}
	}
	if len(refs) == 0 {
		return
	}
	if _, err := r.Condition.Evaluate(fact.MapReader(v.declared)); err != nil &&
		(errors.Is(err, fact.ErrTypeMismatch) || errors.Is(err, fact.ErrDivisionByZero)) {
		v.addf(rsErrors.ErrorTypeWarning, r.Location,
			"Rule %q: condition fails with the initial facts: %v", r.ID, err)
	}
}

// checkConstant evaluates the constant subtrees of e and reports the first
// one that can never succeed. It reports whether e passed.
func (v *SemanticValidator) checkConstant(r *rule.Rule, e *expr.Expr, at rule.Location) bool {
	if e == nil {
		return true
	}
	var check func(n expr.Node) error
	check = func(n expr.Node) error {
		if len(expr.References(n)) == 0 {
			_, err := expr.Eval(n, fact.MapReader{})
			return err
		}
		switch t := n.(type) {
		case *expr.UnaryOp:
			return check(t.Operand)
		case *expr.BinaryOp:
			if err := check(t.Left); err != nil {
				return err
			}
			return check(t.Right)
		}
		return nil
	}
	if err := check(e.Root); err != nil {
		v.addf(rsErrors.ErrorTypeSemantic, at, "Rule %q: expression %q can never evaluate: %v", r.ID, e, err)
		return false
	}
	return true
}

// constant returns the value of e when it reads no facts.
func constant(e *expr.Expr) (fact.Value, bool) {
	if e == nil || len(e.References()) > 0 {
		return fact.Value{}, false
	}
	val, err := e.Eval(fact.MapReader{})
	return val, err == nil
}

func (v *SemanticValidator) validateModification(r *rule.Rule, m *rule.Modification) {
	at := m.Location
	if !at.IsValid() {
		at = r.Location
	}
	for _, e := range []*expr.Expr{m.Value, m.Min, m.Max} {
		if !v.checkConstant(r, e, at) {
			return
		}
	}

	val, isConst := constant(m.Value)
	switch m.Kind {
	case rule.ModIncrement, rule.ModDecrement, rule.ModSubtract, rule.ModMultiply, rule.ModDivide, rule.ModModulo:
		if isConst && !val.IsNumeric() {
			v.addf(rsErrors.ErrorTypeSemantic, at, "Rule %q: %s %q by non-numeric %s", r.ID, m.Kind, m.Key, val.Kind())
			return
		}
		if (m.Kind == rule.ModDivide || m.Kind == rule.ModModulo) && isConst {
			if n, _ := val.Number(); n == 0 {
				v.addf(rsErrors.ErrorTypeSemantic, at, "Rule %q: %s %q by zero", r.ID, m.Kind, m.Key)
				return
			}
		}
	case rule.ModAdd:
		if isConst && !val.IsNumeric() && val.Kind() != fact.KindString {
			v.addf(rsErrors.ErrorTypeSemantic, at, "Rule %q: add %s to %q", r.ID, val.Kind(), m.Key)
			return
		}
	case rule.ModClamp, rule.ModWrap:
		lo, okLo := constant(m.Min)
		hi, okHi := constant(m.Max)
		if okLo && okHi {
			a, numLo := lo.Number()
			b, numHi := hi.Number()
			switch {
			case !numLo || !numHi:
				v.addf(rsErrors.ErrorTypeSemantic, at, "Rule %q: %s %q bounds must be numeric", r.ID, m.Kind, m.Key)
				return
			case a > b:
				v.addf(rsErrors.ErrorTypeSemantic, at, "Rule %q: %s %q has min %s greater than max %s", r.ID, m.Kind, m.Key, lo, hi)
				return
			case m.Kind == rule.ModWrap && a == b:
				v.addf(rsErrors.ErrorTypeSemantic, at, "Rule %q: wrap %q has an empty range", r.ID, m.Key)
				return
			}
		}
	case rule.ModToggle:
		if cur, ok := v.declared[m.Key]; ok && cur.Kind() != fact.KindBool {
			v.addf(rsErrors.ErrorTypeWarning, at, "Rule %q: toggle on %s fact %q", r.ID, cur.Kind(), m.Key)
		}
		return
	}

	// The declared value shows which operand kinds the fact expects.
	if cur, ok := v.declared[m.Key]; ok && isConst && m.Value != nil {
		op, arith := arithOps[m.Kind]
		if arith {
			if _, err := expr.Binary(op, cur, val); err != nil {
				v.addf(rsErrors.ErrorTypeWarning, at,
					"Rule %q: %s %q (%s) with %s fails: %v", r.ID, m.Kind, m.Key, cur.Kind(), val.Kind(), err)
			}
		}
	}
}

var arithOps = map[rule.ModKind]expr.Op{
	rule.ModIncrement: expr.OpAdd,
	rule.ModDecrement: expr.OpSub,
	rule.ModAdd:       expr.OpAdd,
	rule.ModSubtract:  expr.OpSub,
	rule.ModMultiply:  expr.OpMul,
	rule.ModDivide:    expr.OpDiv,
	rule.ModModulo:    expr.OpMod,
}

// checkReference warns about facts that are never declared, written or
// supplied by an event payload. exists/not_exists probes are exempt.
func (v *SemanticValidator) checkReference(r *rule.Rule, key string, at rule.Location) {
	if strings.HasPrefix(key, EventFactPrefix) {
		return
	}
	if _, ok := v.declared[key]; ok || v.written[key] {
		return
	}
	if probesOnly(r.Condition, key) {
		return
	}
	known := make([]string, 0, len(v.declared)+len(v.written))
	for k := range v.declared {
		known = append(known, k)
	}
	for k := range v.written {
		known = append(known, k)
	}
	v.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeWarning,
		fmt.Sprintf("Rule %q reads fact %q, which is never declared or written", r.ID, key),
		at, rsErrors.SuggestName(key, known, "fact"))
}

// probesOnly reports whether every use of key in c is an existence test.
func probesOnly(c *rule.Condition, key string) bool {
	if c == nil {
		return false
	}
	probe, other := false, false
	var walk func(c *rule.Condition)
	walk = func(c *rule.Condition) {
		switch {
		case (c.Type == rule.ConditionExists || c.Type == rule.ConditionNotExists) && c.Fact == key:
			probe = true
		case c.Type == rule.ConditionIsTrue && c.Fact == key:
			// is_true on a missing fact is false, which is a valid probe too.
			probe = true
		case c.Fact == key:
			other = true
		case c.Expr != nil && slices.Contains(c.Expr.References(), key):
			other = true
		case c.Value != nil && slices.Contains(c.Value.References(), key):
			other = true
		}
		for _, child := range c.Children {
			walk(child)
		}
	}
	walk(c)
	return probe && !other
}

func (v *SemanticValidator) validateAction(r *rule.Rule, action string) {
	if len(v.knownActions) == 0 {
		return
	}
	if slices.Contains(v.knownActions, action) {
		return
	}
	if prefix, _, ok := strings.Cut(action, ":"); ok && slices.Contains(v.knownActions, prefix) {
		return
	}
	v.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeWarning,
		fmt.Sprintf("Rule %q dispatches unregistered action %q", r.ID, action),
		r.Location, rsErrors.SuggestName(action, v.knownActions, "action"))
}

// validateOutputCycles warns when output events can re-trigger themselves.
// Such cycles end only when a condition turns false or the cascade limit
// is hit.
func (v *SemanticValidator) validateOutputCycles() {
	graph := make(map[string][]string)
	first := make(map[string]*rule.Rule)
	for _, s := range v.sets {
		for _, r := range s.Rules {
			for _, out := range r.Outputs {
				if !slices.Contains(graph[r.Event], out) {
					graph[r.Event] = append(graph[r.Event], out)
				}
			}
			if first[r.Event] == nil {
				first[r.Event] = r
			}
		}
	}

	events := make([]string, 0, len(graph))
	for e := range graph {
		events = append(events, e)
	}
	slices.Sort(events)

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int)
	var path []string
	var visit func(e string)
	visit = func(e string) {
		state[e] = inProgress
		path = append(path, e)
		for _, next := range graph[e] {
			switch state[next] {
			case inProgress:
				i := slices.Index(path, next)
				cycle := append(slices.Clone(path[i:]), next)
				v.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeWarning,
					fmt.Sprintf("Output cycle %s", strings.Join(cycle, " -> ")),
					first[next].Location,
					"Guard the cycle with a condition or rely on the cascade depth limit")
			case unvisited:
				visit(next)
			}
		}
		path = path[:len(path)-1]
		state[e] = done
	}
	for _, e := range events {
		if state[e] == unvisited {
			visit(e)
		}
	}
}

func (v *SemanticValidator) validateScenario(sc *rule.Scenario) {
	handled := make(map[string]bool)
	ids := make(map[string]bool)
	scopes := make(map[rule.Scope]bool)
	for _, s := range v.sets {
		scopes[s.EffectiveScope()] = true
		for _, r := range s.Rules {
			handled[r.Event] = true
			ids[r.ID] = true
		}
	}

	for i, step := range sc.Steps {
		for _, e := range step.Emit {
			if !handled[e.Name] {
				v.addf(rsErrors.ErrorTypeWarning, sc.Location,
					"Test %q step %d emits %q, which no rule handles", sc.Name, i, e.Name)
			}
		}
		for _, s := range step.Enter {
			if !scopes[s] {
				v.addf(rsErrors.ErrorTypeWarning, sc.Location,
					"Test %q step %d enters context %q, which has no rules", sc.Name, i, s)
			}
		}
		if step.Expect == nil {
			continue
		}
		for _, id := range step.Expect.Fired {
			if !ids[id] {
				v.addf(rsErrors.ErrorTypeWarning, sc.Location,
					"Test %q step %d expects unknown rule %q to fire", sc.Name, i, id)
			}
		}
	}
}
