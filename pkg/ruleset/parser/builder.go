package parser

import (
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"mercator-hq/fre/pkg/expr"
	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
	rsErrors "mercator-hq/fre/pkg/ruleset/errors"
)

// builder converts the intermediate YAML structures into rule types,
// parsing every expression and collecting all problems with locations.
type builder struct {
	sourcePath string
	maxDepth   int
	errors     *rsErrors.ErrorList
}

func newBuilder(sourcePath string, maxDepth int) *builder {
	return &builder{
		sourcePath: sourcePath,
		maxDepth:   maxDepth,
		errors:     rsErrors.NewErrorList(),
	}
}

func (b *builder) loc(line, column int) rule.Location {
	return rule.Location{File: b.sourcePath, Line: line, Column: column}
}

func (b *builder) nodeLoc(n *yaml.Node) rule.Location {
	return b.loc(n.Line, n.Column)
}

func (b *builder) addf(t rsErrors.ErrorType, at rule.Location, format string, args ...any) {
	b.errors.AddError(t, fmt.Sprintf(format, args...), at)
}

// checkKeys reports keys not in known, with a spelling suggestion.
func (b *builder) checkKeys(p position, known []string, what string) {
	for _, k := range p.keys {
		if !slices.Contains(known, k.name) {
			b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
				fmt.Sprintf("Unknown %s field %q", what, k.name),
				b.loc(k.line, k.column),
				rsErrors.SuggestName(k.name, known, "field"))
		}
	}
}

func (b *builder) buildSet(ys *yamlRuleSet) (*rule.Set, error) {
	set := &rule.Set{
		Name:        ys.Name,
		Version:     ys.Version,
		Description: ys.Description,
		Scope:       rule.Scope(ys.Scope),
		Duplicates:  rule.DuplicatePolicy(ys.Duplicates),
		SourceFile:  b.sourcePath,
		Location:    b.loc(max(ys.pos.line, 1), max(ys.pos.column, 1)),
	}
	b.checkKeys(ys.pos, ruleSetFields, "rule set")

	if set.Duplicates != "" && !set.Duplicates.IsValid() {
		b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Invalid duplicate_ids policy %q", ys.Duplicates),
			set.Location, "Use 'error' or 'suffix'")
	}

	set.Facts = b.buildFacts(&ys.Facts, "facts")

	set.Rules = make([]*rule.Rule, 0, len(ys.Rules))
	for i := range ys.Rules {
		if r := b.buildRule(&ys.Rules[i], i); r != nil {
			set.Rules = append(set.Rules, r)
		}
	}

	set.Tests = make([]*rule.Scenario, 0, len(ys.Tests))
	for i := range ys.Tests {
		if sc := b.buildTest(&ys.Tests[i], i); sc != nil {
			set.Tests = append(set.Tests, sc)
		}
	}

	if b.errors.HasErrors() {
		return nil, b.errors
	}
	return set, nil
}

// buildFacts converts a mapping of key to literal into fact values.
func (b *builder) buildFacts(n *yaml.Node, what string) map[string]fact.Value {
	out := make(map[string]fact.Value)
	if n.Kind == 0 {
		return out
	}
	if n.Kind != yaml.MappingNode {
		b.addf(rsErrors.ErrorTypeStructural, b.nodeLoc(n), "%s must be a mapping of fact name to value", what)
		return out
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		val, err := valueFromNode(v)
		if err != nil {
			b.addf(rsErrors.ErrorTypeStructural, b.nodeLoc(v), "Invalid value for fact %q: %v", k.Value, err)
			continue
		}
		out[k.Value] = val
	}
	return out
}

// valueFromNode converts a literal node. A mapping {type: float, value: 1}
// forces the variant; anything else is converted by fact.FromAny.
func valueFromNode(n *yaml.Node) (fact.Value, error) {
	if n.Kind == yaml.MappingNode {
		var typed struct {
			Type  string `yaml:"type"`
			Value any    `yaml:"value"`
		}
		if err := n.Decode(&typed); err != nil {
			return fact.Value{}, err
		}
		return typedValue(typed.Type, typed.Value)
	}
	var raw any
	if err := n.Decode(&raw); err != nil {
		return fact.Value{}, err
	}
	return fact.FromAny(raw)
}

func typedValue(kind string, raw any) (fact.Value, error) {
	k, ok := fact.ParseKind(kind)
	if !ok {
		return fact.Value{}, fmt.Errorf("unknown type %q", kind)
	}
	if k == fact.KindFloat {
		if n, ok := raw.(int); ok {
			return fact.Float(float64(n)), nil
		}
	}
	if raw == nil {
		switch k {
		case fact.KindIntList:
			return fact.IntList(), nil
		case fact.KindStringList:
			return fact.StringList(), nil
		}
	}
	if items, ok := raw.([]any); ok && len(items) == 0 && k == fact.KindIntList {
		return fact.IntList(), nil
	}
	v, err := fact.FromAny(raw)
	if err != nil {
		return fact.Value{}, err
	}
	if v.Kind() != k {
		return fact.Value{}, fmt.Errorf("value %v is %s, not %s", raw, v.Kind(), k)
	}
	return v, nil
}

func (b *builder) buildRule(yr *yamlRule, index int) *rule.Rule {
	at := b.loc(yr.pos.line, yr.pos.column)
	b.checkKeys(yr.pos, ruleFields, "rule")

	r := &rule.Rule{
		ID:           yr.ID,
		Description:  yr.Description,
		Event:        yr.Event,
		Actions:      yr.Actions,
		Outputs:      yr.Outputs,
		ConsumeEvent: yr.ConsumeEvent,
		EmitOnChange: yr.EmitOnChange,
		Priority:     yr.Priority,
		Enabled:      yr.Enabled == nil || *yr.Enabled,
		Location:     at,
	}
	if r.Event == "" {
		b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Rule at index %d has no event", index), at,
			rsErrors.SuggestMissingField("event", "hit"))
		return nil
	}
	if r.ID == "" {
		r.ID = rule.GenerateID(r.Event, index)
	}

	if yr.Condition.Kind != 0 {
		r.Condition = b.buildCondition(&yr.Condition, 1)
	}
	for i := range yr.Modifications {
		if m := b.buildModification(&yr.Modifications[i]); m != nil {
			r.Modifications = append(r.Modifications, m)
		}
	}
	for i, a := range r.Actions {
		if a == "" {
			b.addf(rsErrors.ErrorTypeStructural, at, "Rule %q: action %d is empty", r.ID, i)
		}
	}
	for i, o := range r.Outputs {
		if o == "" {
			b.addf(rsErrors.ErrorTypeStructural, at, "Rule %q: output %d is empty", r.ID, i)
		}
	}
	return r
}

func (b *builder) parseExpr(src string, at rule.Location) *expr.Expr {
	e, err := expr.Parse(src)
	if err != nil {
		var syn *expr.SyntaxError
		if errors.As(err, &syn) {
			b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeSyntax,
				fmt.Sprintf("Invalid expression: %s", syn.Msg), at,
				fmt.Sprintf("Check %q near offset %d", syn.Input, syn.Pos))
		} else {
			b.addf(rsErrors.ErrorTypeSyntax, at, "Invalid expression %q: %v", src, err)
		}
		return nil
	}
	return e
}

var conditionKeys = []string{"all", "any", "not", "expr", "exists", "not_exists", "is_true", "is_false", "always", "fact", "op", "value"}

// buildCondition converts a condition node. A scalar string is an infix
// expression, a sequence is an implicit "all", and a mapping selects one of
// the structured forms.
func (b *builder) buildCondition(n *yaml.Node, depth int) *rule.Condition {
	at := b.nodeLoc(n)
	if depth > b.maxDepth {
		b.addf(rsErrors.ErrorTypeStructural, at, "Condition nesting exceeds maximum depth %d", b.maxDepth)
		return nil
	}

	switch n.Kind {
	case yaml.ScalarNode:
		if n.Value == "always" {
			return &rule.Condition{Type: rule.ConditionAlways, Location: at}
		}
		if n.Tag == "!!bool" {
			if n.Value == "true" {
				return &rule.Condition{Type: rule.ConditionAlways, Location: at}
			}
			return &rule.Condition{Type: rule.ConditionNot, Children: []*rule.Condition{rule.Always()}, Location: at}
		}
		e := b.parseExpr(n.Value, at)
		if e == nil {
			return nil
		}
		return &rule.Condition{Type: rule.ConditionExpr, Expr: e, Location: at}

	case yaml.SequenceNode:
		return b.buildChildren(rule.ConditionAll, n, depth, at)

	case yaml.MappingNode:
		return b.buildConditionMap(n, depth, at)
	}
	b.addf(rsErrors.ErrorTypeStructural, at, "Invalid condition")
	return nil
}

func (b *builder) buildChildren(t rule.ConditionType, n *yaml.Node, depth int, at rule.Location) *rule.Condition {
	if n.Kind != yaml.SequenceNode {
		b.addf(rsErrors.ErrorTypeStructural, at, "%q requires a list of conditions", t)
		return nil
	}
	c := &rule.Condition{Type: t, Location: at}
	for _, child := range n.Content {
		if cc := b.buildCondition(child, depth+1); cc != nil {
			c.Children = append(c.Children, cc)
		}
	}
	return c
}

func (b *builder) buildConditionMap(n *yaml.Node, depth int, at rule.Location) *rule.Condition {
	fields := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if !slices.Contains(conditionKeys, k.Value) {
			b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
				fmt.Sprintf("Unknown condition key %q", k.Value), b.nodeLoc(k),
				rsErrors.SuggestName(k.Value, conditionKeys, "condition key"))
			continue
		}
		fields[k.Value] = n.Content[i+1]
	}

	if v, ok := fields["all"]; ok {
		return b.buildChildren(rule.ConditionAll, v, depth, at)
	}
	if v, ok := fields["any"]; ok {
		return b.buildChildren(rule.ConditionAny, v, depth, at)
	}
	if v, ok := fields["not"]; ok {
		child := b.buildCondition(v, depth+1)
		if child == nil {
			return nil
		}
		return &rule.Condition{Type: rule.ConditionNot, Children: []*rule.Condition{child}, Location: at}
	}
	if v, ok := fields["expr"]; ok {
		e := b.parseExpr(v.Value, b.nodeLoc(v))
		if e == nil {
			return nil
		}
		return &rule.Condition{Type: rule.ConditionExpr, Expr: e, Location: at}
	}
	if v, ok := fields["always"]; ok {
		if v.Value == "false" {
			return rule.Not(rule.Always())
		}
		return &rule.Condition{Type: rule.ConditionAlways, Location: at}
	}
	for _, t := range []rule.ConditionType{rule.ConditionExists, rule.ConditionNotExists, rule.ConditionIsTrue, rule.ConditionIsFalse} {
		if v, ok := fields[string(t)]; ok {
			if v.Kind != yaml.ScalarNode || v.Value == "" {
				b.addf(rsErrors.ErrorTypeStructural, b.nodeLoc(v), "%q requires a fact name", t)
				return nil
			}
			return &rule.Condition{Type: t, Fact: v.Value, Location: at}
		}
	}
	return b.buildCompare(fields, at)
}

var compareOps = map[string]expr.Op{
	"==": expr.OpEq, "eq": expr.OpEq,
	"!=": expr.OpNe, "ne": expr.OpNe,
	"<": expr.OpLt, "lt": expr.OpLt,
	"<=": expr.OpLe, "le": expr.OpLe,
	">": expr.OpGt, "gt": expr.OpGt,
	">=": expr.OpGe, "ge": expr.OpGe,
}

func (b *builder) buildCompare(fields map[string]*yaml.Node, at rule.Location) *rule.Condition {
	factNode, opNode, valueNode := fields["fact"], fields["op"], fields["value"]
	if factNode == nil || opNode == nil || valueNode == nil {
		b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			"Comparison condition requires 'fact', 'op' and 'value'", at,
			"Use {fact: player_health, op: '<=', value: 0} or an expression string")
		return nil
	}
	op, ok := compareOps[opNode.Value]
	if !ok {
		valid := make([]string, 0, len(compareOps))
		for k := range compareOps {
			valid = append(valid, k)
		}
		b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Unknown comparison operator %q", opNode.Value), b.nodeLoc(opNode),
			rsErrors.SuggestName(opNode.Value, valid, "operator"))
		return nil
	}
	v, err := valueFromNode(valueNode)
	if err != nil {
		b.addf(rsErrors.ErrorTypeStructural, b.nodeLoc(valueNode), "Invalid comparison value: %v", err)
		return nil
	}
	return &rule.Condition{
		Type:     rule.ConditionCompare,
		Fact:     factNode.Value,
		Op:       op,
		Value:    expr.LiteralExpr(v),
		Location: at,
	}
}

func (b *builder) buildModification(ym *yamlModification) *rule.Modification {
	at := b.loc(ym.pos.line, ym.pos.column)
	b.checkKeys(ym.pos, modificationFields, "modification")

	kind := rule.ModKind(ym.Op)
	if !kind.IsValid() {
		b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Unknown modification op %q", ym.Op), at,
			rsErrors.SuggestName(ym.Op, rule.ModKinds(), "op"))
		return nil
	}
	if ym.Key == "" {
		b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Modification %q has no key", ym.Op), at,
			rsErrors.SuggestMissingField("key", "player_health"))
		return nil
	}
	layer, ok := fact.ParseLayer(ym.Layer)
	if !ok {
		b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Invalid layer %q", ym.Layer), at, "Use 'local' or 'global'")
		return nil
	}

	m := &rule.Modification{Kind: kind, Key: ym.Key, Layer: layer, Location: at}

	hasValue := ym.Value.Kind != 0
	switch {
	case hasValue && ym.Expr != "":
		b.addf(rsErrors.ErrorTypeStructural, at, "Modification %s %q sets both 'value' and 'expr'", kind, ym.Key)
		return nil
	case hasValue:
		v, err := valueFromNode(&ym.Value)
		if err != nil {
			b.addf(rsErrors.ErrorTypeStructural, b.nodeLoc(&ym.Value), "Invalid value: %v", err)
			return nil
		}
		m.Value = expr.LiteralExpr(v)
	case ym.Expr != "":
		if m.Value = b.parseExpr(ym.Expr, at); m.Value == nil {
			return nil
		}
	case kind.NeedsValue():
		b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
			fmt.Sprintf("Modification %s %q requires 'value' or 'expr'", kind, ym.Key), at,
			rsErrors.SuggestMissingField("value", "1"))
		return nil
	}

	if kind.NeedsBounds() {
		if ym.Min.Kind == 0 || ym.Max.Kind == 0 {
			b.errors.AddErrorWithSuggestion(rsErrors.ErrorTypeStructural,
				fmt.Sprintf("Modification %s %q requires 'min' and 'max'", kind, ym.Key), at,
				"Add 'min: 0' and 'max: 100'")
			return nil
		}
		m.Min = b.boundExpr(&ym.Min)
		m.Max = b.boundExpr(&ym.Max)
		if m.Min == nil || m.Max == nil {
			return nil
		}
	}
	return m
}

// boundExpr treats numeric scalars as literals and strings as expressions.
func (b *builder) boundExpr(n *yaml.Node) *expr.Expr {
	if n.Kind == yaml.ScalarNode && (n.Tag == "!!int" || n.Tag == "!!float") {
		v, err := valueFromNode(n)
		if err != nil {
			b.addf(rsErrors.ErrorTypeStructural, b.nodeLoc(n), "Invalid bound: %v", err)
			return nil
		}
		return expr.LiteralExpr(v)
	}
	return b.parseExpr(n.Value, b.nodeLoc(n))
}

func (b *builder) buildTest(yt *yamlTest, index int) *rule.Scenario {
	at := b.loc(yt.pos.line, yt.pos.column)
	b.checkKeys(yt.pos, testFields, "test")

	sc := &rule.Scenario{
		Name:        yt.Name,
		Description: yt.Description,
		Facts:       b.buildFacts(&yt.Facts, "test facts"),
		Location:    at,
	}
	if sc.Name == "" {
		sc.Name = fmt.Sprintf("test_%03d", index)
	}
	if len(yt.Steps) == 0 {
		b.addf(rsErrors.ErrorTypeStructural, at, "Test %q has no steps", sc.Name)
		return nil
	}
	for i := range yt.Steps {
		ys := &yt.Steps[i]
		b.checkKeys(ys.pos, stepFields, "test step")
		step := &rule.Step{Repeat: ys.Repeat}
		if step.Repeat == 0 {
			step.Repeat = 1
		}
		if step.Repeat < 0 {
			b.addf(rsErrors.ErrorTypeStructural, b.loc(ys.pos.line, ys.pos.column), "Test %q step %d: repeat must be positive", sc.Name, i)
		}
		for _, s := range ys.Enter {
			step.Enter = append(step.Enter, rule.Scope(s))
		}
		for _, s := range ys.Exit {
			step.Exit = append(step.Exit, rule.Scope(s))
		}
		for _, e := range ys.Emit {
			step.Emit = append(step.Emit, rule.EventSpec{Name: e.Event, Payload: e.Payload})
		}
		if ys.Expect != nil {
			step.Expect = b.buildExpect(ys.Expect)
		}
		sc.Steps = append(sc.Steps, step)
	}
	return sc
}

func (b *builder) buildExpect(ye *yamlExpect) *rule.Expectation {
	ex := &rule.Expectation{
		Absent:     ye.Absent,
		NotActions: ye.NotActions,
		Fired:      ye.Fired,
		Overflow:   ye.Overflow,
	}
	if ye.Facts.Kind != 0 {
		ex.Facts = b.buildFacts(&ye.Facts, "expected facts")
	}
	if ye.Actions != nil {
		ex.Actions = append([]string{}, (*ye.Actions)...)
	}
	return ex
}
