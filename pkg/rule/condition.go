package rule

import (
	"fmt"
	"slices"
	"strings"

	"mercator-hq/fre/pkg/expr"
	"mercator-hq/fre/pkg/fact"
)

// ConditionType is the kind of a condition tree node.
type ConditionType string

const (
	ConditionExpr      ConditionType = "expr"       // infix expression
	ConditionCompare   ConditionType = "compare"    // fact op value
	ConditionAll       ConditionType = "all"        // AND of children
	ConditionAny       ConditionType = "any"        // OR of children
	ConditionNot       ConditionType = "not"        // NOT of one child
	ConditionExists    ConditionType = "exists"     // fact resolves
	ConditionNotExists ConditionType = "not_exists" // fact does not resolve
	ConditionIsTrue    ConditionType = "is_true"    // fact is Bool(true)
	ConditionIsFalse   ConditionType = "is_false"   // fact is Bool(false)
	ConditionAlways    ConditionType = "always"
)

// Condition is a node in a rule's condition tree.
type Condition struct {
	Type     ConditionType
	Expr     *expr.Expr   // ConditionExpr
	Fact     string       // compare, exists, not_exists, is_true, is_false
	Op       expr.Op      // ConditionCompare
	Value    *expr.Expr   // ConditionCompare right-hand side
	Children []*Condition // all, any, not
	Location Location
}

// Always returns a condition that is always true.
func Always() *Condition {
	return &Condition{Type: ConditionAlways}
}

// When wraps a parsed expression.
func When(e *expr.Expr) *Condition {
	return &Condition{Type: ConditionExpr, Expr: e}
}

// Compare returns a fact-op-value comparison.
func Compare(key string, op expr.Op, v fact.Value) *Condition {
	return &Condition{Type: ConditionCompare, Fact: key, Op: op, Value: expr.LiteralExpr(v)}
}

// All returns the conjunction of children.
func All(children ...*Condition) *Condition {
	return &Condition{Type: ConditionAll, Children: children}
}

// Any returns the disjunction of children.
func Any(children ...*Condition) *Condition {
	return &Condition{Type: ConditionAny, Children: children}
}

// Not negates child.
func Not(child *Condition) *Condition {
	return &Condition{Type: ConditionNot, Children: []*Condition{child}}
}

// Evaluate reports whether the condition holds. A nil condition holds.
// all and any short-circuit left to right.
func (c *Condition) Evaluate(r fact.Reader) (bool, error) {
	if c == nil {
		return true, nil
	}
	switch c.Type {
	case ConditionAlways:
		return true, nil
	case ConditionExpr:
		return c.Expr.EvalBool(r)
	case ConditionCompare:
		left, ok := r.Get(c.Fact)
		if !ok {
			return false, &fact.UnknownFactError{Key: c.Fact}
		}
		right, err := c.Value.Eval(r)
		if err != nil {
			return false, err
		}
		return expr.Compare(c.Op, left, right)
	case ConditionExists:
		_, ok := r.Get(c.Fact)
		return ok, nil
	case ConditionNotExists:
		_, ok := r.Get(c.Fact)
		return !ok, nil
	case ConditionIsTrue, ConditionIsFalse:
		v, ok := r.Get(c.Fact)
		if !ok {
			return false, nil
		}
		b, ok := v.AsBool()
		if !ok {
			return false, fact.Mismatch(string(c.Type), v)
		}
		return b == (c.Type == ConditionIsTrue), nil
	case ConditionAll:
		for _, child := range c.Children {
			ok, err := child.Evaluate(r)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case ConditionAny:
		for _, child := range c.Children {
			ok, err := child.Evaluate(r)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case ConditionNot:
		if len(c.Children) != 1 {
			return false, fmt.Errorf("not condition requires exactly one child, got %d", len(c.Children))
		}
		ok, err := c.Children[0].Evaluate(r)
		return !ok, err
	}
	return false, fmt.Errorf("unknown condition type %q", c.Type)
}

// References returns the sorted fact keys the condition reads.
func (c *Condition) References() []string {
	var keys []string
	c.walk(func(n *Condition) {
		if n.Fact != "" {
			keys = append(keys, n.Fact)
		}
		if n.Expr != nil {
			keys = append(keys, n.Expr.References()...)
		}
		if n.Value != nil {
			keys = append(keys, n.Value.References()...)
		}
	})
	slices.Sort(keys)
	return slices.Compact(keys)
}

func (c *Condition) walk(fn func(*Condition)) {
	if c == nil {
		return
	}
	fn(c)
	for _, child := range c.Children {
		child.walk(fn)
	}
}

// String renders the condition in infix form for logs and lint output.
func (c *Condition) String() string {
	if c == nil {
		return "always"
	}
	switch c.Type {
	case ConditionExpr:
		return c.Expr.String()
	case ConditionCompare:
		return fmt.Sprintf("%s %s %s", c.Fact, c.Op, c.Value)
	case ConditionExists:
		return "exists(" + c.Fact + ")"
	case ConditionNotExists:
		return "not_exists(" + c.Fact + ")"
	case ConditionIsTrue:
		return c.Fact + " == true"
	case ConditionIsFalse:
		return c.Fact + " == false"
	case ConditionAll, ConditionAny:
		parts := make([]string, len(c.Children))
		for i, child := range c.Children {
			parts[i] = child.String()
		}
		sep := " and "
		if c.Type == ConditionAny {
			sep = " or "
		}
		return "(" + strings.Join(parts, sep) + ")"
	case ConditionNot:
		if len(c.Children) == 1 {
			return "not " + c.Children[0].String()
		}
	}
	return string(c.Type)
}
