package expr

import (
	"fmt"
	"math"
	"strings"

	"mercator-hq/fre/pkg/fact"
)

// Eval evaluates the expression against r.
func (e *Expr) Eval(r fact.Reader) (fact.Value, error) {
	return Eval(e.Root, r)
}

// EvalBool evaluates the expression and requires a Bool result.
func (e *Expr) EvalBool(r fact.Reader) (bool, error) {
	v, err := Eval(e.Root, r)
	if err != nil {
		return false, err
	}
	b, ok := v.AsBool()
	if !ok {
		return false, fact.Mismatch("condition", v)
	}
	return b, nil
}

// Eval evaluates n against r. Errors wrap fact.ErrUnknownFact,
// fact.ErrTypeMismatch or fact.ErrDivisionByZero.
func Eval(n Node, r fact.Reader) (fact.Value, error) {
	switch t := n.(type) {
	case *Literal:
		return t.Value, nil
	case *FactRef:
		v, ok := r.Get(t.Key)
		if !ok {
			return fact.Value{}, &fact.UnknownFactError{Key: t.Key}
		}
		return v, nil
	case *UnaryOp:
		v, err := Eval(t.Operand, r)
		if err != nil {
			return fact.Value{}, err
		}
		return Unary(t.Op, v)
	case *BinaryOp:
		if t.Op == OpAnd || t.Op == OpOr {
			return evalLogic(t, r)
		}
		left, err := Eval(t.Left, r)
		if err != nil {
			return fact.Value{}, err
		}
		right, err := Eval(t.Right, r)
		if err != nil {
			return fact.Value{}, err
		}
		return Binary(t.Op, left, right)
	case nil:
		return fact.Value{}, fmt.Errorf("nil expression node")
	}
	return fact.Value{}, fmt.Errorf("unsupported expression node %T", n)
}

func evalLogic(n *BinaryOp, r fact.Reader) (fact.Value, error) {
	left, err := Eval(n.Left, r)
	if err != nil {
		return fact.Value{}, err
	}
	lb, ok := left.AsBool()
	if !ok {
		return fact.Value{}, fact.Mismatch(n.Op.String(), left)
	}
	if (n.Op == OpAnd && !lb) || (n.Op == OpOr && lb) {
		return fact.Bool(lb), nil
	}
	right, err := Eval(n.Right, r)
	if err != nil {
		return fact.Value{}, err
	}
	rb, ok := right.AsBool()
	if !ok {
		return fact.Value{}, fact.Mismatch(n.Op.String(), left, right)
	}
	return fact.Bool(rb), nil
}

// Unary applies OpNeg or OpNot to v.
func Unary(op Op, v fact.Value) (fact.Value, error) {
	switch op {
	case OpNeg:
		if i, ok := v.AsInt(); ok {
			if i == math.MinInt64 {
				return fact.Value{}, fmt.Errorf("-(%d): %w", i, fact.ErrIntegerOverflow)
			}
			return fact.Int(-i), nil
		}
		if f, ok := v.AsFloat(); ok {
			return fact.Float(-f), nil
		}
	case OpNot:
		if b, ok := v.AsBool(); ok {
			return fact.Bool(!b), nil
		}
	}
	return fact.Value{}, fact.Mismatch(op.String(), v)
}

// Binary applies an arithmetic or comparison operator. Int op Int stays Int,
// any Float operand promotes both sides to Float, and + also concatenates
// two Strings.
func Binary(op Op, a, b fact.Value) (fact.Value, error) {
	if op.IsComparison() {
		ok, err := compare(op, a, b)
		if err != nil {
			return fact.Value{}, err
		}
		return fact.Bool(ok), nil
	}

	if ai, ok := a.AsInt(); ok {
		if bi, ok := b.AsInt(); ok {
			return intArith(op, ai, bi, a, b)
		}
	}
	if op == OpAdd {
		if as, ok := a.AsString(); ok {
			if bs, ok := b.AsString(); ok {
				return fact.String(as + bs), nil
			}
		}
	}
	if op != OpMod {
		af, aok := a.Number()
		bf, bok := b.Number()
		if aok && bok {
			return floatArith(op, af, bf, a, b)
		}
	}
	return fact.Value{}, fact.Mismatch(op.String(), a, b)
}

// intArith fails with fact.ErrIntegerOverflow instead of wrapping.
func intArith(op Op, x, y int64, a, b fact.Value) (fact.Value, error) {
	switch op {
	case OpAdd:
		r := x + y
		if (y > 0 && r < x) || (y < 0 && r > x) {
			return fact.Value{}, overflow(op, x, y)
		}
		return fact.Int(r), nil
	case OpSub:
		r := x - y
		if (y > 0 && r > x) || (y < 0 && r < x) {
			return fact.Value{}, overflow(op, x, y)
		}
		return fact.Int(r), nil
	case OpMul:
		if x == 0 || y == 0 {
			return fact.Int(0), nil
		}
		r := x * y
		if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
			return fact.Value{}, overflow(op, x, y)
		}
		return fact.Int(r), nil
	case OpDiv:
		if y == 0 {
			return fact.Value{}, fact.ErrDivisionByZero
		}
		if x == math.MinInt64 && y == -1 {
			return fact.Value{}, overflow(op, x, y)
		}
		return fact.Int(x / y), nil
	case OpMod:
		if y == 0 {
			return fact.Value{}, fact.ErrDivisionByZero
		}
		return fact.Int(x % y), nil
	}
	return fact.Value{}, fact.Mismatch(op.String(), a, b)
}

func overflow(op Op, x, y int64) error {
	return fmt.Errorf("%d %s %d: %w", x, op, y, fact.ErrIntegerOverflow)
}

func floatArith(op Op, x, y float64, a, b fact.Value) (fact.Value, error) {
	switch op {
	case OpAdd:
		return fact.Float(x + y), nil
	case OpSub:
		return fact.Float(x - y), nil
	case OpMul:
		return fact.Float(x * y), nil
	case OpDiv:
		if y == 0 {
			return fact.Value{}, fact.ErrDivisionByZero
		}
		return fact.Float(x / y), nil
	}
	return fact.Value{}, fact.Mismatch(op.String(), a, b)
}

// Compare evaluates a comparison operator as expressions do. Operands must
// have the same kind: Int against Float is a type mismatch, since int/float
// coercion only applies to arithmetic. Only == and != are defined for Bool
// and list values.
func Compare(op Op, a, b fact.Value) (bool, error) {
	if !op.IsComparison() {
		return false, fmt.Errorf("%s is not a comparison operator", op)
	}
	return compare(op, a, b)
}

// CompareNumeric orders two numeric values, promoting to Float when the
// kinds differ. Modifications use it for bounds, which are arithmetic.
func CompareNumeric(op Op, a, b fact.Value) (bool, error) {
	if !op.IsComparison() {
		return false, fmt.Errorf("%s is not a comparison operator", op)
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return false, fact.Mismatch(op.String(), a, b)
	}
	if a.Kind() == b.Kind() {
		return compare(op, a, b)
	}
	af, _ := a.Number()
	bf, _ := b.Number()
	return compareFloat(op, af, bf), nil
}

func compare(op Op, a, b fact.Value) (bool, error) {
	if a.Kind() != b.Kind() {
		return false, fact.Mismatch(op.String(), a, b)
	}
	if ai, ok := a.AsInt(); ok {
		bi, _ := b.AsInt()
		return ordered(op, cmpInt(ai, bi)), nil
	}
	if af, ok := a.AsFloat(); ok {
		bf, _ := b.AsFloat()
		return compareFloat(op, af, bf), nil
	}
	if as, ok := a.AsString(); ok {
		bs, _ := b.AsString()
		return ordered(op, strings.Compare(as, bs)), nil
	}
	switch op {
	case OpEq:
		return a.Equal(b), nil
	case OpNe:
		return !a.Equal(b), nil
	}
	return false, fact.Mismatch(op.String(), a, b)
}

func compareFloat(op Op, a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) { // unordered
		return op == OpNe
	}
	return ordered(op, cmpFloat(a, b))
}

func ordered(op Op, c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
