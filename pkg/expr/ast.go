package expr

import (
	"slices"
	"strconv"

	"mercator-hq/fre/pkg/fact"
)

// Op is a unary or binary operator.
type Op uint8

const (
	OpNeg Op = iota + 1
	OpNot
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var opNames = map[Op]string{
	OpNeg: "-", OpNot: "not",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "and", OpOr: "or",
}

// String returns the operator's source spelling.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// IsComparison reports whether o yields a Bool from two comparable operands.
func (o Op) IsComparison() bool { return o >= OpEq && o <= OpGe }

// Node is an immutable expression tree node.
type Node interface {
	String() string
	node()
}

// Literal is a constant value.
type Literal struct {
	Value fact.Value
}

// FactRef reads a fact by key.
type FactRef struct {
	Key string
}

// UnaryOp applies OpNeg or OpNot.
type UnaryOp struct {
	Op      Op
	Operand Node
}

// BinaryOp applies an arithmetic, comparison or logic operator.
type BinaryOp struct {
	Op          Op
	Left, Right Node
}

func (*Literal) node()  {}
func (*FactRef) node()  {}
func (*UnaryOp) node()  {}
func (*BinaryOp) node() {}

func (n *Literal) String() string {
	if s, ok := n.Value.AsString(); ok {
		return strconv.Quote(s)
	}
	return n.Value.String()
}

func (n *FactRef) String() string { return n.Key }

func (n *UnaryOp) String() string {
	if n.Op == OpNot {
		return "(not " + n.Operand.String() + ")"
	}
	return "(-" + n.Operand.String() + ")"
}

func (n *BinaryOp) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

// References returns the sorted, de-duplicated fact keys n reads.
func References(n Node) []string {
	var keys []string
	var walk func(Node)
	walk = func(n Node) {
		switch t := n.(type) {
		case *FactRef:
			keys = append(keys, t.Key)
		case *UnaryOp:
			walk(t.Operand)
		case *BinaryOp:
			walk(t.Left)
			walk(t.Right)
		}
	}
	walk(n)
	slices.Sort(keys)
	return slices.Compact(keys)
}
