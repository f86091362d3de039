package expr

import (
	"fmt"
	"strconv"
	"strings"

	"mercator-hq/fre/pkg/fact"
)

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 128

// SyntaxError reports malformed expression text.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

// Error returns the error message.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d in %q: %s", e.Pos, e.Input, e.Msg)
}

// Expr is a parsed expression together with its source text.
type Expr struct {
	Source string
	Root   Node
}

// Parse parses src into an Expr.
func Parse(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Input: src, Msg: "empty expression"}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %s after expression", describe(tok))
	}
	return &Expr{Source: src, Root: root}, nil
}

// MustParse is Parse that panics on error. Intended for tests and static tables.
func MustParse(src string) *Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// LiteralExpr wraps a constant in an Expr.
func LiteralExpr(v fact.Value) *Expr {
	n := &Literal{Value: v}
	return &Expr{Source: n.String(), Root: n}
}

// String returns the source text.
func (e *Expr) String() string { return e.Source }

// References returns the fact keys the expression reads.
func (e *Expr) References() []string { return References(e.Root) }

type parser struct {
	src   string
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Input: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: OpOr, Left: left, Right: right}
	}
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: OpAnd, Left: left, Right: right}
	}
}

// parseNot sits below comparisons, so "not hp <= 0" negates the comparison.
func (p *parser) parseNot() (Node, error) {
	if _, ok := p.acceptOp("!"); !ok {
		return p.parseComparison()
	}
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, p.errorf(p.peek(), "expression nested too deeply")
	}
	operand, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	return &UnaryOp{Op: OpNot, Operand: operand}, nil
}

var comparisonOps = map[string]Op{
	"==": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("==", "!=", "<=", ">=", "<", ">")
	if !ok {
		return left, nil
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokOp {
		if _, chained := comparisonOps[t.text]; chained {
			return nil, p.errorf(t, "comparisons cannot be chained; use 'and'")
		}
	}
	return &BinaryOp{Op: comparisonOps[op], Left: left, Right: right}, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		kind := OpAdd
		if op == "-" {
			kind = OpSub
		}
		left = &BinaryOp{Op: kind, Left: left, Right: right}
	}
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		kind := map[string]Op{"*": OpMul, "/": OpDiv, "%": OpMod}[op]
		left = &BinaryOp{Op: kind, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, p.errorf(p.peek(), "expression nested too deeply")
	}

	if _, ok := p.acceptOp("-"); !ok {
		return p.parsePrimary()
	}
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &UnaryOp{Op: OpNeg, Operand: operand}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokInt:
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.errorf(t, "integer literal %s out of range", t.text)
		}
		return &Literal{Value: fact.Int(n)}, nil
	case tokFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid float literal %s", t.text)
		}
		return &Literal{Value: fact.Float(f)}, nil
	case tokString:
		return &Literal{Value: fact.String(t.text)}, nil
	case tokTrue:
		return &Literal{Value: fact.Bool(true)}, nil
	case tokFalse:
		return &Literal{Value: fact.Bool(false)}, nil
	case tokIdent:
		return &FactRef{Key: t.text}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')', found %s", describe(closing))
		}
		return inner, nil
	}
	return nil, p.errorf(t, "expected operand, found %s", describe(t))
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	}
	return "'" + t.text + "'"
}
