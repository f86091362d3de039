package rule

import (
	"fmt"

	"mercator-hq/fre/pkg/expr"
	"mercator-hq/fre/pkg/fact"
)

// ModKind is the kind of a fact modification.
type ModKind string

const (
	ModSet          ModKind = "set"
	ModSetIfChanged ModKind = "set_if_changed"
	ModIncrement    ModKind = "increment"
	ModDecrement    ModKind = "decrement"
	ModAdd          ModKind = "add"
	ModSubtract     ModKind = "subtract"
	ModMultiply     ModKind = "multiply"
	ModDivide       ModKind = "divide"
	ModModulo       ModKind = "modulo"
	ModClamp        ModKind = "clamp"
	ModWrap         ModKind = "wrap"
	ModRemove       ModKind = "remove"
	ModToggle       ModKind = "toggle"
	ModPromote      ModKind = "promote" // local -> global
	ModDemote       ModKind = "demote"  // global -> local
)

// modSpec describes which operands a kind takes.
type modSpec struct {
	value  bool // requires Value
	bounds bool // requires Min and Max
}

var modSpecs = map[ModKind]modSpec{
	ModSet:          {value: true},
	ModSetIfChanged: {value: true},
	ModIncrement:    {},
	ModDecrement:    {},
	ModAdd:          {value: true},
	ModSubtract:     {value: true},
	ModMultiply:     {value: true},
	ModDivide:       {value: true},
	ModModulo:       {value: true},
	ModClamp:        {bounds: true},
	ModWrap:         {bounds: true},
	ModRemove:       {},
	ModToggle:       {},
	ModPromote:      {},
	ModDemote:       {},
}

// ModKinds returns every supported kind, for validation messages.
func ModKinds() []string {
	out := make([]string, 0, len(modSpecs))
	for k := range modSpecs {
		out = append(out, string(k))
	}
	return out
}

// IsValid reports whether k is a known kind.
func (k ModKind) IsValid() bool {
	_, ok := modSpecs[k]
	return ok
}

// NeedsValue reports whether k requires a Value operand.
func (k ModKind) NeedsValue() bool { return modSpecs[k].value }

// NeedsBounds reports whether k requires Min and Max.
func (k ModKind) NeedsBounds() bool { return modSpecs[k].bounds }

// Modification is one write a rule performs when its condition holds.
// Operands are expressions evaluated against the same reader the condition
// saw, including writes made by earlier modifications of the rule.
type Modification struct {
	Kind     ModKind
	Key      string
	Layer    fact.Layer
	Value    *expr.Expr // set, arithmetic; optional amount for increment/decrement
	Min, Max *expr.Expr // clamp, wrap
	Location Location
}

// SetValue returns a modification that overwrites key in the local layer.
func SetValue(key string, v fact.Value) *Modification {
	return &Modification{Kind: ModSet, Key: key, Value: expr.LiteralExpr(v)}
}

// Increment returns a modification that adds n to key.
func Increment(key string, n int64) *Modification {
	return &Modification{Kind: ModIncrement, Key: key, Value: expr.LiteralExpr(fact.Int(n))}
}

// Decrement returns a modification that subtracts n from key.
func Decrement(key string, n int64) *Modification {
	return &Modification{Kind: ModDecrement, Key: key, Value: expr.LiteralExpr(fact.Int(n))}
}

// Global returns a copy of m targeting the global layer.
func (m *Modification) Global() *Modification {
	c := *m
	c.Layer = fact.LayerGlobal
	return &c
}

// String renders the modification for logs.
func (m *Modification) String() string {
	s := fmt.Sprintf("%s %s", m.Kind, m.Key)
	if m.Value != nil {
		s += " " + m.Value.String()
	}
	if m.Min != nil && m.Max != nil {
		s += fmt.Sprintf(" [%s, %s]", m.Min, m.Max)
	}
	if m.Layer == fact.LayerGlobal {
		s += " (global)"
	}
	return s
}

// Apply performs the modification on db, reading operands and current values
// through r. Every write is recorded in undo first. It reports whether the
// stored value changed.
func (m *Modification) Apply(db *fact.LayeredDatabase, r fact.Reader, undo *UndoLog) (bool, error) {
	changed, err := m.apply(db, r, undo)
	if err != nil {
		return false, &ModificationError{Kind: m.Kind, Key: m.Key, Cause: err}
	}
	return changed, nil
}

func (m *Modification) apply(db *fact.LayeredDatabase, r fact.Reader, undo *UndoLog) (bool, error) {
	switch m.Kind {
	case ModSet:
		v, err := m.Value.Eval(r)
		if err != nil {
			return false, err
		}
		old, had := r.Get(m.Key)
		undo.record(db, m.Layer, m.Key)
		db.SetIn(m.Layer, m.Key, v)
		return !had || !old.Equal(v), nil

	case ModSetIfChanged:
		v, err := m.Value.Eval(r)
		if err != nil {
			return false, err
		}
		undo.record(db, m.Layer, m.Key)
		return db.SetIfChangedIn(m.Layer, m.Key, v), nil

	case ModIncrement, ModDecrement, ModAdd, ModSubtract:
		cur, ok := r.Get(m.Key)
		if !ok {
			cur = fact.Int(0)
		}
		amount := fact.Int(1)
		if m.Value != nil {
			v, err := m.Value.Eval(r)
			if err != nil {
				return false, err
			}
			amount = v
		}
		if !amount.IsNumeric() {
			return false, fact.Mismatch(string(m.Kind), cur, amount)
		}
		op := expr.OpAdd
		if m.Kind == ModDecrement || m.Kind == ModSubtract {
			op = expr.OpSub
		}
		return m.arith(db, undo, op, cur, amount)

	case ModMultiply, ModDivide, ModModulo:
		cur, ok := r.Get(m.Key)
		if !ok {
			return false, &fact.UnknownFactError{Key: m.Key}
		}
		amount, err := m.Value.Eval(r)
		if err != nil {
			return false, err
		}
		op := map[ModKind]expr.Op{ModMultiply: expr.OpMul, ModDivide: expr.OpDiv, ModModulo: expr.OpMod}[m.Kind]
		return m.arith(db, undo, op, cur, amount)

	case ModClamp:
		return m.clamp(db, r, undo)

	case ModWrap:
		return m.wrap(db, r, undo)

	case ModRemove:
		if _, ok := db.GetIn(m.Layer, m.Key); !ok {
			return false, nil
		}
		undo.record(db, m.Layer, m.Key)
		db.RemoveIn(m.Layer, m.Key)
		return true, nil

	case ModToggle:
		next := true
		if cur, ok := r.Get(m.Key); ok {
			b, ok := cur.AsBool()
			if !ok {
				return false, fact.Mismatch(string(m.Kind), cur)
			}
			next = !b
		}
		undo.record(db, m.Layer, m.Key)
		db.SetIn(m.Layer, m.Key, fact.Bool(next))
		return true, nil

	case ModPromote, ModDemote:
		from, to := fact.LayerLocal, fact.LayerGlobal
		if m.Kind == ModDemote {
			from, to = to, from
		}
		v, ok := db.GetIn(from, m.Key)
		if !ok {
			return false, nil
		}
		undo.record(db, from, m.Key)
		undo.record(db, to, m.Key)
		db.RemoveIn(from, m.Key)
		db.SetIn(to, m.Key, v)
		return true, nil
	}
	return false, fmt.Errorf("unknown modification kind %q", m.Kind)
}

func (m *Modification) arith(db *fact.LayeredDatabase, undo *UndoLog, op expr.Op, cur, amount fact.Value) (bool, error) {
	next, err := expr.Binary(op, cur, amount)
	if err != nil {
		return false, err
	}
	undo.record(db, m.Layer, m.Key)
	db.SetIn(m.Layer, m.Key, next)
	return !next.Equal(cur), nil
}

func (m *Modification) bounds(r fact.Reader) (fact.Value, fact.Value, error) {
	lo, err := m.Min.Eval(r)
	if err != nil {
		return fact.Value{}, fact.Value{}, err
	}
	hi, err := m.Max.Eval(r)
	if err != nil {
		return fact.Value{}, fact.Value{}, err
	}
	return lo, hi, nil
}

// clamp keeps Int results when the value and both bounds are Int.
func (m *Modification) clamp(db *fact.LayeredDatabase, r fact.Reader, undo *UndoLog) (bool, error) {
	cur, ok := r.Get(m.Key)
	if !ok {
		return false, &fact.UnknownFactError{Key: m.Key}
	}
	lo, hi, err := m.bounds(r)
	if err != nil {
		return false, err
	}
	if !cur.IsNumeric() || !lo.IsNumeric() || !hi.IsNumeric() {
		return false, fact.Mismatch(string(m.Kind), cur, lo, hi)
	}
	if gt, _ := expr.CompareNumeric(expr.OpGt, lo, hi); gt {
		return false, fmt.Errorf("clamp bounds inverted: min %s > max %s", lo, hi)
	}

	next := cur
	if less, _ := expr.CompareNumeric(expr.OpLt, cur, lo); less {
		next = lo
	} else if more, _ := expr.CompareNumeric(expr.OpGt, cur, hi); more {
		next = hi
	}
	if cur.Kind() == fact.KindFloat || lo.Kind() == fact.KindFloat || hi.Kind() == fact.KindFloat {
		f, _ := next.Number()
		next = fact.Float(f)
	}
	undo.record(db, m.Layer, m.Key)
	db.SetIn(m.Layer, m.Key, next)
	return !next.Equal(cur), nil
}

// wrap maps an Int into [min, max) with modular arithmetic.
func (m *Modification) wrap(db *fact.LayeredDatabase, r fact.Reader, undo *UndoLog) (bool, error) {
	cur, ok := r.Get(m.Key)
	if !ok {
		return false, &fact.UnknownFactError{Key: m.Key}
	}
	lo, hi, err := m.bounds(r)
	if err != nil {
		return false, err
	}
	i, ok1 := cur.AsInt()
	lower, ok2 := lo.AsInt()
	upper, ok3 := hi.AsInt()
	if !ok1 || !ok2 || !ok3 {
		return false, fact.Mismatch(string(m.Kind), cur, lo, hi)
	}
	if upper <= lower {
		return false, fmt.Errorf("wrap range empty: [%d, %d)", lower, upper)
	}
	span := upper - lower
	next := fact.Int(((i-lower)%span+span)%span + lower)
	undo.record(db, m.Layer, m.Key)
	db.SetIn(m.Layer, m.Key, next)
	return !next.Equal(cur), nil
}

// ApplyAll applies mods in order. If one fails, the writes of the earlier
// ones are rolled back and the error is returned.
func ApplyAll(mods []*Modification, db *fact.LayeredDatabase, r fact.Reader) (changed bool, err error) {
	var undo UndoLog
	for _, m := range mods {
		c, err := m.Apply(db, r, &undo)
		if err != nil {
			undo.Rollback(db)
			return false, err
		}
		changed = changed || c
	}
	return changed, nil
}

type undoEntry struct {
	layer fact.Layer
	key   string
	prev  fact.Value
	had   bool
}

// UndoLog records prior values so a rule's writes can be reverted.
type UndoLog struct {
	entries []undoEntry
}

func (u *UndoLog) record(db *fact.LayeredDatabase, l fact.Layer, key string) {
	if u == nil {
		return
	}
	prev, had := db.GetIn(l, key)
	u.entries = append(u.entries, undoEntry{layer: l, key: key, prev: prev, had: had})
}

// Rollback restores recorded values in reverse order and empties the log.
func (u *UndoLog) Rollback(db *fact.LayeredDatabase) {
	for i := len(u.entries) - 1; i >= 0; i-- {
		e := u.entries[i]
		if e.had {
			db.SetIn(e.layer, e.key, e.prev)
		} else {
			db.RemoveIn(e.layer, e.key)
		}
	}
	u.entries = u.entries[:0]
}

// Len returns the number of recorded writes.
func (u *UndoLog) Len() int { return len(u.entries) }
