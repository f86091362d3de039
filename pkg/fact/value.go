package fact

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindIntList
	KindStringList
)

// String returns the lowercase name used in error messages and rule files.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindIntList:
		return "int_list"
	case KindStringList:
		return "string_list"
	default:
		return "invalid"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "int":
		return KindInt, true
	case "float":
		return KindFloat, true
	case "bool":
		return KindBool, true
	case "string":
		return KindString, true
	case "int_list":
		return KindIntList, true
	case "string_list":
		return KindStringList, true
	}
	return KindInvalid, false
}

// Value is an immutable fact value. The zero Value is invalid and is never
// stored in a database.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	il   []int64
	sl   []string
}

// Int returns an Int value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a Float value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Bool returns a Bool value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// String returns a String value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// IntList returns an IntList value holding a copy of v.
func IntList(v ...int64) Value {
	return Value{kind: KindIntList, il: slices.Clone(v)}
}

// StringList returns a StringList value holding a copy of v.
func StringList(v ...string) Value {
	return Value{kind: KindStringList, sl: slices.Clone(v)}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a variant.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// IsNumeric reports whether v is an Int or a Float.
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// AsInt returns the Int payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the Float payload. Ints are not coerced.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsBool returns the Bool payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the String payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsIntList returns a copy of the IntList payload.
func (v Value) AsIntList() ([]int64, bool) {
	if v.kind != KindIntList {
		return nil, false
	}
	return slices.Clone(v.il), true
}

// AsStringList returns a copy of the StringList payload.
func (v Value) AsStringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return slices.Clone(v.sl), true
}

// Number returns v as a float64 for Int and Float values.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Equal reports structural equality. Int(1) and Float(1) are not equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindIntList:
		return slices.Equal(v.il, o.il)
	case KindStringList:
		return slices.Equal(v.sl, o.sl)
	}
	return true
}

// String formats v the way rule authors write literals.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	case KindIntList:
		parts := make([]string, len(v.il))
		for i, n := range v.il {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindStringList:
		return "[" + strings.Join(v.sl, ", ") + "]"
	}
	return "<invalid>"
}

// Interface returns v as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindIntList:
		return slices.Clone(v.il)
	case KindStringList:
		return slices.Clone(v.sl)
	}
	return nil
}

// MarshalJSON encodes the payload without the variant tag.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// FromAny converts a decoded YAML or JSON scalar or list into a Value.
// Lists must be homogeneous; an empty list becomes an empty StringList.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("integer %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []int64:
		return IntList(t...), nil
	case []string:
		return StringList(t...), nil
	case []any:
		return listFromAny(t)
	case nil:
		return Value{}, fmt.Errorf("null is not a fact value")
	}
	return Value{}, fmt.Errorf("unsupported fact value type %T", x)
}

func listFromAny(items []any) (Value, error) {
	if len(items) == 0 {
		return StringList(), nil
	}
	switch items[0].(type) {
	case int, int64:
		out := make([]int64, len(items))
		for i, it := range items {
			switch n := it.(type) {
			case int:
				out[i] = int64(n)
			case int64:
				out[i] = n
			default:
				return Value{}, fmt.Errorf("list element %d: expected int, got %T", i, it)
			}
		}
		return Value{kind: KindIntList, il: out}, nil
	case string:
		out := make([]string, len(items))
		for i, it := range items {
			s, ok := it.(string)
			if !ok {
				return Value{}, fmt.Errorf("list element %d: expected string, got %T", i, it)
			}
			out[i] = s
		}
		return Value{kind: KindStringList, sl: out}, nil
	}
	return Value{}, fmt.Errorf("unsupported list element type %T", items[0])
}
