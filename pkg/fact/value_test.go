package fact

import (
	"encoding/json"
	"testing"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same int", Int(1), Int(1), true},
		{"different int", Int(1), Int(2), false},
		{"int vs float", Int(1), Float(1), false},
		{"same string", String("a"), String("a"), true},
		{"same int list", IntList(1, 2), IntList(1, 2), true},
		{"int list order", IntList(1, 2), IntList(2, 1), false},
		{"string list", StringList("a"), StringList("a"), true},
		{"bool", Bool(true), Bool(false), false},
		{"zero values", Value{}, Value{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("%v.Equal(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestValueListsAreCopied(t *testing.T) {
	src := []int64{1, 2, 3}
	v := IntList(src...)
	src[0] = 99

	got, _ := v.AsIntList()
	if got[0] != 1 {
		t.Fatalf("IntList aliased caller slice: got %v", got)
	}
	got[1] = 42
	again, _ := v.AsIntList()
	if again[1] != 2 {
		t.Errorf("AsIntList returned internal storage: got %v", again)
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Int(-5), "-5"},
		{Float(2), "2.0"},
		{Float(2.5), "2.5"},
		{Bool(true), "true"},
		{String("hi"), "hi"},
		{IntList(1, 2), "[1, 2]"},
		{StringList("a", "b"), "[a, b]"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Value
		wantErr bool
	}{
		{"int", 42, Int(42), false},
		{"float", 1.5, Float(1.5), false},
		{"bool", true, Bool(true), false},
		{"string", "x", String("x"), false},
		{"int list", []any{1, 2}, IntList(1, 2), false},
		{"string list", []any{"a", "b"}, StringList("a", "b"), false},
		{"mixed list", []any{1, "a"}, Value{}, true},
		{"nil", nil, Value{}, true},
		{"map", map[string]any{}, Value{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromAny(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("FromAny(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValueMarshalJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{"hp": Int(3), "tags": StringList("a")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(data), `{"hp":3,"tags":["a"]}`; got != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}
