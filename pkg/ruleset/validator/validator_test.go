package validator

import (
	"strings"
	"testing"

	"mercator-hq/fre/pkg/expr"
	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
	rsErrors "mercator-hq/fre/pkg/ruleset/errors"
)

func set(name string, facts map[string]fact.Value, rules ...*rule.Rule) *rule.Set {
	return &rule.Set{Name: name, Facts: facts, Rules: rules, SourceFile: name + ".yaml"}
}

func messages(list *rsErrors.ErrorList, t rsErrors.ErrorType) string {
	var sb strings.Builder
	for _, e := range list.ByType(t) {
		sb.WriteString(e.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestStructuralValidator(t *testing.T) {
	tests := []struct {
		name    string
		rule    *rule.Rule
		wantErr bool
		want    string
	}{
		{
			name: "valid",
			rule: rule.New("r1", "hit").When(rule.When(expr.MustParse("hp > 0"))).Modify(rule.Decrement("hp", 1)),
		},
		{
			name:    "missing id",
			rule:    &rule.Rule{Event: "hit"},
			wantErr: true,
			want:    "has no id",
		},
		{
			name:    "missing event",
			rule:    &rule.Rule{ID: "r1"},
			wantErr: true,
			want:    "has no event",
		},
		{
			name:    "not with two children",
			rule:    rule.New("r1", "hit").When(&rule.Condition{Type: rule.ConditionNot, Children: []*rule.Condition{rule.Always(), rule.Always()}}),
			wantErr: true,
			want:    "exactly one child",
		},
		{
			name:    "unknown modification",
			rule:    rule.New("r1", "hit").Modify(&rule.Modification{Kind: "incremnt", Key: "hp"}),
			wantErr: true,
			want:    "unknown modification",
		},
		{
			name:    "clamp without bounds",
			rule:    rule.New("r1", "hit").Modify(&rule.Modification{Kind: rule.ModClamp, Key: "hp"}),
			wantErr: true,
			want:    "requires min and max",
		},
		{
			name:    "empty action",
			rule:    rule.New("r1", "hit").Do(""),
			wantErr: true,
			want:    "action 0 is empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStructuralValidator().Validate(set("s", nil, tt.rule))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSemanticValidator_DuplicateIDs(t *testing.T) {
	a := set("a", nil, rule.New("dup", "hit"), rule.New("dup", "hit"))
	list := NewValidator().Check(a)
	if got := messages(list, rsErrors.ErrorTypeSemantic); !strings.Contains(got, `"dup" is used 2 times`) {
		t.Errorf("semantic errors = %q", got)
	}

	a.Duplicates = rule.DuplicateSuffix
	if err := NewValidator().Validate(a); err != nil {
		t.Errorf("suffix policy: Validate() = %v", err)
	}

	b := set("b", nil, rule.New("dup-0", "hit"))
	if err := NewValidator().Validate(a, b); err == nil || !strings.Contains(err.Error(), "already defined") {
		t.Errorf("cross-set conflict: Validate() = %v", err)
	}

	c := set("c", nil, rule.New("dup-0", "hit"))
	c.Scope = "dungeon"
	if err := NewValidator().Validate(a, c); err != nil {
		t.Errorf("different scopes: Validate() = %v", err)
	}

	if err := NewValidator().WithDuplicatePolicy(rule.DuplicateSuffix).Validate(set("d", nil, rule.New("x", "e"), rule.New("x", "e"))); err != nil {
		t.Errorf("default suffix policy: Validate() = %v", err)
	}
}

func TestSemanticValidator_Constants(t *testing.T) {
	tests := []struct {
		name string
		rule *rule.Rule
		want string
	}{
		{"constant type error", rule.New("r", "e").When(rule.When(expr.MustParse(`hp > 1 + "a"`))), "can never evaluate"},
		{"constant division", rule.New("r", "e").When(rule.When(expr.MustParse("hp > 1 / 0"))), "can never evaluate"},
		{"non-boolean condition", rule.New("r", "e").When(rule.When(expr.MustParse("1 + 2"))), "is not boolean"},
		{"divide by zero", rule.New("r", "e").Modify(&rule.Modification{Kind: rule.ModDivide, Key: "hp", Value: expr.MustParse("0")}), "by zero"},
		{"multiply by string", rule.New("r", "e").Modify(&rule.Modification{Kind: rule.ModMultiply, Key: "hp", Value: expr.MustParse(`"x"`)}), "non-numeric"},
		{"inverted clamp", rule.New("r", "e").Modify(&rule.Modification{Kind: rule.ModClamp, Key: "hp", Min: expr.MustParse("10"), Max: expr.MustParse("0")}), "greater than max"},
		{"empty wrap", rule.New("r", "e").Modify(&rule.Modification{Kind: rule.ModWrap, Key: "hp", Min: expr.MustParse("3"), Max: expr.MustParse("3")}), "empty range"},
	}
	facts := map[string]fact.Value{"hp": fact.Int(10)}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := NewValidator().Check(set("s", facts, tt.rule))
			if got := messages(list, rsErrors.ErrorTypeSemantic); !strings.Contains(got, tt.want) {
				t.Errorf("semantic errors = %q, want containing %q", got, tt.want)
			}
		})
	}
}

func TestSemanticValidator_Warnings(t *testing.T) {
	facts := map[string]fact.Value{"hp": fact.Int(10), "name": fact.String("hero"), "alive": fact.Bool(true)}
	rules := []*rule.Rule{
		rule.New("typo", "hit").When(rule.When(expr.MustParse("hpp > 0"))),
		rule.New("mismatch", "hit").When(rule.Compare("name", expr.OpGt, fact.Int(3))),
		rule.New("payload", "hit").When(rule.When(expr.MustParse(`event.kind == "crit"`))),
		rule.New("probe", "hit").When(rule.Not(&rule.Condition{Type: rule.ConditionExists, Fact: "shield"})),
		rule.New("written", "hit").Modify(rule.SetValue("combo", fact.Int(1))),
		rule.New("reads_written", "hit").When(rule.When(expr.MustParse("combo > 2"))),
		rule.New("ping", "a").Emit("b"),
		rule.New("pong", "b").Emit("a"),
		rule.New("toggle_str", "hit").Modify(&rule.Modification{Kind: rule.ModToggle, Key: "name"}),
	}
	s := set("s", facts, rules...)
	v := NewValidator()
	list := v.Check(s)
	warnings := messages(list, rsErrors.ErrorTypeWarning)

	for _, want := range []string{
		`reads fact "hpp"`,
		`comparing string fact "name" with int`,
		"Output cycle a -> b -> a",
		`toggle on string fact "name"`,
	} {
		if !strings.Contains(warnings, want) {
			t.Errorf("warnings missing %q:\n%s", want, warnings)
		}
	}
	for _, unwanted := range []string{`"event.kind"`, `"shield"`, `"combo"`} {
		if strings.Contains(warnings, unwanted) {
			t.Errorf("unexpected warning about %s:\n%s", unwanted, warnings)
		}
	}

	if err := v.Validate(s); err != nil {
		t.Errorf("Validate() = %v, want warnings to pass", err)
	}
	if err := NewValidator().WithStrictMode(true).Validate(s); err == nil {
		t.Error("strict Validate() = nil, want warnings to fail")
	}
	if n := len(Warnings(list)); n < 4 {
		t.Errorf("len(Warnings) = %d, want at least 4", n)
	}
}

func TestSemanticValidator_KnownActions(t *testing.T) {
	s := set("s", nil, rule.New("r", "hit").Do("play_sound", "log:debug", "plya_sound"))
	list := NewValidator().WithKnownActions("play_sound", "log").Check(s)
	warnings := messages(list, rsErrors.ErrorTypeWarning)
	if !strings.Contains(warnings, `unregistered action "plya_sound"`) {
		t.Errorf("warnings = %q", warnings)
	}
	if strings.Contains(warnings, `"log:debug"`) || strings.Contains(warnings, `action "play_sound"`) {
		t.Errorf("known actions reported: %q", warnings)
	}
}

func TestSemanticValidator_Scenarios(t *testing.T) {
	s := set("s", nil, rule.New("r", "hit"))
	s.Tests = []*rule.Scenario{{
		Name: "t",
		Steps: []*rule.Step{{
			Enter:  []rule.Scope{"nowhere"},
			Emit:   []rule.EventSpec{{Name: "hit"}, {Name: "miss"}},
			Expect: &rule.Expectation{Fired: []string{"r", "ghost"}},
		}},
	}}
	warnings := messages(NewValidator().Check(s), rsErrors.ErrorTypeWarning)
	for _, want := range []string{`emits "miss"`, `enters context "nowhere"`, `unknown rule "ghost"`} {
		if !strings.Contains(warnings, want) {
			t.Errorf("warnings missing %q:\n%s", want, warnings)
		}
	}
	if strings.Contains(warnings, `emits "hit"`) {
		t.Errorf("handled event reported:\n%s", warnings)
	}
}

func TestValidator_SkipsSemanticOnStructuralErrors(t *testing.T) {
	s := set("s", nil, &rule.Rule{ID: "r"}, rule.New("dup", "e"), rule.New("dup", "e"))
	list := NewValidator().Check(s)
	if !list.HasErrorType(rsErrors.ErrorTypeStructural) {
		t.Fatal("want structural error")
	}
	if list.HasErrorType(rsErrors.ErrorTypeSemantic) {
		t.Error("semantic pass ran despite structural errors")
	}
}
