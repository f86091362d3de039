package ruleset

import (
	"strings"
	"testing"

	"mercator-hq/fre/pkg/ruleset/validator"
)

func TestParseAndValidate(t *testing.T) {
	set, err := ParseAndValidate("parser/testdata/valid/combat.yaml")
	if err != nil {
		t.Fatalf("ParseAndValidate() failed: %v", err)
	}
	if set.Name != "combat" {
		t.Errorf("Name = %q, want %q", set.Name, "combat")
	}
}

func TestParseAndValidateBytes(t *testing.T) {
	data := []byte(`
name: counter
facts:
  count: 0
rules:
  - id: bump
    event: tick
    modifications:
      - op: increment
        key: count
`)
	set, err := ParseAndValidateBytes(data, "memory://counter")
	if err != nil {
		t.Fatalf("ParseAndValidateBytes() failed: %v", err)
	}
	if len(set.Rules) != 1 || set.Rules[0].ID != "bump" {
		t.Errorf("Rules = %v", set.Rules)
	}

	bad := []byte(`
rules:
  - id: r
    event: e
    modifications:
      - {op: divide, key: x, value: 0}
`)
	if _, err := ParseAndValidateBytes(bad, "memory://bad"); err == nil || !strings.Contains(err.Error(), "by zero") {
		t.Errorf("ParseAndValidateBytes(bad) = %v, want division error", err)
	}
}

func TestLoadDir(t *testing.T) {
	sets, err := LoadDir("parser/testdata/valid")
	if err != nil {
		t.Fatalf("LoadDir() failed: %v", err)
	}
	if len(sets) != 2 {
		t.Errorf("len(sets) = %d, want 2", len(sets))
	}

	// combat.yaml reads max_health, which nothing declares.
	strict := validator.NewValidator().WithStrictMode(true)
	if _, err := LoadDir("parser/testdata/valid", WithValidator(strict)); err == nil {
		t.Error("strict LoadDir() succeeded, want warnings to fail")
	}
}
