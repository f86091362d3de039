package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/engine/source"
	"mercator-hq/fre/pkg/telemetry/logging"
)

func scenarios(t *testing.T, format, filter string, args ...string) (string, error) {
	t.Helper()
	testFlags.format, testFlags.run = format, filter
	defer func() { testFlags.format, testFlags.run = "text", "" }()

	out := &bytes.Buffer{}
	testCmd.SetOut(out)
	defer testCmd.SetOut(nil)
	err := runScenarios(testCmd, args)
	return out.String(), err
}

func TestRunScenariosPass(t *testing.T) {
	out, err := scenarios(t, "text", "", "testdata/rules")
	if err != nil {
		t.Fatalf("runScenarios() error = %v\n%s", err, out)
	}
	for _, want := range []string{"✓ dies after three hits", "✓ greeting only in town", "Results: 2 passed, 0 failed, 2 total"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunScenariosFail(t *testing.T) {
	out, err := scenarios(t, "text", "", "testdata/failing")
	if err == nil {
		t.Fatal("failing scenario should fail the command")
	}
	if !strings.Contains(out, "✗ wrong expectation") || !strings.Contains(out, `fact "counter" = 1, want 5`) {
		t.Errorf("output:\n%s", out)
	}
}

func TestRunScenariosJSONAndFilter(t *testing.T) {
	out, err := scenarios(t, "json", "counts", "testdata/failing")
	if err != nil {
		t.Fatalf("runScenarios() error = %v", err)
	}
	var summary TestSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if summary.Passed != 1 || summary.Failed != 0 || summary.Results[0].Ticks != 3 {
		t.Errorf("summary = %+v", summary)
	}

	if _, err := scenarios(t, "text", "nothing matches", "testdata/rules"); err == nil {
		t.Error("an empty selection should fail")
	}
}

func TestRunSuiteIsolation(t *testing.T) {
	sets, err := source.NewFileSource([]string{"testdata/failing"}, logging.Discard()).LoadRuleSets(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	runner := engine.NewScenarioRunner(nil, logging.Discard())

	// Each scenario starts from the declared counter of 0.
	for range 2 {
		summary, err := runSuite(t.Context(), runner, sets, "counts")
		if err != nil {
			t.Fatal(err)
		}
		if summary.Passed != 1 {
			t.Errorf("summary = %+v", summary)
		}
	}
}
