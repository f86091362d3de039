package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/fre/pkg/cli"
	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/engine/source"
	"mercator-hq/fre/pkg/rule"
	"mercator-hq/fre/pkg/telemetry/logging"
)

var testFlags struct {
	run    string
	format string
}

var testCmd = &cobra.Command{
	Use:   "test [path...]",
	Short: "Run rule set scenarios",
	Long: `Run the test scenarios embedded in rule files.

Every scenario runs against a fresh engine loaded with all the given rule
files. A scenario lists steps; each step enters and exits contexts, emits
events, ticks, then checks facts, dispatched actions and fired rules.

Scenario Format (YAML):
  tests:
    - name: "dies after ten hits"
      facts: {player_health: 100}
      steps:
        - emit: [{event: hit, payload: {weapon: sword}}]
          repeat: 10
          expect:
            facts: {alive: false}
            fired: [damage_on_hit]

Examples:
  # Run every scenario under rules/
  fre test rules/

  # Only scenarios whose name contains "damage"
  fre test rules/ --run damage

  # JSON output for CI/CD
  fre test rules/ --format json`,
	RunE: runScenarios,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVar(&testFlags.run, "run", "", "only run scenarios whose name contains this text")
	testCmd.Flags().StringVar(&testFlags.format, "format", "text", "output format: text, json")
}

// TestResult is the JSON form of one scenario result.
type TestResult struct {
	Name     string   `json:"name"`
	File     string   `json:"file"`
	Passed   bool     `json:"passed"`
	Ticks    int      `json:"ticks"`
	Duration float64  `json:"duration_ms"`
	Failures []string `json:"failures,omitempty"`
}

// TestSummary is the JSON document written by fre test --format json.
type TestSummary struct {
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
	Results []TestResult `json:"results"`
}

func runScenarios(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(testFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths := args
	if len(paths) == 0 {
		paths = cfg.Rules.Paths
	}

	// Rule activity is reported through the results; keep the log quiet.
	logger := logging.Discard()
	sets, err := source.NewFileSource(paths, logger).
		WithExtensions(cfg.Rules.Extensions...).
		WithValidator(newValidator(cfg.Engine), cfg.Engine.Strict).
		LoadRuleSets(commandContext(cmd))
	if err != nil {
		return cli.NewCommandError("test", err)
	}

	summary, err := runSuite(commandContext(cmd), engine.NewScenarioRunner(engineConfig(cfg.Engine), logger), sets, testFlags.run)
	if err != nil {
		return cli.NewCommandError("test", err)
	}
	if len(summary.Results) == 0 {
		return cli.NewCommandError("test", errors.New("no scenarios found"))
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if err := cli.NewFormatter(format).FormatTo(out, summary); err != nil {
			return err
		}
	} else {
		printSummary(out, summary)
	}
	if summary.Failed > 0 {
		return cli.NewCommandError("test", fmt.Errorf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}

// runSuite runs the scenarios of sets whose name contains filter.
func runSuite(ctx context.Context, runner *engine.ScenarioRunner, sets []*rule.Set, filter string) (*TestSummary, error) {
	summary := &TestSummary{Results: []TestResult{}}
	for _, s := range sets {
		for _, sc := range s.Tests {
			if filter != "" && !strings.Contains(sc.Name, filter) {
				continue
			}
			res, err := runner.Run(ctx, sets, sc)
			if err != nil {
				return nil, err
			}
			tr := TestResult{
				Name:     res.Name,
				File:     s.SourceFile,
				Passed:   res.Passed,
				Ticks:    res.Ticks,
				Duration: float64(res.Duration) / float64(time.Millisecond),
				Failures: res.Failures,
			}
			if tr.Passed {
				summary.Passed++
			} else {
				summary.Failed++
			}
			summary.Results = append(summary.Results, tr)
		}
	}
	return summary, nil
}

func printSummary(w io.Writer, summary *TestSummary) {
	fmt.Fprintln(w, "Running rule set scenarios...")
	fmt.Fprintln(w)
	for _, r := range summary.Results {
		if r.Passed {
			fmt.Fprintf(w, "✓ %s (%.1fms)\n", r.Name, r.Duration)
			continue
		}
		fmt.Fprintf(w, "✗ %s (%s)\n", r.Name, r.File)
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Results: %d passed, %d failed, %d total\n",
		summary.Passed, summary.Failed, summary.Passed+summary.Failed)
}
