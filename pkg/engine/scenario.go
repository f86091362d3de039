package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"mercator-hq/fre/pkg/rule"
)

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name       string
	SourceFile string
	Location   rule.Location
	Passed     bool
	Failures   []string
	Ticks      int
	Duration   time.Duration
}

// ScenarioRunner runs the tests embedded in rule files. Each scenario gets
// a fresh engine loaded with every set, so scenarios cannot affect one
// another.
type ScenarioRunner struct {
	config *Config
	logger *slog.Logger
}

// NewScenarioRunner creates a runner. A nil config uses DefaultConfig.
func NewScenarioRunner(config *Config, logger *slog.Logger) *ScenarioRunner {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScenarioRunner{config: config, logger: logger}
}

// RunAll runs every scenario of every set against all sets.
func (r *ScenarioRunner) RunAll(ctx context.Context, sets []*rule.Set) ([]*ScenarioResult, error) {
	var results []*ScenarioResult
	for _, s := range sets {
		for _, sc := range s.Tests {
			res, err := r.Run(ctx, sets, sc)
			if err != nil {
				return results, err
			}
			res.SourceFile = s.SourceFile
			results = append(results, res)
		}
	}
	return results, nil
}

// Run executes sc. The error is reserved for failures to build the engine;
// unmet expectations are reported in the result.
func (r *ScenarioRunner) Run(ctx context.Context, sets []*rule.Set, sc *rule.Scenario) (*ScenarioResult, error) {
	start := time.Now()
	res := &ScenarioResult{Name: sc.Name, Location: sc.Location}

	recorder := &ActionRecorder{}
	actions := NewActionRegistry()
	actions.SetDefault(recorder.Handle)

	eng, err := New(r.config,
		WithLogger(r.logger),
		WithObserver(NewLogObserver(r.logger)),
		WithActions(actions),
	)
	if err != nil {
		return nil, err
	}
	if err := eng.LoadRuleSets(sets); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	for k, v := range sc.Facts {
		eng.Facts().SetGlobal(k, v)
	}

	for i, step := range sc.Steps {
		if err := r.runStep(ctx, eng, recorder, step, i, res); err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("step %d: %v", i, err))
			break
		}
	}

	res.Passed = len(res.Failures) == 0
	res.Duration = time.Since(start)
	r.logger.Debug("scenario finished",
		"scenario", sc.Name,
		"passed", res.Passed,
		"ticks", res.Ticks,
		"failures", len(res.Failures),
	)
	return res, nil
}

func (r *ScenarioRunner) runStep(ctx context.Context, eng *Engine, recorder *ActionRecorder, step *rule.Step, index int, res *ScenarioResult) error {
	for _, s := range step.Exit {
		if err := eng.ExitContext(s); err != nil {
			return err
		}
	}
	for _, s := range step.Enter {
		if err := eng.EnterContext(s); err != nil {
			return err
		}
	}

	recorder.Reset()
	var fired []string
	overflow := false
	repeat := max(step.Repeat, 1)
	for range repeat {
		for _, ev := range step.Emit {
			if _, err := eng.Emit(ev.Name, ev.Payload); err != nil {
				return err
			}
		}
		report := eng.Tick(ctx)
		res.Ticks++
		fired = append(fired, report.FiredRules()...)
		overflow = overflow || report.HasOverflow()
	}

	if step.Expect != nil {
		for _, f := range checkExpectation(eng, step.Expect, recorder.IDs(), fired, overflow) {
			res.Failures = append(res.Failures, fmt.Sprintf("step %d: %s", index, f))
		}
	}
	return nil
}

func checkExpectation(eng *Engine, ex *rule.Expectation, actions, fired []string, overflow bool) []string {
	var failures []string
	db := eng.Facts()

	keys := make([]string, 0, len(ex.Facts))
	for k := range ex.Facts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		want := ex.Facts[k]
		got, ok := db.Get(k)
		switch {
		case !ok:
			failures = append(failures, fmt.Sprintf("fact %q is absent, want %s", k, want))
		case !got.Equal(want):
			failures = append(failures, fmt.Sprintf("fact %q = %s, want %s", k, got, want))
		}
	}
	for _, k := range ex.Absent {
		if v, ok := db.Get(k); ok {
			failures = append(failures, fmt.Sprintf("fact %q = %s, want absent", k, v))
		}
	}
	if ex.Actions != nil && !slices.Equal(actions, ex.Actions) {
		failures = append(failures, fmt.Sprintf("actions = %v, want %v", actions, ex.Actions))
	}
	for _, a := range ex.NotActions {
		if slices.Contains(actions, a) {
			failures = append(failures, fmt.Sprintf("action %q dispatched, want not dispatched", a))
		}
	}
	for _, id := range ex.Fired {
		if !slices.Contains(fired, id) {
			failures = append(failures, fmt.Sprintf("rule %q did not fire", id))
		}
	}
	if ex.Overflow != nil && *ex.Overflow != overflow {
		failures = append(failures, fmt.Sprintf("overflow = %v, want %v", overflow, *ex.Overflow))
	}
	return failures
}
