package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/engine/source"
	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
	"mercator-hq/fre/pkg/telemetry/logging"
)

func lampSet(id string) *rule.Set {
	return &rule.Set{
		Name:       "lamp",
		SourceFile: "lamp.yaml",
		Facts:      map[string]fact.Value{"lit": fact.Bool(false)},
		Rules: []*rule.Rule{
			rule.New(id, "switch").Modify((&rule.Modification{Kind: rule.ModToggle, Key: "lit"}).Global()),
		},
	}
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(nil, engine.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	return eng
}

type failingSource struct {
	engine.RuleSource
	err error
}

func (s failingSource) LoadRuleSets(context.Context) ([]*rule.Set, error) {
	return nil, s.err
}

func TestNew_Nil(t *testing.T) {
	if _, err := New(nil, newEngine(t)); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := New(source.NewMemorySource(), nil); err == nil {
		t.Error("expected error for nil target")
	}
}

func TestManager_Load(t *testing.T) {
	eng := newEngine(t)
	var results []ReloadResult
	m, err := New(source.NewMemorySource(lampSet("lamp")), eng,
		WithLogger(logging.Discard()),
		WithReloadHook(func(r ReloadResult) { results = append(results, r) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.HealthCheck(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("HealthCheck() before load = %v, want ErrNotLoaded", err)
	}
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := eng.Registry().Get("lamp", rule.GlobalScope); !ok {
		t.Error("rule not installed")
	}
	s := m.Status()
	if s.Version != 1 || s.Rules != 1 || s.RuleSets != 1 || len(s.Files) != 1 {
		t.Errorf("Status() = %+v", s)
	}
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}
	if len(results) != 1 || results[0].Err != nil || results[0].Rules != 1 {
		t.Errorf("hook results = %+v", results)
	}
}

func TestManager_ReloadKeepsLastGood(t *testing.T) {
	eng := newEngine(t)
	src := source.NewMemorySource(lampSet("lamp"))
	m, _ := New(src, eng, WithLogger(logging.Discard()))
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	// two sets defining the same id fail registration under the default policy
	src.SetRuleSets([]*rule.Set{lampSet("dup"), lampSet("dup")})
	err := m.Reload(context.Background())
	if !errors.Is(err, rule.ErrDuplicateRuleID) {
		t.Fatalf("Reload() error = %v, want ErrDuplicateRuleID", err)
	}
	eng.Tick(context.Background())

	if _, ok := eng.Registry().Get("lamp", rule.GlobalScope); !ok {
		t.Error("previous rule set replaced after failed reload")
	}
	s := m.Status()
	if s.Version != 1 || s.LastError == nil {
		t.Errorf("Status() = %+v", s)
	}
	if err := m.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail after a failed reload")
	}
}

func TestManager_ReloadStagesForNextTick(t *testing.T) {
	eng := newEngine(t)
	src := source.NewMemorySource(lampSet("lamp"))
	m, _ := New(src, eng, WithLogger(logging.Discard()))
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.SetRuleSets([]*rule.Set{lampSet("lantern")})
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if _, ok := eng.Registry().Get("lantern", rule.GlobalScope); ok {
		t.Error("staged rules visible before the next tick")
	}

	eng.Tick(context.Background())
	if _, ok := eng.Registry().Get("lantern", rule.GlobalScope); !ok {
		t.Error("staged rules not installed by Tick")
	}
	if m.Status().Version != 2 {
		t.Errorf("Version = %d, want 2", m.Status().Version)
	}
}

func TestManager_LoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		source engine.RuleSource
	}{
		{"empty source", source.NewMemorySource()},
		{"source error", failingSource{err: errors.New("disk on fire")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := New(tt.source, newEngine(t), WithLogger(logging.Discard()))
			if err := m.Load(context.Background()); err == nil {
				t.Error("Load() should fail")
			}
			if m.Status().Version != 0 {
				t.Error("failed load bumped the version")
			}
		})
	}
}

func TestManager_ValidateDryRun(t *testing.T) {
	eng := newEngine(t)
	m, _ := New(source.NewMemorySource(lampSet("lamp")), eng, WithLogger(logging.Discard()))
	sets, err := m.ValidateDryRun(context.Background())
	if err != nil || len(sets) != 1 {
		t.Fatalf("ValidateDryRun() = %d sets, %v", len(sets), err)
	}
	if eng.Registry().Len() != 0 {
		t.Error("dry run installed rules")
	}
}

func TestManager_Watch(t *testing.T) {
	eng := newEngine(t)
	src := source.NewMemorySource(lampSet("lamp"))
	reloaded := make(chan ReloadResult, 4)
	m, _ := New(src, eng,
		WithLogger(logging.Discard()),
		WithDebounce(10*time.Millisecond),
		WithReloadHook(func(r ReloadResult) { reloaded <- r }),
	)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-reloaded

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// wait until the watcher is registered
	deadline := time.Now().Add(5 * time.Second)
	for {
		m.watchMu.Lock()
		started := m.watchCancel != nil
		m.watchMu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Watch did not start")
		}
		time.Sleep(time.Millisecond)
	}
	if err := m.Watch(ctx); err == nil {
		t.Error("second Watch() should fail")
	}

	src.SetRuleSets([]*rule.Set{lampSet("lantern")})
	select {
	case r := <-reloaded:
		if r.Err != nil || r.Version != 2 {
			t.Errorf("reload = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	calls := make(chan int, 10)
	for i := range 5 {
		d.Trigger(func() { calls <- i })
	}

	select {
	case got := <-calls:
		if got != 4 {
			t.Errorf("callback %d ran, want the last one", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("callback never ran")
	}
	select {
	case got := <-calls:
		t.Errorf("extra callback %d", got)
	case <-time.After(50 * time.Millisecond):
	}

	d.Trigger(func() { calls <- 99 })
	d.Stop()
	d.Trigger(func() { calls <- 100 })
	select {
	case got := <-calls:
		t.Errorf("callback %d ran after Stop", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebouncer_ZeroInterval(t *testing.T) {
	d := NewDebouncer(0)
	ran := false
	d.Trigger(func() { ran = true })
	if !ran {
		t.Error("zero interval should run immediately")
	}
}
