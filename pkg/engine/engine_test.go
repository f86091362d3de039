package engine

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"

	"mercator-hq/fre/pkg/expr"
	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
)

// countingObserver counts reports by type.
type countingObserver struct {
	NopObserver
	mu        sync.Mutex
	fired     []string
	errors    []*RuleError
	overflows []*CascadeDepthError
	ticks     int
}

func (o *countingObserver) RuleFired(_ context.Context, f Firing) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fired = append(o.fired, f.RuleID)
}

func (o *countingObserver) RuleError(_ context.Context, err *RuleError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}

func (o *countingObserver) CascadeOverflow(_ context.Context, err *CascadeDepthError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overflows = append(o.overflows, err)
}

func (o *countingObserver) TickCompleted(context.Context, *TickReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks++
}

type harness struct {
	engine   *Engine
	recorder *ActionRecorder
	observer *countingObserver
}

func newHarness(t *testing.T, config *Config, sets ...*rule.Set) *harness {
	t.Helper()
	h := &harness{recorder: &ActionRecorder{}, observer: &countingObserver{}}
	actions := NewActionRegistry()
	actions.SetDefault(h.recorder.Handle)

	eng, err := New(config, WithActions(actions), WithObserver(h.observer))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := eng.LoadRuleSets(sets); err != nil {
		t.Fatalf("LoadRuleSets() error = %v", err)
	}
	h.engine = eng
	return h
}

func (h *harness) emitTick(t *testing.T, events ...string) *TickReport {
	t.Helper()
	for _, ev := range events {
		if _, err := h.engine.Emit(ev, nil); err != nil {
			t.Fatalf("Emit(%q) error = %v", ev, err)
		}
	}
	return h.engine.Tick(context.Background())
}

func combatSet() *rule.Set {
	damage := rule.New("damage", "hit").
		When(rule.When(expr.MustParse("player_health > 0"))).
		Modify(&rule.Modification{Kind: rule.ModSubtract, Key: "player_health", Value: expr.LiteralExpr(fact.Int(10))}).
		Do("hurt_sound").
		Emit("check_death")
	death := rule.New("death", "check_death").
		When(rule.Compare("player_health", expr.OpLe, fact.Int(0))).
		Modify(rule.SetValue("alive", fact.Bool(false)).Global()).
		Do("game_over").
		Emit("GameOver")
	return &rule.Set{
		Name:  "combat",
		Facts: map[string]fact.Value{"player_health": fact.Int(100), "alive": fact.Bool(true)},
		Rules: []*rule.Rule{damage, death},
	}
}

func TestEngine_GameOverAfterTenHits(t *testing.T) {
	h := newHarness(t, nil, combatSet())

	for i := 1; i <= 9; i++ {
		report := h.emitTick(t, "hit")
		if report.Passes != 2 {
			t.Fatalf("tick %d: got %d passes, want 2", i, report.Passes)
		}
	}
	if got, _ := h.engine.Facts().GetInt("player_health"); got != 10 {
		t.Fatalf("player_health = %d, want 10", got)
	}
	if slices.Contains(h.recorder.IDs(), "game_over") {
		t.Fatal("game_over dispatched before the tenth hit")
	}

	report := h.emitTick(t, "hit")
	if got, _ := h.engine.Facts().GetInt("player_health"); got != 0 {
		t.Errorf("player_health = %d, want 0", got)
	}
	if alive, _ := h.engine.Facts().GetBool("alive"); alive {
		t.Error("alive = true, want false")
	}
	if want := []string{"damage", "death"}; !slices.Equal(report.FiredRules(), want) {
		t.Errorf("fired = %v, want %v", report.FiredRules(), want)
	}
	if report.Passes != 3 {
		t.Errorf("got %d passes, want 3 (hit, check_death, GameOver)", report.Passes)
	}

	h.emitTick(t, "hit")
	if got, _ := h.engine.Facts().GetInt("player_health"); got != 0 {
		t.Errorf("player_health = %d after death, want 0", got)
	}
	count := 0
	for _, id := range h.recorder.IDs() {
		if id == "game_over" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("game_over dispatched %d times, want 1", count)
	}
}

func TestEngine_ConsumeEvent(t *testing.T) {
	tests := []struct {
		name    string
		consume bool
		want    []string
	}{
		{"consumed", true, []string{"first"}},
		{"not consumed", false, []string{"first", "second"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := rule.New("first", "use").WithPriority(10).Do("a")
			first.ConsumeEvent = tt.consume
			second := rule.New("second", "use").Do("b")
			h := newHarness(t, nil, &rule.Set{Rules: []*rule.Rule{second, first}})

			report := h.emitTick(t, "use")
			if !slices.Equal(report.FiredRules(), tt.want) {
				t.Errorf("fired = %v, want %v", report.FiredRules(), tt.want)
			}
		})
	}
}

func TestEngine_ConsumeOnlyWhenFired(t *testing.T) {
	guard := rule.New("guard", "use").WithPriority(1).
		When(rule.Compare("locked", expr.OpEq, fact.Bool(true))).
		Consume()
	open := rule.New("open", "use")
	h := newHarness(t, nil, &rule.Set{
		Facts: map[string]fact.Value{"locked": fact.Bool(false)},
		Rules: []*rule.Rule{guard, open},
	})

	if got := h.emitTick(t, "use").FiredRules(); !slices.Equal(got, []string{"open"}) {
		t.Errorf("fired = %v, want [open]", got)
	}
}

func loopSet() *rule.Set {
	return &rule.Set{Rules: []*rule.Rule{
		rule.New("echo", "ping").Modify(rule.Increment("echoes", 1).Global()).Emit("ping"),
	}}
}

func TestEngine_CascadeOverflow(t *testing.T) {
	tests := []struct {
		name        string
		policy      OverflowPolicy
		wantPending int
	}{
		{"drop", OverflowDrop, 0},
		{"keep", OverflowKeep, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig().WithMaxCascadeDepth(3).WithOverflowPolicy(tt.policy)
			h := newHarness(t, cfg, loopSet())

			report := h.emitTick(t, "ping")
			if report.Passes != 4 {
				t.Errorf("got %d passes, want 4", report.Passes)
			}
			if got, _ := h.engine.Facts().GetInt("echoes"); got != 4 {
				t.Errorf("echoes = %d, want 4", got)
			}
			if !report.HasOverflow() {
				t.Fatal("expected overflow")
			}
			if !errors.Is(report.Overflow, ErrCascadeDepthExceeded) {
				t.Errorf("overflow %v is not ErrCascadeDepthExceeded", report.Overflow)
			}
			if report.Overflow.Depth != 4 || report.Overflow.SourceRule != "echo" {
				t.Errorf("overflow = %+v, want depth 4 from echo", report.Overflow)
			}
			if len(h.observer.overflows) != 1 {
				t.Errorf("overflow reported %d times, want 1", len(h.observer.overflows))
			}
			if got := h.engine.Pending(); got != tt.wantPending {
				t.Errorf("Pending() = %d, want %d", got, tt.wantPending)
			}
		})
	}
}

func TestEngine_ZeroDepthProcessesOnlyInitialEvents(t *testing.T) {
	h := newHarness(t, DefaultConfig().WithMaxCascadeDepth(0), loopSet())

	report := h.emitTick(t, "ping", "ping")
	if report.Passes != 1 || report.Events != 2 {
		t.Errorf("got %d passes over %d events, want 1 over 2", report.Passes, report.Events)
	}
	if report.Overflow == nil || report.Overflow.Pending != 2 {
		t.Errorf("overflow = %+v, want 2 pending", report.Overflow)
	}
}

func TestEngine_EmitDuringTickWaits(t *testing.T) {
	var eng *Engine
	actions := NewActionRegistry()
	actions.Register("spawn", func(ctx context.Context, a Action) error {
		_, err := eng.Emit("spawned", nil)
		return err
	})
	eng, err := New(nil, WithActions(actions), WithObserver(NopObserver{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.LoadRuleSets([]*rule.Set{{Rules: []*rule.Rule{
		rule.New("spawner", "start").Do("spawn"),
		rule.New("child", "spawned"),
	}}}); err != nil {
		t.Fatal(err)
	}

	eng.Emit("start", nil)
	first := eng.Tick(context.Background())
	if got := first.FiredRules(); !slices.Equal(got, []string{"spawner"}) {
		t.Errorf("first tick fired %v, want [spawner]", got)
	}
	if eng.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", eng.Pending())
	}
	second := eng.Tick(context.Background())
	if got := second.FiredRules(); !slices.Equal(got, []string{"child"}) {
		t.Errorf("second tick fired %v, want [child]", got)
	}
}

func TestEngine_EventPayload(t *testing.T) {
	open := rule.New("open", "interact").
		When(rule.When(expr.MustParse(`event.target == "door"`))).
		Modify(rule.SetValue("door_open", fact.Bool(true)).Global()).
		Do("creak")
	h := newHarness(t, nil, &rule.Set{Rules: []*rule.Rule{open}})

	h.engine.Emit("interact", map[string]string{"target": "chest"})
	h.engine.Emit("interact", map[string]string{"target": "door"})
	report := h.engine.Tick(context.Background())

	if len(report.Fired) != 1 {
		t.Fatalf("got %d firings, want 1", len(report.Fired))
	}
	actions := h.recorder.Actions()
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	if v, ok := actions[0].Facts.Get("event.target"); !ok || !v.Equal(fact.String("door")) {
		t.Errorf("action sees event.target = %v, want door", v)
	}
	if v, ok := actions[0].Facts.Get("door_open"); !ok || !v.Equal(fact.Bool(true)) {
		t.Errorf("action sees door_open = %v, want true", v)
	}
	if h.engine.Facts().Contains("event.target") {
		t.Error("payload leaked into the fact database")
	}
}

func TestEngine_Contexts(t *testing.T) {
	trap := rule.New("trap", "step").Modify(rule.SetValue("trapped", fact.Bool(true)))
	set := &rule.Set{Scope: "dungeon", Rules: []*rule.Rule{trap}}
	h := newHarness(t, nil, set)

	if got := h.emitTick(t, "step").FiredRules(); len(got) != 0 {
		t.Fatalf("fired %v outside the dungeon", got)
	}

	if err := h.engine.EnterContext("dungeon"); err != nil {
		t.Fatal(err)
	}
	if got := h.emitTick(t, "step").FiredRules(); !slices.Equal(got, []string{"trap"}) {
		t.Fatalf("fired %v in the dungeon, want [trap]", got)
	}
	if !h.engine.Facts().Contains("trapped") {
		t.Fatal("trapped not set in the dungeon layer")
	}

	if err := h.engine.ExitContext("town"); !errors.Is(err, ErrContextMismatch) {
		t.Errorf("ExitContext(town) error = %v, want ErrContextMismatch", err)
	}
	if err := h.engine.ExitContext("dungeon"); err != nil {
		t.Fatal(err)
	}
	if h.engine.Facts().Contains("trapped") {
		t.Error("local fact survived leaving the context")
	}
	if got := h.emitTick(t, "step").FiredRules(); len(got) != 0 {
		t.Errorf("fired %v after leaving the dungeon", got)
	}

	err := h.engine.ExitContext("dungeon")
	if !errors.Is(err, fact.ErrInvalidScopePop) {
		t.Errorf("ExitContext() with none entered error = %v, want ErrInvalidScopePop", err)
	}
	if Kind(err) != KindInvalidScopePop {
		t.Errorf("Kind() = %q, want %q", Kind(err), KindInvalidScopePop)
	}
}

func TestEngine_NestedContextsStayActive(t *testing.T) {
	h := newHarness(t, nil, &rule.Set{Scope: "room", Rules: []*rule.Rule{rule.New("echo", "shout")}})

	h.engine.EnterContext("room")
	h.engine.EnterContext("room")
	h.engine.ExitContext("room")
	if got := h.emitTick(t, "shout").FiredRules(); !slices.Equal(got, []string{"echo"}) {
		t.Errorf("fired %v with room still entered once, want [echo]", got)
	}
	if err := h.engine.EnterContext(rule.GlobalScope); err == nil {
		t.Error("expected error entering the global scope")
	}
}

func TestEngine_ModificationRollback(t *testing.T) {
	bad := rule.New("bad", "go").Modify(
		rule.SetValue("first", fact.Int(1)).Global(),
		&rule.Modification{Kind: rule.ModDivide, Key: "hp", Layer: fact.LayerGlobal, Value: expr.LiteralExpr(fact.Int(0))},
	).Do("never").Emit("never")
	good := rule.New("good", "go").Do("ran")
	h := newHarness(t, nil, &rule.Set{
		Facts: map[string]fact.Value{"hp": fact.Int(10)},
		Rules: []*rule.Rule{bad, good},
	})

	report := h.emitTick(t, "go")
	if h.engine.Facts().Contains("first") {
		t.Error("write from failed rule was not rolled back")
	}
	if got := report.FiredRules(); !slices.Equal(got, []string{"good"}) {
		t.Errorf("fired = %v, want [good]", got)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(report.Errors))
	}
	rerr := report.Errors[0]
	if rerr.Phase != PhaseModification || rerr.RuleID != "bad" {
		t.Errorf("error = %+v, want modification error from bad", rerr)
	}
	if Kind(rerr) != KindDivisionByZero {
		t.Errorf("Kind() = %q, want %q", Kind(rerr), KindDivisionByZero)
	}
	if !slices.Equal(h.recorder.IDs(), []string{"ran"}) {
		t.Errorf("actions = %v, want [ran]", h.recorder.IDs())
	}
}

func TestEngine_ConditionErrorIsFalse(t *testing.T) {
	r := rule.New("strict", "check").When(rule.Compare("missing", expr.OpGt, fact.Int(1)))
	h := newHarness(t, nil, &rule.Set{Rules: []*rule.Rule{r}})

	report := h.emitTick(t, "check")
	if len(report.Fired) != 0 {
		t.Error("rule fired despite condition error")
	}
	if len(report.Errors) != 1 || report.Errors[0].Phase != PhaseCondition {
		t.Fatalf("errors = %v, want one condition error", report.Errors)
	}
	if Kind(report.Errors[0]) != KindUnknownFact {
		t.Errorf("Kind() = %q, want %q", Kind(report.Errors[0]), KindUnknownFact)
	}
	if len(h.observer.errors) != 1 {
		t.Errorf("observer saw %d errors, want 1", len(h.observer.errors))
	}
}

func TestEngine_NegatedComparison(t *testing.T) {
	alive := rule.New("alive", "hit").
		When(rule.When(expr.MustParse("not player_health <= 0"))).
		Do("still_standing")
	h := newHarness(t, nil, &rule.Set{
		Facts: map[string]fact.Value{"player_health": fact.Int(100)},
		Rules: []*rule.Rule{alive},
	})

	report := h.emitTick(t, "hit")
	if len(report.Errors) != 0 {
		t.Fatalf("errors = %v, want none", report.Errors)
	}
	if got := h.recorder.IDs(); !slices.Equal(got, []string{"still_standing"}) {
		t.Errorf("actions = %v, want [still_standing]", got)
	}

	h.engine.Facts().SetGlobal("player_health", fact.Int(0))
	h.recorder.Reset()
	h.emitTick(t, "hit")
	if got := h.recorder.IDs(); len(got) != 0 {
		t.Errorf("actions at 0 health = %v, want none", got)
	}
}

func TestEngine_IntegerOverflowIsRuleError(t *testing.T) {
	bump := rule.New("bump", "score").
		Modify(rule.SetValue("touched", fact.Bool(true)).Global(), rule.Increment("score", 1).Global())
	h := newHarness(t, nil, &rule.Set{
		Facts: map[string]fact.Value{"score": fact.Int(math.MaxInt64)},
		Rules: []*rule.Rule{bump},
	})

	report := h.emitTick(t, "score")
	if len(report.Fired) != 0 {
		t.Error("rule fired despite overflow")
	}
	if len(report.Errors) != 1 || report.Errors[0].Phase != PhaseModification {
		t.Fatalf("errors = %v, want one modification error", report.Errors)
	}
	if Kind(report.Errors[0]) != KindIntegerOverflow {
		t.Errorf("Kind() = %q, want %q", Kind(report.Errors[0]), KindIntegerOverflow)
	}
	if got, _ := h.engine.Facts().GetInt("score"); got != math.MaxInt64 {
		t.Errorf("score = %d, want unchanged", got)
	}
	if h.engine.Facts().Contains("touched") {
		t.Error("earlier modification was not rolled back")
	}
}

func TestEngine_EmitOnChange(t *testing.T) {
	r := rule.New("door", "push").
		Modify(&rule.Modification{Kind: rule.ModSetIfChanged, Key: "door", Layer: fact.LayerGlobal, Value: expr.LiteralExpr(fact.String("open"))}).
		Emit("door_changed")
	r.EmitOnChange = true
	h := newHarness(t, nil, &rule.Set{Rules: []*rule.Rule{r, rule.New("notice", "door_changed")}})

	first := h.emitTick(t, "push")
	if got := first.FiredRules(); !slices.Equal(got, []string{"door", "notice"}) {
		t.Errorf("first push fired %v, want [door notice]", got)
	}
	second := h.emitTick(t, "push")
	if got := second.FiredRules(); !slices.Equal(got, []string{"door"}) {
		t.Errorf("second push fired %v, want [door]", got)
	}
	if second.Fired[0].Changed {
		t.Error("second push reported a change")
	}
}

func TestEngine_ActionErrors(t *testing.T) {
	actions := NewActionRegistry()
	actions.Register("boom", func(context.Context, Action) error { return errors.New("boom") })
	eng, err := New(nil, WithActions(actions), WithObserver(NopObserver{}))
	if err != nil {
		t.Fatal(err)
	}
	eng.LoadRuleSets([]*rule.Set{{Rules: []*rule.Rule{
		rule.New("r", "go").Modify(rule.Increment("n", 1).Global()).Do("boom", "unknown"),
	}}})
	eng.Emit("go", nil)
	report := eng.Tick(context.Background())

	if len(report.Fired) != 1 {
		t.Fatal("action errors must not undo the firing")
	}
	if n, _ := eng.Facts().GetInt("n"); n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	if len(report.Errors) != 2 {
		t.Fatalf("got %d errors, want 2", len(report.Errors))
	}
	if report.Errors[0].Action != "boom" || Kind(report.Errors[0]) != KindOther {
		t.Errorf("first error = %v", report.Errors[0])
	}
	if Kind(report.Errors[1]) != KindNoActionHandler {
		t.Errorf("second error kind = %q, want %q", Kind(report.Errors[1]), KindNoActionHandler)
	}
}

func TestEngine_StageRuleSets(t *testing.T) {
	h := newHarness(t, nil, &rule.Set{
		Facts: map[string]fact.Value{"gold": fact.Int(5)},
		Rules: []*rule.Rule{rule.New("old", "tick")},
	})
	h.engine.Facts().SetGlobal("gold", fact.Int(50))

	next := &rule.Set{
		Facts: map[string]fact.Value{"gold": fact.Int(5), "level": fact.Int(1)},
		Rules: []*rule.Rule{rule.New("new", "tick")},
	}
	if err := h.engine.StageRuleSets([]*rule.Set{next}); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.engine.Registry().Get("new", rule.GlobalScope); ok {
		t.Fatal("staged rules installed before the next tick")
	}

	if got := h.emitTick(t, "tick").FiredRules(); !slices.Equal(got, []string{"new"}) {
		t.Errorf("fired %v, want [new]", got)
	}
	if gold, _ := h.engine.Facts().GetInt("gold"); gold != 50 {
		t.Errorf("gold = %d, want existing value 50", gold)
	}
	if level, _ := h.engine.Facts().GetInt("level"); level != 1 {
		t.Errorf("level = %d, want seeded 1", level)
	}
}

func TestEngine_LoadRuleSetsKeepsOldOnFailure(t *testing.T) {
	h := newHarness(t, nil, &rule.Set{Rules: []*rule.Rule{rule.New("keep", "e")}})

	dup := &rule.Set{Rules: []*rule.Rule{rule.New("x", "e"), rule.New("x", "e")}}
	err := h.engine.LoadRuleSets([]*rule.Set{dup})
	if !errors.Is(err, rule.ErrDuplicateRuleID) {
		t.Fatalf("error = %v, want ErrDuplicateRuleID", err)
	}
	if Kind(err) != KindDuplicateRuleID {
		t.Errorf("Kind() = %q", Kind(err))
	}
	if _, ok := h.engine.Registry().Get("keep", rule.GlobalScope); !ok {
		t.Error("previous rules lost after failed load")
	}

	suffix := DefaultConfig().WithDuplicatePolicy(rule.DuplicateSuffix)
	h2 := newHarness(t, suffix, dup)
	if got := h2.emitTick(t, "e").FiredRules(); !slices.Equal(got, []string{"x-0", "x-1"}) {
		t.Errorf("fired %v, want [x-0 x-1]", got)
	}
}

func TestEngine_QueueFull(t *testing.T) {
	eng, err := New(DefaultConfig().WithMaxPendingEvents(1), WithObserver(NopObserver{}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Emit("a", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Emit("b", nil); !errors.Is(err, ErrQueueFull) {
		t.Errorf("error = %v, want ErrQueueFull", err)
	}
}

func TestEngine_EmitConcurrent(t *testing.T) {
	h := newHarness(t, nil, &rule.Set{Rules: []*rule.Rule{
		rule.New("count", "inc").Modify(rule.Increment("n", 1).Global()),
	}})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				h.engine.Emit("inc", nil)
			}
		}()
	}
	wg.Wait()

	report := h.engine.Tick(context.Background())
	if report.Events != 200 {
		t.Errorf("processed %d events, want 200", report.Events)
	}
	if n, _ := h.engine.Facts().GetInt("n"); n != 200 {
		t.Errorf("n = %d, want 200", n)
	}
}

func TestEngine_EventIDs(t *testing.T) {
	eng, _ := New(nil, WithObserver(NopObserver{}))
	a, _ := eng.Emit("x", nil)
	b, _ := eng.Emit("x", nil)
	if a == "" || a == b {
		t.Errorf("event ids %q and %q are not unique", a, b)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"negative depth", DefaultConfig().WithMaxCascadeDepth(-1), true},
		{"bad overflow", DefaultConfig().WithOverflowPolicy("explode"), true},
		{"bad duplicates", DefaultConfig().WithDuplicatePolicy("ignore"), true},
		{"negative queue", DefaultConfig().WithMaxPendingEvents(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v is not ErrInvalidConfig", err)
			}
		})
	}

	if _, err := New(DefaultConfig().WithMaxCascadeDepth(-1)); err == nil {
		t.Error("New() accepted an invalid config")
	}
}
