package journal

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/expr"
	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
	"mercator-hq/fre/pkg/telemetry/logging"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(&config.JournalConfig{Path: filepath.Join(t.TempDir(), "data", "journal.db")}, logging.Discard())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// journaledEngine builds an engine whose hit rule fires and whose broken
// rule fails with a division by zero.
func journaledEngine(t *testing.T, store *Store) *engine.Engine {
	t.Helper()
	hit := rule.New("hit", "attack").
		Modify(rule.Decrement("hp", 10).Global()).
		Do("hurt_sound").
		Emit("check")
	broken := rule.New("broken", "check").
		Modify(&rule.Modification{Kind: rule.ModDivide, Key: "hp", Value: expr.LiteralExpr(fact.Int(0))})
	echo := rule.New("echo", "loop").Emit("loop")

	actions := engine.NewActionRegistry()
	actions.SetDefault(func(context.Context, engine.Action) error { return nil })
	eng, err := engine.New(engine.DefaultConfig().WithMaxCascadeDepth(2),
		engine.WithLogger(logging.Discard()),
		engine.WithObserver(store),
		engine.WithActions(actions),
	)
	if err != nil {
		t.Fatal(err)
	}
	set := &rule.Set{Facts: map[string]fact.Value{"hp": fact.Int(100)}, Rules: []*rule.Rule{hit, broken, echo}}
	if err := eng.LoadRuleSets([]*rule.Set{set}); err != nil {
		t.Fatal(err)
	}
	return eng
}

func TestOpen(t *testing.T) {
	if _, err := Open(&config.JournalConfig{}, nil); err == nil {
		t.Error("empty path should fail")
	}
	store := openStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	// reopening an existing database keeps the schema version
	again, err := Open(&config.JournalConfig{Path: store.Path()}, logging.Discard())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	again.Close()
}

func TestStore_RecordsTick(t *testing.T) {
	store := openStore(t)
	eng := journaledEngine(t, store)
	ctx := context.Background()

	if _, err := eng.Emit("attack", map[string]string{"weapon": "sword"}); err != nil {
		t.Fatal(err)
	}
	report := eng.Tick(ctx)

	recs, err := store.Query(ctx, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	// newest first
	errRec, firing := recs[0], recs[1]
	if firing.Kind != KindFiring || firing.RuleID != "hit" || firing.Event != "attack" {
		t.Errorf("firing = %+v", firing)
	}
	if !slices.Equal(firing.Actions, []string{"hurt_sound"}) || !slices.Equal(firing.Outputs, []string{"check"}) {
		t.Errorf("firing actions/outputs = %v / %v", firing.Actions, firing.Outputs)
	}
	if !firing.Changed || firing.Tick != report.Tick || firing.EventID == "" || firing.ID == "" {
		t.Errorf("firing = %+v", firing)
	}
	if errRec.Kind != KindError || errRec.RuleID != "broken" || errRec.ErrorKind != engine.KindDivisionByZero {
		t.Errorf("error record = %+v", errRec)
	}
	if errRec.Tick != report.Tick || errRec.Phase != string(engine.PhaseModification) {
		t.Errorf("error record tick/phase = %d/%q", errRec.Tick, errRec.Phase)
	}
}

func TestStore_RecordsOverflow(t *testing.T) {
	store := openStore(t)
	eng := journaledEngine(t, store)
	ctx := context.Background()

	eng.Emit("loop", nil)
	eng.Tick(ctx)

	recs, err := store.Query(ctx, &Filter{Kind: KindOverflow})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d overflow records, want 1", len(recs))
	}
	if recs[0].RuleID != "echo" || recs[0].ErrorKind != engine.KindCascadeDepthExceeded {
		t.Errorf("overflow = %+v", recs[0])
	}

	n, err := store.Count(ctx, &Filter{Kind: KindFiring, RuleID: "echo"})
	if err != nil || n != 3 {
		t.Errorf("Count(echo firings) = %d, %v; want 3", n, err)
	}
}

func TestStore_QueryFilters(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	records := []*Record{
		{Kind: KindFiring, Tick: 1, RuleID: "a", Event: "x", RecordedAt: base},
		{Kind: KindFiring, Tick: 2, RuleID: "b", Event: "x", RecordedAt: base.Add(time.Minute)},
		{Kind: KindError, Tick: 2, RuleID: "b", Event: "y", RecordedAt: base.Add(2 * time.Minute)},
		{Kind: KindFiring, Tick: 3, RuleID: "a", Event: "y", RecordedAt: base.Add(3 * time.Minute)},
	}
	if err := store.Write(ctx, records); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	tests := []struct {
		name   string
		filter *Filter
		want   []uint64 // ticks, newest first
	}{
		{"all", &Filter{}, []uint64{3, 2, 2, 1}},
		{"rule", &Filter{RuleID: "a"}, []uint64{3, 1}},
		{"event", &Filter{Event: "y"}, []uint64{3, 2}},
		{"kind", &Filter{Kind: KindError}, []uint64{2}},
		{"since", &Filter{Since: base.Add(2 * time.Minute)}, []uint64{3, 2}},
		{"until", &Filter{Until: base.Add(time.Minute)}, []uint64{1}},
		{"limit", &Filter{Limit: 1}, []uint64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var ticks []uint64
			for _, r := range recs {
				ticks = append(ticks, r.Tick)
			}
			if !slices.Equal(ticks, tt.want) {
				t.Errorf("ticks = %v, want %v", ticks, tt.want)
			}
		})
	}
}

func TestFilter_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		filter Filter
		valid  bool
	}{
		{"empty", Filter{}, true},
		{"unknown kind", Filter{Kind: "warning"}, false},
		{"negative limit", Filter{Limit: -1}, false},
		{"huge limit", Filter{Limit: MaxLimit + 1}, false},
		{"inverted range", Filter{Since: now, Until: now.Add(-time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if (err == nil) != tt.valid {
				t.Errorf("Validate() error = %v, valid %v", err, tt.valid)
			}
			if err != nil && !errors.Is(err, ErrInvalidFilter) {
				t.Errorf("error %v does not wrap ErrInvalidFilter", err)
			}
		})
	}
}

func TestStore_Prune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	if err := store.Write(ctx, []*Record{
		{Kind: KindFiring, Event: "x", RecordedAt: old},
		{Kind: KindFiring, Event: "x"},
	}); err != nil {
		t.Fatal(err)
	}

	n, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Errorf("Prune() = %d, %v; want 1", n, err)
	}
	if left, _ := store.Count(ctx, nil); left != 1 {
		t.Errorf("%d records left, want 1", left)
	}
}

func TestStore_ClosedDatabase(t *testing.T) {
	store := openStore(t)
	store.Close()

	_, err := store.Query(context.Background(), nil)
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("Query() error = %v, want *StorageError", err)
	}
	if serr.Op != "query" {
		t.Errorf("Op = %q, want query", serr.Op)
	}
}
