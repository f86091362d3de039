package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
)

// Engine evaluates rules against a layered fact database in response to
// events.
//
// Emit and StageRuleSets are safe for concurrent use. Every other method,
// Tick in particular, must be called from one goroutine at a time; the
// host serializes them, typically with one Tick per frame.
type Engine struct {
	config   *Config
	logger   *slog.Logger
	observer Observer
	actions  ActionDispatcher
	tracer   trace.Tracer

	// mu guards the intake queue and the staged rule sets.
	mu      sync.Mutex
	pending []Event
	staged  *stagedSets

	db       *fact.LayeredDatabase
	registry *rule.Registry
	sets     []*rule.Set
	contexts []rule.Scope
	tick     uint64
}

type stagedSets struct {
	sets     []*rule.Set
	registry *rule.Registry
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithObserver sets the observer. The default logs through the engine
// logger.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithActions sets the action dispatcher. The default is an ActionRegistry
// with the built-in "log" handler.
func WithActions(d ActionDispatcher) Option {
	return func(e *Engine) { e.actions = d }
}

// WithTracer records a span per tick and per drain pass.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithDatabase uses db instead of a new empty database.
func WithDatabase(db *fact.LayeredDatabase) Option {
	return func(e *Engine) { e.db = db }
}

// New creates an engine with no rules and an empty fact database. A nil
// config uses DefaultConfig; an invalid one is rejected with
// ErrInvalidConfig. Options left unset fall back to slog.Default, a
// LogObserver and an ActionRegistry that only knows "log".
//
// Load rules with LoadRuleSets before the first Tick.
func New(config *Config, opts ...Option) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{
		config:   config,
		registry: rule.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.observer == nil {
		e.observer = NewLogObserver(e.logger)
	}
	if e.actions == nil {
		reg := NewActionRegistry()
		reg.Register("log", LogAction(e.logger))
		e.actions = reg
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("")
	}
	if e.db == nil {
		e.db = fact.NewLayeredDatabase()
	}
	return e, nil
}

// Facts returns the engine's fact database. Hosts may read and write it
// between ticks.
func (e *Engine) Facts() *fact.LayeredDatabase {
	return e.db
}

// Registry returns the active rule registry.
func (e *Engine) Registry() *rule.Registry {
	return e.registry
}

// RuleSets returns the sets the active registry was built from.
func (e *Engine) RuleSets() []*rule.Set {
	return slices.Clone(e.sets)
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// LoadRuleSets replaces the active rules immediately. Either every rule is
// registered or the engine keeps its previous rules. Initial facts are
// written to the global layer for keys it does not hold yet.
func (e *Engine) LoadRuleSets(sets []*rule.Set) error {
	s, err := e.build(sets)
	if err != nil {
		return err
	}
	e.install(s)
	return nil
}

// StageRuleSets builds a replacement registry now and installs it at the
// start of the next Tick, so a reload never interleaves with a drain pass.
// A later call replaces an earlier staged set that was not installed yet.
func (e *Engine) StageRuleSets(sets []*rule.Set) error {
	s, err := e.build(sets)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.staged = s
	e.mu.Unlock()
	return nil
}

func (e *Engine) build(sets []*rule.Set) (*stagedSets, error) {
	reg, err := rule.BuildRegistry(sets, e.config.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	if _, err := rule.MergeFacts(sets); err != nil {
		return nil, err
	}
	return &stagedSets{sets: slices.Clone(sets), registry: reg}, nil
}

func (e *Engine) install(s *stagedSets) {
	for _, scope := range e.contexts {
		s.registry.ActivateScope(scope)
	}
	e.registry = s.registry
	e.sets = s.sets

	facts, _ := rule.MergeFacts(s.sets)
	seeded := 0
	for _, k := range slices.Sorted(maps.Keys(facts)) {
		if !e.db.ContainsGlobal(k) {
			e.db.SetGlobal(k, facts[k])
			seeded++
		}
	}
	e.logger.Info("rule sets installed",
		"set_count", len(s.sets),
		"rule_count", s.registry.Len(),
		"facts_seeded", seeded,
	)
}

func (e *Engine) applyStaged() {
	e.mu.Lock()
	s := e.staged
	e.staged = nil
	e.mu.Unlock()
	if s != nil {
		e.install(s)
	}
}

// Emit queues an event for the next tick and returns its id. It is safe to
// call from any goroutine, including action handlers. The payload is copied
// and exposed to the handling rules as event.<key> String facts.
//
// When MaxPendingEvents is set and the queue is full, the event is refused
// with ErrQueueFull rather than evicting older events.
func (e *Engine) Emit(name string, payload map[string]string) (string, error) {
	ev := Event{ID: uuid.NewString(), Name: name, Payload: maps.Clone(payload)}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.config.MaxPendingEvents > 0 && len(e.pending) >= e.config.MaxPendingEvents {
		return "", fmt.Errorf("%w: %d events pending, dropping %q", ErrQueueFull, len(e.pending), name)
	}
	e.pending = append(e.pending, ev)
	return ev.ID, nil
}

// Pending returns the number of queued events.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Engine) takePending() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	batch := e.pending
	e.pending = nil
	return batch
}

// requeue puts events ahead of anything emitted during the tick.
func (e *Engine) requeue(events []Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(slices.Clone(events), e.pending...)
}

// Tick processes the events pending when it starts. Output events of fired
// rules are processed in further drain passes within the same tick, up to
// MaxCascadeDepth passes after the first. Events emitted from outside
// during the tick wait for the next one.
func (e *Engine) Tick(ctx context.Context) *TickReport {
	e.applyStaged()
	e.tick++
	report := &TickReport{Tick: e.tick, Started: time.Now()}

	ctx, span := e.tracer.Start(ctx, "fre.tick", trace.WithAttributes(
		attribute.Int64("fre.tick", int64(e.tick)),
	))
	defer span.End()

	batch := e.takePending()
	for depth := 0; len(batch) > 0; depth++ {
		if depth > e.config.MaxCascadeDepth {
			e.overflow(ctx, report, batch, depth)
			span.SetStatus(codes.Error, ErrCascadeDepthExceeded.Error())
			break
		}
		batch = e.drain(ctx, report, batch, depth)
		report.Passes++
	}

	report.Duration = time.Since(report.Started)
	span.SetAttributes(
		attribute.Int("fre.passes", report.Passes),
		attribute.Int("fre.events", report.Events),
		attribute.Int("fre.fired", len(report.Fired)),
		attribute.Int("fre.errors", len(report.Errors)),
	)
	e.observer.TickCompleted(ctx, report)
	return report
}

func (e *Engine) overflow(ctx context.Context, report *TickReport, batch []Event, depth int) {
	err := &CascadeDepthError{
		Event:      batch[0].Name,
		SourceRule: batch[0].Source,
		Depth:      depth,
		Pending:    len(batch),
		Kept:       e.config.OverflowPolicy == OverflowKeep,
	}
	if err.Kept {
		e.requeue(batch)
	}
	report.Overflow = err
	e.observer.CascadeOverflow(ctx, err)
}

// drain runs one pass over batch and returns the output events it queued.
func (e *Engine) drain(ctx context.Context, report *TickReport, batch []Event, depth int) []Event {
	ctx, span := e.tracer.Start(ctx, "fre.pass", trace.WithAttributes(
		attribute.Int("fre.depth", depth),
		attribute.Int("fre.events", len(batch)),
	))
	defer span.End()

	var next []Event
	for _, ev := range batch {
		report.Events++
		facts := readerFor(ev, e.db)
		for _, r := range e.registry.RulesForEvent(ev.Name, e.contexts) {
			fired, outputs := e.activate(ctx, report, r, ev, facts, depth)
			if !fired {
				continue
			}
			next = append(next, outputs...)
			if r.ConsumeEvent {
				break
			}
		}
	}
	return next
}

// activate evaluates one rule for ev. It reports whether the rule fired and
// returns the output events to queue.
func (e *Engine) activate(ctx context.Context, report *TickReport, r *rule.Rule, ev Event, facts fact.Reader, depth int) (bool, []Event) {
	ok, err := r.Matches(facts)
	if err != nil {
		e.ruleError(ctx, report, &RuleError{RuleID: r.ID, Event: ev.Name, EventID: ev.ID, Phase: PhaseCondition, Cause: err})
		return false, nil
	}
	if !ok {
		return false, nil
	}

	changed, err := rule.ApplyAll(r.Modifications, e.db, facts)
	if err != nil {
		e.ruleError(ctx, report, &RuleError{RuleID: r.ID, Event: ev.Name, EventID: ev.ID, Phase: PhaseModification, Cause: err})
		return false, nil
	}

	firing := Firing{Tick: e.tick, Pass: depth, RuleID: r.ID, Event: ev, Changed: changed}

	if len(r.Actions) > 0 {
		snap := fact.MapReader(e.db.Snapshot())
		var view fact.Reader = snap
		if len(ev.Payload) > 0 {
			view = payloadReader{payload: ev.Payload, next: snap}
		}
		for _, id := range r.Actions {
			firing.Actions = append(firing.Actions, id)
			if err := e.actions.Dispatch(ctx, Action{ID: id, RuleID: r.ID, Event: ev, Facts: view}); err != nil {
				e.ruleError(ctx, report, &RuleError{RuleID: r.ID, Event: ev.Name, EventID: ev.ID, Phase: PhaseAction, Action: id, Cause: err})
			}
		}
	}

	var outputs []Event
	if !r.EmitOnChange || changed {
		for _, name := range r.Outputs {
			outputs = append(outputs, Event{ID: uuid.NewString(), Name: name, Source: r.ID, Depth: depth + 1})
			firing.Outputs = append(firing.Outputs, name)
		}
	}

	report.Fired = append(report.Fired, firing)
	e.observer.RuleFired(ctx, firing)
	return true, outputs
}

func (e *Engine) ruleError(ctx context.Context, report *TickReport, err *RuleError) {
	report.Errors = append(report.Errors, err)
	e.observer.RuleError(ctx, err)
}

// EnterContext pushes a local fact layer and activates the rules of scope.
// Contexts nest; the same scope may be entered more than once.
func (e *Engine) EnterContext(scope rule.Scope) error {
	if scope == "" || scope == rule.GlobalScope {
		return fmt.Errorf("cannot enter context %q", scope)
	}
	e.db.PushScope()
	e.contexts = append(e.contexts, scope)
	e.registry.ActivateScope(scope)
	e.logger.Debug("context entered", "scope", scope, "depth", len(e.contexts))
	return nil
}

// ExitContext pops the innermost context, which must be scope. Its local
// fact layer is discarded and its rules stop matching unless the scope is
// still entered further out.
func (e *Engine) ExitContext(scope rule.Scope) error {
	if len(e.contexts) == 0 {
		return fmt.Errorf("exit context %q: %w", scope, fact.ErrInvalidScopePop)
	}
	top := e.contexts[len(e.contexts)-1]
	if top != scope {
		return fmt.Errorf("exit context %q, innermost is %q: %w", scope, top, ErrContextMismatch)
	}
	if err := e.db.PopScope(); err != nil {
		return fmt.Errorf("exit context %q: %w", scope, err)
	}
	e.contexts = e.contexts[:len(e.contexts)-1]
	if !slices.Contains(e.contexts, scope) {
		e.registry.DeactivateScope(scope)
	}
	e.logger.Debug("context exited", "scope", scope, "depth", len(e.contexts))
	return nil
}

// ActiveContexts returns the entered contexts, outermost first.
func (e *Engine) ActiveContexts() []rule.Scope {
	return slices.Clone(e.contexts)
}
