package engine

import (
	"context"
	"log/slog"
)

// Observer receives structured reports from the engine. Calls happen on the
// goroutine running Tick and must not call back into Tick, EnterContext or
// ExitContext.
type Observer interface {
	RuleFired(ctx context.Context, f Firing)
	RuleError(ctx context.Context, err *RuleError)
	CascadeOverflow(ctx context.Context, err *CascadeDepthError)
	TickCompleted(ctx context.Context, report *TickReport)
}

// NopObserver ignores every report. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) RuleFired(context.Context, Firing)                   {}
func (NopObserver) RuleError(context.Context, *RuleError)               {}
func (NopObserver) CascadeOverflow(context.Context, *CascadeDepthError) {}
func (NopObserver) TickCompleted(context.Context, *TickReport)          {}

// MultiObserver forwards every report to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) RuleFired(ctx context.Context, f Firing) {
	for _, o := range m {
		o.RuleFired(ctx, f)
	}
}

func (m MultiObserver) RuleError(ctx context.Context, err *RuleError) {
	for _, o := range m {
		o.RuleError(ctx, err)
	}
}

func (m MultiObserver) CascadeOverflow(ctx context.Context, err *CascadeDepthError) {
	for _, o := range m {
		o.CascadeOverflow(ctx, err)
	}
}

func (m MultiObserver) TickCompleted(ctx context.Context, report *TickReport) {
	for _, o := range m {
		o.TickCompleted(ctx, report)
	}
}

// LogObserver writes reports to a structured logger: firings at Debug, rule
// errors at Warn and cascade overflows at Error.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a log observer. A nil logger uses slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) RuleFired(ctx context.Context, f Firing) {
	o.logger.DebugContext(ctx, "rule fired",
		"tick", f.Tick,
		"pass", f.Pass,
		"rule_id", f.RuleID,
		"event", f.Event.Name,
		"event_id", f.Event.ID,
		"changed", f.Changed,
		"actions", f.Actions,
		"outputs", f.Outputs,
	)
}

func (o *LogObserver) RuleError(ctx context.Context, err *RuleError) {
	o.logger.WarnContext(ctx, "rule error",
		"rule_id", err.RuleID,
		"event", err.Event,
		"event_id", err.EventID,
		"phase", err.Phase,
		"kind", Kind(err),
		"error", err.Cause,
	)
}

func (o *LogObserver) CascadeOverflow(ctx context.Context, err *CascadeDepthError) {
	o.logger.ErrorContext(ctx, "cascade depth exceeded",
		"event", err.Event,
		"source_rule", err.SourceRule,
		"depth", err.Depth,
		"pending", err.Pending,
		"kept", err.Kept,
	)
}

func (o *LogObserver) TickCompleted(ctx context.Context, r *TickReport) {
	if r.Events == 0 {
		return
	}
	o.logger.DebugContext(ctx, "tick completed",
		"tick", r.Tick,
		"passes", r.Passes,
		"events", r.Events,
		"fired", len(r.Fired),
		"errors", len(r.Errors),
		"overflow", r.HasOverflow(),
		"duration", r.Duration,
	)
}
