package engine

import (
	"context"
	"strings"
	"time"

	"mercator-hq/fre/pkg/fact"
	"mercator-hq/fre/pkg/rule"
)

// Event is a queued signal. Events are processed once and then discarded.
type Event struct {
	// ID is a unique identifier assigned at intake.
	ID string

	// Name selects the rules that handle the event.
	Name string

	// Payload values are visible to the handling rules as String facts
	// named event.<key>.
	Payload map[string]string

	// Source is the id of the rule whose output produced the event, or
	// empty for events emitted from outside the engine.
	Source string

	// Depth is the drain pass that produced the event; 0 for external events.
	Depth int
}

// Firing records one rule activation whose condition held and whose
// modifications applied.
type Firing struct {
	Tick    uint64
	Pass    int
	RuleID  string
	Event   Event
	Changed bool     // at least one modification changed a stored value
	Actions []string // action ids dispatched
	Outputs []string // output events queued
}

// TickReport summarizes one call to Tick.
type TickReport struct {
	Tick     uint64
	Passes   int
	Events   int // events processed across all passes
	Fired    []Firing
	Errors   []*RuleError
	Overflow *CascadeDepthError
	Started  time.Time
	Duration time.Duration
}

// FiredRules returns the ids of the rules that fired, in order.
func (r *TickReport) FiredRules() []string {
	ids := make([]string, len(r.Fired))
	for i, f := range r.Fired {
		ids[i] = f.RuleID
	}
	return ids
}

// Actions returns every dispatched action id, in dispatch order.
func (r *TickReport) Actions() []string {
	var out []string
	for _, f := range r.Fired {
		out = append(out, f.Actions...)
	}
	return out
}

// HasOverflow reports whether the tick hit the cascade limit.
func (r *TickReport) HasOverflow() bool {
	return r.Overflow != nil
}

// RuleSource provides rule sets to the engine.
type RuleSource interface {
	// LoadRuleSets loads all rule sets from the source.
	LoadRuleSets(ctx context.Context) ([]*rule.Set, error)

	// Watch sends an event whenever the source may have changed. The
	// channel is closed when ctx is cancelled.
	Watch(ctx context.Context) (<-chan SourceEvent, error)
}

// SourceEvent reports a change in a rule source.
type SourceEvent struct {
	// Type is the event type ("created", "modified", "deleted").
	Type SourceEventType

	// Path is the file path that changed.
	Path string

	// Error is any error that occurred while watching.
	Error error
}

// SourceEventType represents the type of rule source event.
type SourceEventType string

const (
	SourceEventCreated  SourceEventType = "created"
	SourceEventModified SourceEventType = "modified"
	SourceEventDeleted  SourceEventType = "deleted"
)

// payloadReader exposes an event payload as event.<key> facts ahead of the
// fact database.
type payloadReader struct {
	payload map[string]string
	next    fact.Reader
}

// EventFactPrefix prefixes payload keys when they are read as facts.
const EventFactPrefix = "event."

func (r payloadReader) Get(key string) (fact.Value, bool) {
	if k, ok := strings.CutPrefix(key, EventFactPrefix); ok {
		if v, ok := r.payload[k]; ok {
			return fact.String(v), true
		}
	}
	return r.next.Get(key)
}

func readerFor(ev Event, db fact.Reader) fact.Reader {
	if len(ev.Payload) == 0 {
		return db
	}
	return payloadReader{payload: ev.Payload, next: db}
}
