package engine

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"mercator-hq/fre/pkg/fact"
)

// Action is one action id dispatched by a fired rule.
type Action struct {
	ID     string
	RuleID string
	Event  Event

	// Facts is a snapshot of the visible facts after the rule's
	// modifications, including the event payload facts.
	Facts fact.Reader
}

// ActionDispatcher hands actions to the host. The engine does not interpret
// action ids and never waits for their effects; a returned error is
// reported to observers and does not undo the rule.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, a Action) error
}

// ActionHandler handles one action.
type ActionHandler func(ctx context.Context, a Action) error

// DispatcherFunc adapts a function to ActionDispatcher.
type DispatcherFunc func(ctx context.Context, a Action) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, a Action) error {
	return f(ctx, a)
}

// ActionRegistry routes actions to handlers by id. Lookup tries the exact
// id, then the prefix before the first ':' (so "sound:explosion" reaches a
// "sound" handler), then the default handler.
type ActionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
	fallback ActionHandler
}

// NewActionRegistry returns an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{handlers: make(map[string]ActionHandler)}
}

// Register installs h for id, replacing any previous handler.
func (r *ActionRegistry) Register(id string, h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// SetDefault installs the handler used when no id or prefix matches.
func (r *ActionRegistry) SetDefault(h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Handler resolves the handler for id.
func (r *ActionRegistry) Handler(id string) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[id]; ok {
		return h, true
	}
	if prefix, _, ok := strings.Cut(id, ":"); ok {
		if h, ok := r.handlers[prefix]; ok {
			return h, true
		}
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// IDs returns the registered ids, sorted.
func (r *ActionRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Dispatch runs the handler for a.ID.
func (r *ActionRegistry) Dispatch(ctx context.Context, a Action) error {
	h, ok := r.Handler(a.ID)
	if !ok {
		return ErrNoActionHandler
	}
	return h(ctx, a)
}

// LogAction returns a handler that logs the action at Info. The text after
// "log:" becomes the message.
func LogAction(logger *slog.Logger) ActionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, a Action) error {
		msg := "rule action"
		if _, rest, ok := strings.Cut(a.ID, ":"); ok && rest != "" {
			msg = rest
		}
		logger.InfoContext(ctx, msg,
			"action", a.ID,
			"rule_id", a.RuleID,
			"event", a.Event.Name,
			"event_id", a.Event.ID,
		)
		return nil
	}
}

// ActionRecorder is a default handler that remembers every dispatched
// action. The scenario runner and tests use it.
type ActionRecorder struct {
	mu      sync.Mutex
	actions []Action
}

// Handle records a.
func (r *ActionRecorder) Handle(_ context.Context, a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	return nil
}

// IDs returns the recorded action ids in dispatch order.
func (r *ActionRecorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.actions))
	for i, a := range r.actions {
		ids[i] = a.ID
	}
	return ids
}

// Actions returns a copy of the recorded actions.
func (r *ActionRecorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.actions)
}

// Reset forgets recorded actions.
func (r *ActionRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = nil
}
