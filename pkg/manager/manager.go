package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/rule"
)

// ErrNotLoaded is reported by HealthCheck before the first successful load.
var ErrNotLoaded = errors.New("no rule sets installed")

// Manager loads rule sets from a source into a target and keeps them up to
// date. A load either installs every set of the source or nothing: the last
// good sets stay active when parsing, validation or registration fails.
type Manager struct {
	source   engine.RuleSource
	target   Target
	debounce time.Duration
	logger   *slog.Logger
	hooks    []func(ReloadResult)

	// loadMu serializes loads so that reloads never interleave.
	loadMu sync.Mutex

	mu     sync.RWMutex
	status Status

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithDebounce sets the quiet period before a watched change reloads.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) { m.debounce = d }
}

// WithReloadHook registers fn to run after every load attempt.
func WithReloadHook(fn func(ReloadResult)) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, fn) }
}

// New creates a manager that loads rule sets from source into target,
// usually an *engine.Engine. Nothing is loaded until Load, Reload or Watch
// is called. Both arguments are required.
func New(source engine.RuleSource, target Target, opts ...Option) (*Manager, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target cannot be nil")
	}
	m := &Manager{
		source:   source,
		target:   target,
		debounce: config.DefaultRulesDebounce,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// Load loads the source and installs the sets immediately. Use it before
// the engine starts ticking.
func (m *Manager) Load(ctx context.Context) error {
	return m.load(ctx, m.target.LoadRuleSets, "Loading rule sets")
}

// Reload loads the source and stages the sets for the next tick. It is safe
// to call while another goroutine ticks the engine.
func (m *Manager) Reload(ctx context.Context) error {
	return m.load(ctx, m.target.StageRuleSets, "Reloading rule sets")
}

func (m *Manager) load(ctx context.Context, install func([]*rule.Set) error, msg string) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	start := time.Now()
	m.logger.InfoContext(ctx, msg)

	sets, err := m.source.LoadRuleSets(ctx)
	if err == nil && len(sets) == 0 {
		err = errors.New("source has no rule sets")
	}
	if err == nil {
		err = install(sets)
	}

	duration := time.Since(start)
	m.mu.Lock()
	if err != nil {
		m.status.LastError = err
	} else {
		m.status = Status{
			Version:  m.status.Version + 1,
			LoadedAt: time.Now(),
			RuleSets: len(sets),
			Rules:    countRules(sets),
			Files:    sourceFiles(sets),
		}
	}
	res := ReloadResult{Version: m.status.Version, Duration: duration, Rules: m.status.Rules, Err: err}
	m.mu.Unlock()

	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load rule sets, keeping previous rule sets",
			"error", err,
			"version", res.Version,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.logger.InfoContext(ctx, "Rule sets loaded successfully",
			"rule_sets", len(sets),
			"rules", res.Rules,
			"version", res.Version,
			"duration_ms", duration.Milliseconds(),
		)
	}
	for _, hook := range m.hooks {
		hook(res)
	}
	return err
}

// ValidateDryRun loads and validates the source without installing anything.
func (m *Manager) ValidateDryRun(ctx context.Context) ([]*rule.Set, error) {
	sets, err := m.source.LoadRuleSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule set validation failed: %w", err)
	}
	m.logger.InfoContext(ctx, "Dry-run validation successful", "rule_sets", len(sets))
	return sets, nil
}

// Status returns the current load status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	s.Files = append([]string(nil), s.Files...)
	return s
}

// HealthCheck fails before the first load and after a failed reload.
func (m *Manager) HealthCheck(context.Context) error {
	s := m.Status()
	switch {
	case s.Version == 0:
		return ErrNotLoaded
	case s.LastError != nil:
		return fmt.Errorf("last reload failed: %w", s.LastError)
	}
	return nil
}

// Watch reloads whenever the source reports a change, after the debounce
// interval. It blocks until ctx is cancelled or Close is called.
func (m *Manager) Watch(ctx context.Context) error {
	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchMu.Unlock()
		return fmt.Errorf("watch already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.watchCancel = cancel
	m.watchMu.Unlock()

	defer func() {
		m.watchMu.Lock()
		m.watchCancel = nil
		m.watchMu.Unlock()
		cancel()
	}()

	events, err := m.source.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch rule source: %w", err)
	}

	debouncer := NewDebouncer(m.debounce)
	defer debouncer.Stop()

	m.logger.InfoContext(ctx, "Watching rule source", "debounce_ms", m.debounce.Milliseconds())
	for {
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "Rule source watcher stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Error != nil {
				m.logger.WarnContext(ctx, "Rule source watch error", "error", ev.Error)
				continue
			}
			m.logger.DebugContext(ctx, "Rule source changed", "type", ev.Type, "path", ev.Path)
			debouncer.Trigger(func() {
				// The error is logged and reported to hooks by load.
				_ = m.Reload(ctx)
			})
		}
	}
}

// Close stops a running Watch.
func (m *Manager) Close() error {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	if m.watchCancel != nil {
		m.watchCancel()
	}
	return nil
}

func countRules(sets []*rule.Set) int {
	n := 0
	for _, s := range sets {
		n += len(s.Rules)
	}
	return n
}

func sourceFiles(sets []*rule.Set) []string {
	var files []string
	for _, s := range sets {
		if s.SourceFile != "" {
			files = append(files, s.SourceFile)
		}
	}
	return files
}
