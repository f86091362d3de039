package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/fre/pkg/config"
)

// Emitter queues events. *engine.Engine implements it.
type Emitter interface {
	Emit(name string, payload map[string]string) (string, error)
}

// Entry describes one registered schedule.
type Entry struct {
	Name  string
	Cron  string
	Event string
	Next  time.Time
}

type job struct {
	id       cron.EntryID
	schedule config.ScheduleConfig
}

// Scheduler emits events on cron schedules. Emitted events are processed
// by the next tick like any other external event.
type Scheduler struct {
	emitter Emitter
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	jobs    map[string]job
	running bool
}

// New creates a scheduler. Expressions use the standard five field syntax
// plus descriptors such as "@hourly" and "@every 30s".
func New(emitter Emitter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		emitter: emitter,
		cron:    cron.New(cron.WithLogger(cronLogger{logger})),
		logger:  logger,
		jobs:    make(map[string]job),
	}
}

// Add registers a schedule. Names must be unique; an empty name uses the
// event name.
func (s *Scheduler) Add(sc config.ScheduleConfig) error {
	if sc.Name == "" {
		sc.Name = sc.Event
	}
	if sc.Event == "" {
		return fmt.Errorf("schedule %q: event is required", sc.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[sc.Name]; ok {
		return fmt.Errorf("schedule %q already registered", sc.Name)
	}
	id, err := s.cron.AddFunc(sc.Cron, func() { s.emit(sc) })
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q for %q: %w", sc.Cron, sc.Name, err)
	}
	s.jobs[sc.Name] = job{id: id, schedule: sc}
	return nil
}

// AddAll registers every schedule, stopping at the first error.
func (s *Scheduler) AddAll(schedules []config.ScheduleConfig) error {
	for _, sc := range schedules {
		if err := s.Add(sc); err != nil {
			return err
		}
	}
	return nil
}

// Remove unregisters a schedule.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if ok {
		s.cron.Remove(j.id)
		delete(s.jobs, name)
	}
	return ok
}

// Start runs the schedules until Stop or until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "schedules", len(s.jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the scheduler and waits for running emissions to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger emits the event of a schedule immediately.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("schedule %q not found", name)
	}
	return s.emit(j.schedule)
}

// Entries returns the registered schedules sorted by name. Next is zero
// until the scheduler starts.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for _, name := range slices.Sorted(maps.Keys(s.jobs)) {
		j := s.jobs[name]
		out = append(out, Entry{
			Name:  name,
			Cron:  j.schedule.Cron,
			Event: j.schedule.Event,
			Next:  s.cron.Entry(j.id).Next,
		})
	}
	return out
}

func (s *Scheduler) emit(sc config.ScheduleConfig) error {
	id, err := s.emitter.Emit(sc.Event, maps.Clone(sc.Payload))
	if err != nil {
		s.logger.Error("scheduled emit failed", "schedule", sc.Name, "event", sc.Event, "error", err)
		return err
	}
	s.logger.Debug("scheduled event emitted", "schedule", sc.Name, "event", sc.Event, "event_id", id)
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
