package source

import (
	"context"
	"slices"
	"sync"

	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/rule"
)

// MemorySource serves rule sets held in memory.
type MemorySource struct {
	mu       sync.RWMutex
	sets     []*rule.Set
	watchers []chan engine.SourceEvent
}

// NewMemorySource creates an in-memory rule source.
func NewMemorySource(sets ...*rule.Set) *MemorySource {
	return &MemorySource{sets: sets}
}

// LoadRuleSets returns a copy of the stored set list.
func (s *MemorySource) LoadRuleSets(ctx context.Context) ([]*rule.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sets), nil
}

// Watch returns a channel that receives a modified event after every
// SetRuleSets. The channel is closed when ctx is cancelled.
func (s *MemorySource) Watch(ctx context.Context) (<-chan engine.SourceEvent, error) {
	ch := make(chan engine.SourceEvent, 1)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.watchers = slices.DeleteFunc(s.watchers, func(c chan engine.SourceEvent) bool { return c == ch })
		close(ch)
	}()
	return ch, nil
}

// SetRuleSets replaces the stored sets and notifies watchers. A watcher
// that has not consumed the previous notification is not sent another.
func (s *MemorySource) SetRuleSets(sets []*rule.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = sets
	for _, ch := range s.watchers {
		select {
		case ch <- engine.SourceEvent{Type: engine.SourceEventModified, Path: "memory"}:
		default:
		}
	}
}
