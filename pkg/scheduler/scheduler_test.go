package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/telemetry/logging"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
	err    error
	ch     chan string
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{ch: make(chan string, 16)}
}

func (e *recordingEmitter) Emit(name string, payload map[string]string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.mu.Lock()
	e.events = append(e.events, name+":"+payload["reason"])
	e.mu.Unlock()
	e.ch <- name
	return "id-" + name, nil
}

func TestScheduler_Add(t *testing.T) {
	tests := []struct {
		name    string
		sc      config.ScheduleConfig
		wantErr bool
	}{
		{"standard", config.ScheduleConfig{Name: "daily", Cron: "0 3 * * *", Event: "reset"}, false},
		{"descriptor", config.ScheduleConfig{Cron: "@every 5s", Event: "regen"}, false},
		{"bad expression", config.ScheduleConfig{Cron: "every tuesday", Event: "x"}, true},
		{"missing event", config.ScheduleConfig{Cron: "@hourly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(newRecordingEmitter(), logging.Discard())
			if err := s.Add(tt.sc); (err != nil) != tt.wantErr {
				t.Errorf("Add() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_DuplicateName(t *testing.T) {
	s := New(newRecordingEmitter(), logging.Discard())
	err := s.AddAll([]config.ScheduleConfig{
		{Cron: "@hourly", Event: "regen"},
		{Cron: "@daily", Event: "regen"},
	})
	if err == nil {
		t.Error("expected duplicate name error")
	}
	if got := len(s.Entries()); got != 1 {
		t.Errorf("got %d entries, want 1", got)
	}
}

func TestScheduler_TriggerAndRemove(t *testing.T) {
	em := newRecordingEmitter()
	s := New(em, logging.Discard())
	if err := s.Add(config.ScheduleConfig{Name: "nightly", Cron: "@daily", Event: "reset", Payload: map[string]string{"reason": "nightly"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.Trigger("nightly"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if len(em.events) != 1 || em.events[0] != "reset:nightly" {
		t.Errorf("events = %v", em.events)
	}
	if err := s.Trigger("missing"); err == nil {
		t.Error("Trigger() of unknown schedule should fail")
	}

	em.err = errors.New("queue full")
	if err := s.Trigger("nightly"); err == nil {
		t.Error("emit error not returned")
	}

	if !s.Remove("nightly") || s.Remove("nightly") {
		t.Error("Remove() should succeed exactly once")
	}
}

func TestScheduler_StartEmits(t *testing.T) {
	em := newRecordingEmitter()
	s := New(em, logging.Discard())
	if err := s.Add(config.ScheduleConfig{Name: "regen", Cron: "@every 1s", Event: "regen_tick"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	if !s.IsRunning() {
		t.Fatal("scheduler not running")
	}
	if next := s.Entries()[0].Next; next.IsZero() {
		t.Error("Next not set after Start")
	}

	select {
	case ev := <-em.ch:
		if ev != "regen_tick" {
			t.Errorf("emitted %q", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no scheduled emit")
	}

	cancel()
	deadline := time.Now().Add(5 * time.Second)
	for s.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not stop on cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
