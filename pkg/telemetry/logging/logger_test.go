package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"mercator-hq/fre/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"json", Config{Level: "info", Format: "json"}, false},
		{"text", Config{Level: "debug", Format: "text"}, false},
		{"defaults", Config{}, false},
		{"upper case", Config{Level: "WARN", Format: "TEXT"}, false},
		{"invalid level", Config{Level: "loud"}, true},
		{"invalid format", Config{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "fre.tick")
	defer span.End()

	ctx = WithComponent(WithRunID(ctx, "run-1"), "scheduler")
	logger.With("rule_id", "r1").InfoContext(ctx, "fired")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"run_id":    "run-1",
		"component": "scheduler",
		"rule_id":   "r1",
		"trace_id":  span.SpanContext().TraceID().String(),
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
}

func TestContextFields_Empty(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Format: "text", Writer: &buf})
	logger.InfoContext(context.Background(), "plain")
	if strings.Contains(buf.String(), "run_id") || strings.Contains(buf.String(), "trace_id") {
		t.Errorf("unexpected context fields in %q", buf.String())
	}
	if GetRunID(context.Background()) != "" || GetComponent(context.Background()) != "" {
		t.Error("empty context returned values")
	}
}

func TestFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := FromConfig(config.LoggingConfig{Level: "debug", Format: "text", AddSource: true}, &buf)
	logger, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug not enabled")
	}
	logger.Debug("x")
	if !strings.Contains(buf.String(), "source=") {
		t.Errorf("source missing from %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard logger accepts errors")
	}
}
