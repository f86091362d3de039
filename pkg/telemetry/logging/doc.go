// Package logging builds the structured logger used across fre.
//
// Loggers are plain *slog.Logger values. The handler returned by New adds
// fields found in the context of *Context log calls: the run id, the
// component, and the trace and span ids of an active OpenTelemetry span, so
// engine logs line up with the fre.tick spans.
//
//	logger, err := logging.New(logging.Config{Level: "debug", Format: "text"})
//	ctx := logging.WithRunID(ctx, runID)
//	logger.InfoContext(ctx, "rule sets installed", "rule_count", n)
package logging
