// Package telemetry groups the observability packages of fre:
//
//   - logging: slog construction and context fields (run id, component,
//     trace and span ids)
//   - metrics: a Prometheus engine.Observer and the metrics HTTP server
//   - tracing: the OpenTelemetry tracer provider behind the fre.tick and
//     fre.pass spans
//   - health: liveness and readiness probes served with the metrics
//
// Each is configured from the telemetry section of config.Config.
package telemetry
