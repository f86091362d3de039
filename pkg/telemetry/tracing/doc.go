// Package tracing configures OpenTelemetry tracing for fre.
//
// The engine opens a "fre.tick" span per tick and a "fre.pass" span per
// drain pass. Spans are exported over OTLP/HTTP when enabled:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4318
//	    insecure: true
//	    sample_ratio: 0.1
//
// Logs written with a tick context carry the trace and span ids, see the
// logging package.
package tracing
