// Package metrics exposes Prometheus metrics for the fre engine.
//
// The Collector implements engine.Observer and records tick, firing, error
// and overflow counts; the rule set manager reports loads through
// RecordReload. Server serves the registry over HTTP together with the
// health probes.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	eng, _ := engine.New(engCfg, engine.WithObserver(collector))
//	srv, _ := metrics.NewServer(&cfg.Telemetry.Metrics, collector, checker, logger)
//	srv.Start()
//	defer srv.Shutdown(ctx)
package metrics
