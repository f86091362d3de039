package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/engine"
)

// Collector records engine and rule loading metrics. It implements
// engine.Observer, so it can be attached to an engine directly or through
// an engine.MultiObserver.
//
// Metrics (with the default "fre" namespace):
//   - fre_ticks_total: completed ticks
//   - fre_tick_duration_seconds: tick duration
//   - fre_tick_passes: drain passes per tick
//   - fre_events_processed_total: events taken from the queue
//   - fre_rule_firings_total: firings by rule id
//   - fre_rule_errors_total: rule errors by phase and kind
//   - fre_actions_dispatched_total: actions by id
//   - fre_cascade_overflows_total: ticks that hit the depth limit
//   - fre_rule_set_reloads_total: rule set loads by result
//   - fre_rules_loaded: rules currently installed
type Collector struct {
	engine.NopObserver

	registry *prometheus.Registry

	ticksTotal      prometheus.Counter
	tickDuration    prometheus.Histogram
	tickPasses      prometheus.Histogram
	eventsProcessed prometheus.Counter
	firingsTotal    *prometheus.CounterVec
	ruleErrors      *prometheus.CounterVec
	actionsTotal    *prometheus.CounterVec
	overflowsTotal  prometheus.Counter
	reloadsTotal    *prometheus.CounterVec
	reloadDuration  prometheus.Histogram
	rulesLoaded     prometheus.Gauge
}

// NewCollector creates and registers the metrics. A nil registry creates a
// fresh one that also carries the Go runtime and process collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	namespace := config.DefaultMetricsNamespace
	if cfg != nil && cfg.Namespace != "" {
		namespace = cfg.Namespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of completed ticks",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of a tick in seconds",
			// Ticks are expected to stay well under a frame (16ms)
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to 160ms
		}),
		tickPasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_passes",
			Help:      "Number of drain passes per tick",
			Buckets:   prometheus.LinearBuckets(1, 1, 16),
		}),
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of events processed",
		}),
		firingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_firings_total",
			Help:      "Total number of rule firings",
		}, []string{"rule_id"}),
		ruleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_errors_total",
			Help:      "Total number of rule errors",
		}, []string{"phase", "kind"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dispatched_total",
			Help:      "Total number of dispatched actions",
		}, []string{"action"}),
		overflowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_overflows_total",
			Help:      "Total number of ticks that exceeded the cascade depth",
		}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_set_reloads_total",
			Help:      "Total number of rule set loads",
		}, []string{"result"}),
		reloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_set_reload_duration_seconds",
			Help:      "Duration of rule set loads in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Number of rules currently installed",
		}),
	}

	registry.MustRegister(
		c.ticksTotal,
		c.tickDuration,
		c.tickPasses,
		c.eventsProcessed,
		c.firingsTotal,
		c.ruleErrors,
		c.actionsTotal,
		c.overflowsTotal,
		c.reloadsTotal,
		c.reloadDuration,
		c.rulesLoaded,
	)
	return c
}

func (c *Collector) RuleFired(_ context.Context, f engine.Firing) {
	c.firingsTotal.WithLabelValues(f.RuleID).Inc()
	for _, a := range f.Actions {
		c.actionsTotal.WithLabelValues(a).Inc()
	}
}

func (c *Collector) RuleError(_ context.Context, err *engine.RuleError) {
	c.ruleErrors.WithLabelValues(string(err.Phase), engine.Kind(err)).Inc()
}

func (c *Collector) CascadeOverflow(context.Context, *engine.CascadeDepthError) {
	c.overflowsTotal.Inc()
}

func (c *Collector) TickCompleted(_ context.Context, r *engine.TickReport) {
	c.ticksTotal.Inc()
	c.tickDuration.Observe(r.Duration.Seconds())
	c.tickPasses.Observe(float64(r.Passes))
	c.eventsProcessed.Add(float64(r.Events))
}

// RecordReload records one rule set load. rules is the number of installed
// rules after the load and is ignored when err is non-nil.
func (c *Collector) RecordReload(duration time.Duration, rules int, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	} else {
		c.rulesLoaded.Set(float64(rules))
	}
	c.reloadsTotal.WithLabelValues(result).Inc()
	c.reloadDuration.Observe(duration.Seconds())
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
