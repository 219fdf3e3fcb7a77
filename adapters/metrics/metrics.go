// Package metrics provides Prometheus metrics collection for schemagate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "schemagate"

// Collector holds all Prometheus metrics for schemagate.
type Collector struct {
	// Export metrics
	ExportsTotal   *prometheus.CounterVec
	ExportDuration prometheus.Histogram
	UnitsExported  *prometheus.CounterVec
	ExportFailures *prometheus.CounterVec
	SchemaTypes    prometheus.Gauge

	// Check metrics
	ChecksTotal   *prometheus.CounterVec
	SchemaChanges *prometheus.CounterVec
	DriftEntries  *prometheus.GaugeVec

	// Watch metrics
	SchemaReloads      prometheus.Counter
	SchemaReloadErrors prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ExportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total number of export runs by result",
			},
			[]string{"result"},
		),
		ExportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_duration_seconds",
				Help:      "Duration of a full export run in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		UnitsExported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_exported_total",
				Help:      "Total number of export units rendered by node kind",
			},
			[]string{"kind"},
		),
		ExportFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_failures_total",
				Help:      "Total number of per-node export failures by error type",
			},
			[]string{"type"},
		),
		SchemaTypes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "schema_types",
				Help:      "Number of type nodes in the current snapshot",
			},
		),
		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of consistency checks by outcome",
			},
			[]string{"outcome"},
		),
		SchemaChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_changes_total",
				Help:      "Total number of schema changes reported by classification",
			},
			[]string{"classification"},
		),
		DriftEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "drift_entries",
				Help:      "Drifted generated files found by the last check",
			},
			[]string{"kind"},
		),
		SchemaReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_reloads_total",
				Help:      "Total number of successful schema reloads triggered by the watcher",
			},
		),
		SchemaReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "schema_reload_errors_total",
				Help:      "Total number of failed schema reloads",
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "route"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// ObserveExport records one export run.
// unitKinds holds the kind of every successfully rendered unit, failures the
// error type of every failed node.
func (c *Collector) ObserveExport(elapsed time.Duration, types int, unitKinds, failures []string) {
	result := "ok"
	if len(failures) > 0 {
		result = "failed"
	}
	c.ExportsTotal.WithLabelValues(result).Inc()
	c.ExportDuration.Observe(elapsed.Seconds())
	c.SchemaTypes.Set(float64(types))
	for _, kind := range unitKinds {
		c.UnitsExported.WithLabelValues(kind).Inc()
	}
	for _, typ := range failures {
		c.ExportFailures.WithLabelValues(typ).Inc()
	}
}

// ObserveCheck records one consistency check.
// drift maps drift kind to entry count; a nil map leaves the drift gauges untouched.
func (c *Collector) ObserveCheck(classifications []string, breaking bool, drift map[string]int) {
	outcome := "clean"
	switch {
	case breaking:
		outcome = "breaking"
	case len(classifications) > 0:
		outcome = "compatible"
	}

	drifted := 0
	for kind, n := range drift {
		c.DriftEntries.WithLabelValues(kind).Set(float64(n))
		drifted += n
	}
	if outcome != "breaking" && drifted > 0 {
		outcome = "drift"
	}

	c.ChecksTotal.WithLabelValues(outcome).Inc()
	for _, cl := range classifications {
		c.SchemaChanges.WithLabelValues(cl).Inc()
	}
}

// ObserveConfigReload records a config reload attempt.
func (c *Collector) ObserveConfigReload(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}
