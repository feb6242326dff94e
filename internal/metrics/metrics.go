// Package metrics exposes Prometheus collectors for sync runs.
//
// Every Metrics value owns its own registry so tests can build as many as they
// like. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sap_sync"

// Row outcomes used as the "outcome" label of RowsTotal.
const (
	OutcomeFetched   = "fetched"
	OutcomeExcluded  = "excluded"
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
)

// Scheduler firing results used as the "result" label of SchedulerFirings.
const (
	FiringRan     = "ran"
	FiringSkipped = "skipped"
)

// Metrics holds the sync collectors and their registry.
type Metrics struct {
	registry *prometheus.Registry

	RowsTotal        *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	SchedulerFirings *prometheus.CounterVec
}

// New registers the sync collectors plus the Go and process collectors on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows seen by sync runs, by entity and outcome.",
		}, []string{"entity", "outcome"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed sync runs, by entity and status.",
		}, []string{"entity", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of sync runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"entity"}),
		SchedulerFirings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_firings_total",
			Help:      "Scheduler firings, by whether they ran or were skipped.",
		}, []string{"result"}),
	}
}

// RunObservation summarizes one finished run.
type RunObservation struct {
	Entity    string
	Status    string
	Duration  time.Duration
	Fetched   int
	Excluded  int
	Processed int
	Failed    int
}

// ObserveRun records the counters and duration of one run.
func (m *Metrics) ObserveRun(o RunObservation) {
	if m == nil {
		return
	}
	m.RowsTotal.WithLabelValues(o.Entity, OutcomeFetched).Add(float64(o.Fetched))
	m.RowsTotal.WithLabelValues(o.Entity, OutcomeExcluded).Add(float64(o.Excluded))
	m.RowsTotal.WithLabelValues(o.Entity, OutcomeProcessed).Add(float64(o.Processed))
	m.RowsTotal.WithLabelValues(o.Entity, OutcomeFailed).Add(float64(o.Failed))
	m.RunsTotal.WithLabelValues(o.Entity, o.Status).Inc()
	m.RunDuration.WithLabelValues(o.Entity).Observe(o.Duration.Seconds())
}

// ObserveFiring counts one scheduler firing.
func (m *Metrics) ObserveFiring(result string) {
	if m == nil {
		return
	}
	m.SchedulerFirings.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
