// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for reconciliation runs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autocat"

// Run outcomes used as the "outcome" label.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Metrics holds the reconciliation collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lockWait prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Grouping reconciliation runs by outcome",
		}, []string{"grouping", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_rows_total",
			Help:      "Membership rows changed by reconciliation",
		}, []string{"grouping", "op"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of grouping reconciliation runs",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the per-grouping lock",
			Buckets:   []float64{.0001, .001, .01, .1, 1, 5},
		}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.rows, m.duration, m.lockWait} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(grouping, outcome string, d time.Duration, deleted, inserted int64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(grouping, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())
	if deleted > 0 {
		m.rows.WithLabelValues(grouping, "deleted").Add(float64(deleted))
	}
	if inserted > 0 {
		m.rows.WithLabelValues(grouping, "inserted").Add(float64(inserted))
	}
}

// ObserveLockWait records time spent acquiring a grouping lock.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
