// Package middleware provides cross-cutting concerns for the result engine.
package middleware

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/contesthub/resultengine/internal/ports"
)

// Metric names understood by PrometheusMetrics. Other names are recorded in
// the generic operation counter and state gauge.
const (
	MetricRuns           = "contest_runs_total"
	MetricWarnings       = "contest_warnings_total"
	MetricSubmissions    = "contest_submissions"
	MetricCompositeScore = "contest_composite_score"
	MetricRunLatency     = "contest_run"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks how engine runs end, how long they take, how many
// submissions they rank or exclude and the distribution of composite
// scores.
type PrometheusMetrics struct {
	runsTotal        *prometheus.CounterVec
	warningsTotal    *prometheus.CounterVec
	submissions      *prometheus.GaugeVec
	compositeScores  *prometheus.HistogramVec
	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec

	onError func(error)
}

// MetricsOption configures optional PrometheusMetrics behavior.
type MetricsOption func(*PrometheusMetrics)

// WithErrorHandler receives a *ports.MetricsError for every value that could
// not be recorded. Without a handler such values are dropped.
func WithErrorHandler(fn func(error)) MetricsOption {
	return func(pm *PrometheusMetrics) {
		pm.onError = fn
	}
}

var errNegativeCounter = errors.New("counter cannot decrease")

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string, opts ...MetricsOption) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	pm := &PrometheusMetrics{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of result computations by outcome.",
			},
			[]string{"status"},
		),
		warningsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warnings_total",
				Help:      "Data-quality warnings raised while computing results.",
			},
			[]string{"kind"},
		),
		submissions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "submissions",
				Help:      "Submissions in the latest computation of a contest by state.",
			},
			[]string{"contest_id", "state"},
		),
		compositeScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "composite_score",
				Help:      "Distribution of composite scores of ranked submissions.",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
			[]string{"contest_id"},
		),
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Execution time of engine operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of other engine events.",
			},
			[]string{"operation"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_state",
				Help:      "Current values of other engine gauges.",
			},
			[]string{"metric"},
		),
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	h, err := pm.executionLatency.GetMetricWithLabelValues(operation, labelOr(labels, "status"))
	if err != nil {
		pm.fail(operation, "RecordLatency", err)
		return
	}
	h.Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters. Negative values are rejected.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	if value < 0 {
		pm.fail(metric, "RecordCounter", errNegativeCounter)
		return
	}

	var (
		c   prometheus.Counter
		err error
	)
	switch metric {
	case MetricRuns:
		c, err = pm.runsTotal.GetMetricWithLabelValues(labelOr(labels, "status"))
	case MetricWarnings:
		c, err = pm.warningsTotal.GetMetricWithLabelValues(labelOr(labels, "kind"))
	default:
		c, err = pm.operationCounter.GetMetricWithLabelValues(metric)
	}
	if err != nil {
		pm.fail(metric, "RecordCounter", err)
		return
	}
	c.Add(value)
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	var (
		g   prometheus.Gauge
		err error
	)
	switch metric {
	case MetricSubmissions:
		g, err = pm.submissions.GetMetricWithLabelValues(labelOr(labels, "contest_id"), labelOr(labels, "state"))
	default:
		g, err = pm.systemGauges.GetMetricWithLabelValues(metric)
	}
	if err != nil {
		pm.fail(metric, "RecordGauge", err)
		return
	}
	g.Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	var (
		o   prometheus.Observer
		err error
	)
	switch metric {
	case MetricCompositeScore:
		o, err = pm.compositeScores.GetMetricWithLabelValues(labelOr(labels, "contest_id"))
	default:
		o, err = pm.executionLatency.GetMetricWithLabelValues(metric, labelOr(labels, "status"))
	}
	if err != nil {
		pm.fail(metric, "RecordHistogram", err)
		return
	}
	o.Observe(value)
}

func (pm *PrometheusMetrics) fail(metric, operation string, err error) {
	if pm.onError != nil {
		pm.onError(ports.NewMetricsError(metric, operation, err))
	}
}

func labelOr(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
