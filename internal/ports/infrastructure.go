package ports

import (
	"context"
	"time"
)

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus,
// OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like runs, conflicts and warnings.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like ranked or excluded submissions.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like composite scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// ConfigLoader defines the interface for loading configuration.
// Implementations could read from files, environment variables,
// or a combination of sources.
type ConfigLoader interface {
	// Load reads configuration from the underlying source.
	// It should populate the provided configuration struct.
	// The config parameter should be a pointer to a struct.
	//
	// Example:
	//
	//	var config Config
	//	err := loader.Load(ctx, &config)
	Load(ctx context.Context, config any) error
}
