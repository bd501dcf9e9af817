package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/contesthub/resultengine/internal/domain"
	"github.com/contesthub/resultengine/internal/ports"
)

var _ ports.RunObserver = (*OTelRunObserver)(nil)

// Run statuses reported in span attributes and metric labels.
const (
	StatusSuccess     = "success"
	StatusDryRun      = "dry_run"
	StatusConflict    = "conflict"
	StatusConfigError = "config_error"
	StatusNotFound    = "not_found"
	StatusError       = "error"
)

// OTelRunObserver traces engine runs with OpenTelemetry and forwards run
// outcomes to a metrics collector. Every run gets its own span, so one
// observer serves concurrent runs.
type OTelRunObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
	now     func() time.Time
}

// NewOTelRunObserver creates an observer using the global tracer provider.
// metrics may be nil to trace only.
func NewOTelRunObserver(metrics ports.MetricsCollector, tracerName string) *OTelRunObserver {
	return &OTelRunObserver{
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
}

// Observe implements the RunObserver interface. It starts the run span and
// returns the function that ends it.
func (o *OTelRunObserver) Observe(ctx context.Context, contestID string) (context.Context, func(*domain.ContestOutcome, error)) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "Engine.ComputeContestResults",
		trace.WithAttributes(attribute.String("contest.id", contestID)))

	return ctx, func(outcome *domain.ContestOutcome, err error) {
		defer span.End()

		status := RunStatus(outcome, err)
		span.SetAttributes(attribute.String("run.status", status))

		if o.metrics != nil {
			labels := map[string]string{"status": status}
			o.metrics.RecordLatency(MetricRunLatency, o.now().Sub(start), labels)
			o.metrics.RecordCounter(MetricRuns, 1, labels)
		}

		if err != nil {
			o.recordError(span, err)
			return
		}

		span.SetAttributes(
			attribute.Int("run.ranked", len(outcome.Ranking)),
			attribute.Int("run.awarded", len(outcome.Awarded)),
			attribute.Int("run.excluded", len(outcome.Excluded)),
			attribute.Int("run.warnings", len(outcome.Warnings)),
			attribute.Bool("run.dry_run", outcome.DryRun),
		)
		for _, w := range outcome.Warnings {
			span.AddEvent("contest.warning", trace.WithAttributes(
				attribute.String("kind", string(w.Kind)),
				attribute.String("submission_id", w.SubmissionID),
			))
		}

		o.updateMetrics(contestID, outcome)
		span.SetStatus(codes.Ok, "contest results computed")
	}
}

// recordError marks the span failed. Conflicts get their own event so
// retries are visible in traces.
func (o *OTelRunObserver) recordError(span trace.Span, err error) {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		span.AddEvent("contest.conflict", trace.WithAttributes(
			attribute.String("expected_status", string(conflict.Expected.Status)),
			attribute.Int64("expected_version", conflict.Expected.Version),
			attribute.String("actual_status", string(conflict.Actual.Status)),
			attribute.Int64("actual_version", conflict.Actual.Version),
		))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// updateMetrics sends the outcome's counts to the metrics collector.
func (o *OTelRunObserver) updateMetrics(contestID string, outcome *domain.ContestOutcome) {
	if o.metrics == nil {
		return
	}

	gauge := func(state string, n int) {
		o.metrics.RecordGauge(MetricSubmissions, float64(n), map[string]string{
			"contest_id": contestID,
			"state":      state,
		})
	}
	gauge("ranked", len(outcome.Ranking))
	gauge("awarded", len(outcome.Awarded))
	gauge("excluded", len(outcome.Excluded))

	for _, entry := range outcome.Ranking {
		o.metrics.RecordHistogram(MetricCompositeScore, entry.CompositeScore, map[string]string{"contest_id": contestID})
	}
	for _, w := range outcome.Warnings {
		o.metrics.RecordCounter(MetricWarnings, 1, map[string]string{"kind": string(w.Kind)})
	}
}

// RunStatus classifies how a run ended.
func RunStatus(outcome *domain.ContestOutcome, err error) string {
	switch {
	case err == nil && outcome != nil && outcome.DryRun:
		return StatusDryRun
	case err == nil:
		return StatusSuccess
	case errors.Is(err, domain.ErrConflict):
		return StatusConflict
	case errors.Is(err, domain.ErrInvalidConfiguration):
		return StatusConfigError
	case errors.Is(err, domain.ErrContestNotFound):
		return StatusNotFound
	default:
		return StatusError
	}
}
