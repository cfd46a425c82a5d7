package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records resilience pipeline events.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records an executed call with its duration and error status.
	RecordCall(ctx context.Context, service string, duration time.Duration, err error)

	// RecordRejection records a call rejected by the named pipeline stage
	// before execution.
	RecordRejection(ctx context.Context, service, stage string)

	// RecordStateChange records a circuit breaker transition.
	RecordStateChange(ctx context.Context, service, from, to string)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	callCount    metric.Int64Counter
	errorCount   metric.Int64Counter
	rejectCount  metric.Int64Counter
	transitions  metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates a Metrics instance on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	callCount, err := meter.Int64Counter(
		"resilience.calls.total",
		metric.WithDescription("Total number of executed calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"resilience.calls.errors",
		metric.WithDescription("Total number of failed calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	rejectCount, err := meter.Int64Counter(
		"resilience.rejections.total",
		metric.WithDescription("Total number of calls rejected before execution"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"resilience.circuit.transitions",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"resilience.call.duration_ms",
		metric.WithDescription("Executed call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		callCount:    callCount,
		errorCount:   errorCount,
		rejectCount:  rejectCount,
		transitions:  transitions,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordCall(ctx context.Context, service string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("service.key", service),
		attribute.Bool("error", err != nil),
	)

	m.callCount.Add(ctx, 1, attrs)
	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("service.key", service)))
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
}

func (m *metricsImpl) RecordRejection(ctx context.Context, service, stage string) {
	m.rejectCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service.key", service),
		attribute.String("stage", stage),
	))
}

func (m *metricsImpl) RecordStateChange(ctx context.Context, service, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service.key", service),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// nopMetrics discards everything.
type nopMetrics struct{}

func (nopMetrics) RecordCall(ctx context.Context, service string, duration time.Duration, err error) {
}
func (nopMetrics) RecordRejection(ctx context.Context, service, stage string)   {}
func (nopMetrics) RecordStateChange(ctx context.Context, service, from, to string) {}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}
