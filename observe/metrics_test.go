package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collect flushes the reader and returns all recorded metrics keyed by name.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func TestMetrics_RecordCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCall(ctx, "orders", 25*time.Millisecond, nil)
	m.RecordCall(ctx, "orders", 40*time.Millisecond, errors.New("boom"))

	collected := collect(t, reader)

	calls, ok := collected["resilience.calls.total"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("resilience.calls.total not recorded")
	}
	var total int64
	for _, dp := range calls.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("calls.total = %d, want 2", total)
	}

	errs, ok := collected["resilience.calls.errors"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("resilience.calls.errors not recorded")
	}
	if len(errs.DataPoints) != 1 || errs.DataPoints[0].Value != 1 {
		t.Errorf("calls.errors = %+v, want single point of 1", errs.DataPoints)
	}

	hist, ok := collected["resilience.call.duration_ms"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("resilience.call.duration_ms not recorded")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("duration histogram count = %d, want 2", count)
	}
}

func TestMetrics_RecordRejection(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRejection(ctx, "orders", "ratelimit")
	m.RecordRejection(ctx, "orders", "bulkhead")
	m.RecordRejection(ctx, "orders", "bulkhead")

	collected := collect(t, reader)

	rejects, ok := collected["resilience.rejections.total"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("resilience.rejections.total not recorded")
	}
	// One data point per distinct stage attribute.
	if len(rejects.DataPoints) != 2 {
		t.Fatalf("rejection attribute sets = %d, want 2", len(rejects.DataPoints))
	}
	var total int64
	for _, dp := range rejects.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("rejections.total = %d, want 3", total)
	}
}

func TestMetrics_RecordStateChange(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStateChange(ctx, "orders", "closed", "open")
	m.RecordStateChange(ctx, "orders", "open", "half_open")

	collected := collect(t, reader)

	transitions, ok := collected["resilience.circuit.transitions"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("resilience.circuit.transitions not recorded")
	}
	var total int64
	for _, dp := range transitions.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("circuit.transitions = %d, want 2", total)
	}
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	ctx := context.Background()

	// Must be safe to call without any provider.
	m.RecordCall(ctx, "orders", time.Millisecond, nil)
	m.RecordCall(ctx, "orders", time.Millisecond, errors.New("boom"))
	m.RecordRejection(ctx, "orders", "shed")
	m.RecordStateChange(ctx, "orders", "closed", "open")
}
