// Package observe provides telemetry for the resilience pipeline.
//
// It wires OpenTelemetry tracing and metrics plus a structured JSON logger
// behind one Observer, configured declaratively:
//
//	obs, err := observe.NewObserver(ctx, observe.Config{
//	    ServiceName: "checkout-client",
//	    Version:     "1.4.2",
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(ctx)
//
//	metrics, err := observe.NewMetrics(obs.Meter())
//
// Metrics records executed calls, per-stage rejections and circuit state
// transitions; the Logger interface is what the resilience manager logs
// through. Exporters cover otlp, prometheus, stdout and none.
package observe
