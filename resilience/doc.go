// Package resilience protects callers from failing or overloaded
// downstream services.
//
// The package sits between a caller and an arbitrary unit of work and
// decides, on every invocation, whether to run it, delay it, reject it
// outright, or bound its execution time. It performs no network I/O and
// never retries; retry is an outer concern composed around this package.
//
// # Primitives
//
//   - Circuit Breaker: a per-service state machine over a sliding window
//     of recent outcomes. Opens on failure or slow-call rate, probes
//     recovery with a bounded number of half-open trial calls.
//
//   - Bulkhead: bounds in-flight calls per service, with an optional
//     bounded wait for a free slot.
//
//   - Rate Limiter: a lazily refilled token bucket (steady rate + burst).
//
//   - Adaptive Timeout: derives per-call deadlines from the latency of
//     recent successful calls, clamped to a configured range.
//
//   - Load Shedder: a process-wide admission gate over CPU, memory,
//     worker, response-time and request-rate signals.
//
// # Pipeline
//
// Manager composes the primitives per service key, in a fixed order:
// load shedder, rate limiter, bulkhead, circuit breaker, then
// deadline-bounded execution. Each stage rejects with its own error so
// callers can tell the classes apart with errors.Is:
//
//	m, err := resilience.NewManager(
//	    resilience.WithDefaults(resilience.Config{
//	        MaxConcurrentCalls: 20,
//	        RatePerSecond:      50,
//	        BurstCapacity:      10,
//	    }),
//	    resilience.WithBreakerDefaults(resilience.CircuitBreakerConfig{
//	        FailureRateThreshold: 50,
//	        MinimumCalls:         10,
//	        WaitDuration:         30 * time.Second,
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = m.Execute(ctx, "billing", func(ctx context.Context) error {
//	    return callBilling(ctx)
//	})
//	switch {
//	case errors.Is(err, resilience.ErrCircuitOpen):
//	    // serve from fallback
//	case errors.Is(err, resilience.ErrRateLimited):
//	    // ask the caller to retry later
//	}
//
// Shed and rate-limit rejections reflect the caller's own congestion, so
// they never count against a circuit's failure rate; bulkhead rejections
// and execution failures do.
package resilience
