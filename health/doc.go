// Package health exposes the resilience manager's state to operational
// tooling.
//
// BreakerChecker turns circuit breaker states into a health result: open
// circuits are unhealthy, half-open circuits degraded. The HTTP handlers
// serve liveness, readiness and a JSON dump of per-service circuit
// metrics:
//
//	checker := health.NewBreakerChecker(manager)
//	mux.HandleFunc("/healthz", health.LivenessHandler())
//	mux.HandleFunc("/readyz", health.ReadinessHandler(checker))
//	mux.HandleFunc("/circuits", health.CircuitsHandler(manager))
package health
