package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/jonwraymond/shield/resilience"
)

// LivenessHandler returns an HTTP handler for liveness probes.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns an HTTP handler that runs the checker and maps
// its status to 200 (healthy/degraded) or 503 (unhealthy).
func ReadinessHandler(checker Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		result := checker.Check(ctx)

		w.Header().Set("Content-Type", "text/plain")
		switch result.Status {
		case StatusHealthy:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		case StatusDegraded:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("DEGRADED"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNHEALTHY"))
		}
	}
}

// ServiceResponse is the JSON shape for one service key's circuit metrics.
type ServiceResponse struct {
	State           string  `json:"state"`
	TotalCalls      int64   `json:"total_calls"`
	SuccessfulCalls int64   `json:"successful_calls"`
	FailedCalls     int64   `json:"failed_calls"`
	SlowCalls       int64   `json:"slow_calls"`
	WindowCalls     int     `json:"window_calls"`
	FailureRate     float64 `json:"failure_rate"`
	SlowCallRate    float64 `json:"slow_call_rate"`
	RatesDefined    bool    `json:"rates_defined"`
}

// MetricsResponse is the JSON response for the circuits endpoint.
type MetricsResponse struct {
	Timestamp string                     `json:"timestamp"`
	Services  map[string]ServiceResponse `json:"services"`
}

// CircuitsHandler returns an HTTP handler exposing per-service circuit
// state and metrics for operational tooling.
func CircuitsHandler(manager *resilience.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys := manager.ServiceKeys()
		sort.Strings(keys)

		response := MetricsResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Services:  make(map[string]ServiceResponse, len(keys)),
		}

		for _, key := range keys {
			m := manager.Metrics(key)
			response.Services[key] = ServiceResponse{
				State:           m.State.String(),
				TotalCalls:      m.TotalCalls,
				SuccessfulCalls: m.SuccessfulCalls,
				FailedCalls:     m.FailedCalls,
				SlowCalls:       m.SlowCalls,
				WindowCalls:     m.WindowCalls,
				FailureRate:     m.FailureRate,
				SlowCallRate:    m.SlowCallRate,
				RatesDefined:    m.RatesDefined,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
