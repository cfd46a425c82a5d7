package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline rejections and execution failures.
// Every rejection class is distinguishable with errors.Is so callers can
// pick a fallback per class.
var (
	// ErrLoadShed is returned when the process-wide load shedder rejects a call.
	ErrLoadShed = errors.New("resilience: load shed")

	// ErrRateLimited is returned when the token bucket has no token available.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when no bulkhead slot became available.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrCircuitOpen is returned when the circuit breaker refuses admission.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrTimeout is returned when the operation's deadline elapsed before
	// it completed.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// LoadShedError reports which load signal tripped the shedder.
// It unwraps to ErrLoadShed.
type LoadShedError struct {
	// Signal names the breached signal: "cpu", "memory", "workers",
	// "response_time" or "request_rate".
	Signal string

	// Value is the observed value of the signal.
	Value float64

	// Threshold is the configured limit that was breached.
	Threshold float64
}

func (e *LoadShedError) Error() string {
	return fmt.Sprintf("resilience: load shed: %s %.2f over threshold %.2f", e.Signal, e.Value, e.Threshold)
}

func (e *LoadShedError) Unwrap() error {
	return ErrLoadShed
}

// BulkheadError reports how a bulkhead rejection happened.
// It unwraps to ErrBulkheadFull.
type BulkheadError struct {
	// WaitTimeout is true when a bounded wait for a slot expired, false
	// when the bulkhead rejected immediately.
	WaitTimeout bool
}

func (e *BulkheadError) Error() string {
	if e.WaitTimeout {
		return "resilience: bulkhead at capacity (wait timed out)"
	}
	return "resilience: bulkhead at capacity (rejected immediately)"
}

func (e *BulkheadError) Unwrap() error {
	return ErrBulkheadFull
}
