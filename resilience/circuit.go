package resilience

import (
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is letting a bounded number of
	// trial calls through to probe recovery.
	StateHalfOpen
	// StateForcedOpen is an operator-set open state. It behaves like
	// StateOpen but ignores the automatic transition timer until Reset.
	StateForcedOpen
	// StateForcedHalfOpen is an operator-set half-open state. Trial
	// quota applies but outcomes never move the machine until Reset.
	StateForcedHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	case StateForcedOpen:
		return "forced-open"
	case StateForcedHalfOpen:
		return "forced-half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
//
// Zero values take the documented defaults. Non-zero values outside their
// valid range are rejected by NewCircuitBreaker, never clamped.
type CircuitBreakerConfig struct {
	// FailureRateThreshold is the window failure rate percentage at or
	// above which the circuit opens. Valid: (0, 100]. Default: 50.
	FailureRateThreshold float64

	// SlowCallRateThreshold is the window slow-call rate percentage at or
	// above which the circuit opens. Valid: (0, 100]. Default: 100.
	SlowCallRateThreshold float64

	// MinimumCalls is the evaluation floor: rates are undefined until the
	// window holds at least this many calls. Default: 10.
	MinimumCalls int

	// WindowSize is the ring-buffer capacity of the sliding window.
	// Default: 100.
	WindowSize int

	// SlowCallThreshold is the duration above which a call counts as
	// slow, independent of its outcome. Default: 60 seconds.
	SlowCallThreshold time.Duration

	// WaitDuration is how long the circuit stays open before a trial
	// phase is allowed. Default: 30 seconds.
	WaitDuration time.Duration

	// HalfOpenMaxCalls is the number of trial calls admitted while
	// half-open. Default: 1.
	HalfOpenMaxCalls int

	// HalfOpenMaxWait bounds how long the half-open phase may last
	// before the circuit reverts to open without enough completed
	// trials. Default: 0 (unbounded).
	HalfOpenMaxWait time.Duration

	// CallTimeout is the fixed per-call deadline used when no adaptive
	// timeout is configured. Default: 0 (no deadline).
	CallTimeout time.Duration

	// DisableAutoTransition keeps an open circuit open until an operator
	// resets it, instead of moving to half-open after WaitDuration.
	DisableAutoTransition bool

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)
}

func (c CircuitBreakerConfig) validate() error {
	if c.FailureRateThreshold < 0 || c.FailureRateThreshold > 100 {
		return fmt.Errorf("resilience: failure rate threshold must be in (0, 100], got %v", c.FailureRateThreshold)
	}
	if c.SlowCallRateThreshold < 0 || c.SlowCallRateThreshold > 100 {
		return fmt.Errorf("resilience: slow call rate threshold must be in (0, 100], got %v", c.SlowCallRateThreshold)
	}
	if c.MinimumCalls < 0 {
		return fmt.Errorf("resilience: minimum calls must be >= 1, got %d", c.MinimumCalls)
	}
	if c.WindowSize < 0 {
		return fmt.Errorf("resilience: window size must be >= 1, got %d", c.WindowSize)
	}
	if c.HalfOpenMaxCalls < 0 {
		return fmt.Errorf("resilience: half-open max calls must be >= 1, got %d", c.HalfOpenMaxCalls)
	}
	if c.WaitDuration < 0 || c.HalfOpenMaxWait < 0 || c.CallTimeout < 0 || c.SlowCallThreshold < 0 {
		return fmt.Errorf("resilience: durations must not be negative")
	}
	return nil
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureRateThreshold == 0 {
		c.FailureRateThreshold = 50
	}
	if c.SlowCallRateThreshold == 0 {
		c.SlowCallRateThreshold = 100
	}
	if c.MinimumCalls == 0 {
		c.MinimumCalls = 10
	}
	if c.WindowSize == 0 {
		c.WindowSize = 100
	}
	if c.SlowCallThreshold == 0 {
		c.SlowCallThreshold = 60 * time.Second
	}
	if c.WaitDuration == 0 {
		c.WaitDuration = 30 * time.Second
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

// CircuitBreaker implements the circuit breaker pattern over a sliding
// window of recent call outcomes.
//
// Automatic transitions happen synchronously on outcome reports and lazily
// on admission checks; there is no background timer.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	window *slidingWindow

	mu       sync.Mutex
	state    State
	openedAt time.Time

	// Trial accounting for the half-open phase.
	halfOpenAt    time.Time
	trialAdmitted int
	trialDone     int
	trialFailed   int
	trialSlow     int

	// Cumulative counters. They survive window eviction and are cleared
	// only by Reset.
	totalCalls      int64
	successfulCalls int64
	failedCalls     int64
	slowCalls       int64
}

// NewCircuitBreaker creates a new circuit breaker.
// Invalid configuration is a construction-time error, never clamped.
func NewCircuitBreaker(config CircuitBreakerConfig) (*CircuitBreaker, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	return &CircuitBreaker{
		config: config,
		window: newSlidingWindow(config.WindowSize, config.MinimumCalls, config.SlowCallThreshold),
		state:  StateClosed,
	}, nil
}

// Allow reports whether a call may proceed. While half-open it reserves
// one of the trial slots, so callers that are admitted must report an
// outcome exactly once.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()

	switch cb.state {
	case StateOpen, StateForcedOpen:
		return ErrCircuitOpen
	case StateHalfOpen, StateForcedHalfOpen:
		if cb.trialAdmitted >= cb.config.HalfOpenMaxCalls {
			return ErrCircuitOpen
		}
		cb.trialAdmitted++
	}
	return nil
}

// OnSuccess records a successful call with its observed duration.
func (cb *CircuitBreaker) OnSuccess(duration time.Duration) {
	cb.record(OutcomeSuccess, duration)
}

// OnFailure records a failed call with its observed duration.
func (cb *CircuitBreaker) OnFailure(duration time.Duration) {
	cb.record(OutcomeFailure, duration)
}

// OnTimeout records a call whose deadline elapsed. Timeouts count as
// failures; whether they also count as slow depends only on the observed
// duration versus the slow-call threshold.
func (cb *CircuitBreaker) OnTimeout(duration time.Duration) {
	cb.record(OutcomeTimeout, duration)
}

// RecordRejection counts an admission rejection from an earlier pipeline
// stage against the failure rate. It only applies while closed: rejections
// while open, half-open or operator-forced never feed the window.
func (cb *CircuitBreaker) RecordRejection() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()
	if cb.state != StateClosed {
		return
	}
	cb.countLocked(OutcomeFailure, 0)
	cb.window.record(OutcomeFailure, 0)
	cb.evaluateClosedLocked()
}

func (cb *CircuitBreaker) record(outcome Outcome, duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()
	cb.countLocked(outcome, duration)
	cb.window.record(outcome, duration)

	switch cb.state {
	case StateClosed:
		cb.evaluateClosedLocked()

	case StateHalfOpen:
		cb.trialDone++
		if duration > cb.config.SlowCallThreshold {
			cb.trialSlow++
		}
		if outcome != OutcomeSuccess {
			// Fail fast on the first trial failure.
			cb.trialFailed++
			cb.toOpenLocked()
			return
		}
		if cb.trialDone >= cb.config.HalfOpenMaxCalls {
			slowRate := float64(cb.trialSlow) / float64(cb.trialDone) * 100
			if slowRate >= cb.config.SlowCallRateThreshold {
				cb.toOpenLocked()
			} else {
				cb.toClosedLocked()
			}
		}

	default:
		// Open and forced states only accumulate statistics. A call that
		// was in flight when the state changed still lands here.
	}
}

func (cb *CircuitBreaker) countLocked(outcome Outcome, duration time.Duration) {
	cb.totalCalls++
	if outcome == OutcomeSuccess {
		cb.successfulCalls++
	} else {
		cb.failedCalls++
	}
	if duration > cb.config.SlowCallThreshold {
		cb.slowCalls++
	}
}

// evaluateClosedLocked opens the circuit when the window holds enough
// calls and either rate breaches its threshold.
func (cb *CircuitBreaker) evaluateClosedLocked() {
	stats := cb.window.stats()
	if !stats.Sufficient {
		return
	}
	if stats.FailureRate >= cb.config.FailureRateThreshold || stats.SlowRate >= cb.config.SlowCallRateThreshold {
		cb.toOpenLocked()
	}
}

// advanceLocked applies elapsed-time transitions before any decision, so
// an idle circuit still moves to half-open once its wait has passed.
func (cb *CircuitBreaker) advanceLocked() {
	now := time.Now()

	switch cb.state {
	case StateOpen:
		if !cb.config.DisableAutoTransition && now.Sub(cb.openedAt) >= cb.config.WaitDuration {
			cb.toHalfOpenLocked()
		}
	case StateHalfOpen:
		if cb.config.HalfOpenMaxWait > 0 &&
			cb.trialDone < cb.config.HalfOpenMaxCalls &&
			now.Sub(cb.halfOpenAt) >= cb.config.HalfOpenMaxWait {
			cb.toOpenLocked()
		}
	}
}

func (cb *CircuitBreaker) toOpenLocked() {
	from := cb.state
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.notifyLocked(from, StateOpen)
}

func (cb *CircuitBreaker) toHalfOpenLocked() {
	from := cb.state
	cb.state = StateHalfOpen
	cb.halfOpenAt = time.Now()
	cb.trialAdmitted = 0
	cb.trialDone = 0
	cb.trialFailed = 0
	cb.trialSlow = 0
	cb.notifyLocked(from, StateHalfOpen)
}

func (cb *CircuitBreaker) toClosedLocked() {
	from := cb.state
	cb.state = StateClosed
	cb.window.reset()
	cb.notifyLocked(from, StateClosed)
}

func (cb *CircuitBreaker) notifyLocked(from, to State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// State returns the current circuit state, applying any elapsed
// time-based transition first.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	return cb.state
}

// ForceOpen moves the circuit to the operator-forced open state. It stays
// there, rejecting all calls and recording nothing, until Reset.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	from := cb.state
	cb.state = StateForcedOpen
	cb.notifyLocked(from, StateForcedOpen)
}

// ForceHalfOpen moves the circuit to the operator-forced half-open state.
// The trial quota applies but outcomes never move the machine until Reset.
func (cb *CircuitBreaker) ForceHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	from := cb.state
	cb.state = StateForcedHalfOpen
	cb.trialAdmitted = 0
	cb.trialDone = 0
	cb.trialFailed = 0
	cb.trialSlow = 0
	cb.notifyLocked(from, StateForcedHalfOpen)
}

// Reset returns the circuit to closed with an empty window and zeroed
// cumulative counters, clearing any operator-forced state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from := cb.state
	cb.state = StateClosed
	cb.window.reset()
	cb.trialAdmitted = 0
	cb.trialDone = 0
	cb.trialFailed = 0
	cb.trialSlow = 0
	cb.totalCalls = 0
	cb.successfulCalls = 0
	cb.failedCalls = 0
	cb.slowCalls = 0
	cb.notifyLocked(from, StateClosed)
}

// Metrics returns current circuit breaker metrics: cumulative counters
// plus rates over the live window.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()
	stats := cb.window.stats()

	return CircuitBreakerMetrics{
		State:           cb.state,
		TotalCalls:      cb.totalCalls,
		SuccessfulCalls: cb.successfulCalls,
		FailedCalls:     cb.failedCalls,
		SlowCalls:       cb.slowCalls,
		WindowCalls:     stats.Total,
		FailureRate:     stats.FailureRate,
		SlowCallRate:    stats.SlowRate,
		RatesDefined:    stats.Sufficient,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics.
//
// The call counters are cumulative since creation or the last Reset; the
// rates cover only calls still in the sliding window. RatesDefined is
// false while the window holds fewer than the minimum number of calls.
type CircuitBreakerMetrics struct {
	State           State
	TotalCalls      int64
	SuccessfulCalls int64
	FailedCalls     int64
	SlowCalls       int64
	WindowCalls     int
	FailureRate     float64
	SlowCallRate    float64
	RatesDefined    bool
}
