package resilience

import (
	"sync"
	"time"
)

// AdaptiveTimeoutConfig configures the adaptive timeout.
type AdaptiveTimeoutConfig struct {
	// BaseTimeout is the lower bound of any computed deadline.
	// Default: 1 second
	BaseTimeout time.Duration

	// MaxTimeout is the upper bound of any computed deadline.
	// Default: 30 seconds
	MaxTimeout time.Duration

	// Multiplier scales the observed average latency into a deadline.
	// Default: 2.0
	Multiplier float64

	// SmoothingFactor is the EWMA weight given to each new sample.
	// Valid: (0, 1]. Default: 0.2
	SmoothingFactor float64
}

// AdaptiveTimeout derives per-call deadlines from the latency of recent
// successful calls.
//
// The estimate is an exponentially weighted moving average. Failures and
// timeouts never feed it: a timed-out call's duration says nothing about
// how fast the service answers when it does.
type AdaptiveTimeout struct {
	config AdaptiveTimeoutConfig

	mu      sync.Mutex
	average time.Duration
	samples int64
}

// NewAdaptiveTimeout creates a new adaptive timeout.
func NewAdaptiveTimeout(config AdaptiveTimeoutConfig) *AdaptiveTimeout {
	// Apply defaults
	if config.BaseTimeout <= 0 {
		config.BaseTimeout = time.Second
	}
	if config.MaxTimeout <= 0 {
		config.MaxTimeout = 30 * time.Second
	}
	if config.MaxTimeout < config.BaseTimeout {
		config.MaxTimeout = config.BaseTimeout
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.SmoothingFactor <= 0 || config.SmoothingFactor > 1 {
		config.SmoothingFactor = 0.2
	}

	return &AdaptiveTimeout{config: config}
}

// Record feeds one successful call's duration into the moving average.
func (at *AdaptiveTimeout) Record(duration time.Duration) {
	at.mu.Lock()
	defer at.mu.Unlock()

	if at.samples == 0 {
		at.average = duration
	} else {
		alpha := at.config.SmoothingFactor
		at.average = time.Duration(float64(at.average)*(1-alpha) + float64(duration)*alpha)
	}
	at.samples++
}

// Timeout returns the deadline for the next call: the scaled moving
// average clamped to [BaseTimeout, MaxTimeout]. Before the first sample it
// returns MaxTimeout, since there is no evidence yet to tighten on.
func (at *AdaptiveTimeout) Timeout() time.Duration {
	at.mu.Lock()
	defer at.mu.Unlock()

	if at.samples == 0 {
		return at.config.MaxTimeout
	}

	d := time.Duration(float64(at.average) * at.config.Multiplier)
	if d < at.config.BaseTimeout {
		return at.config.BaseTimeout
	}
	if d > at.config.MaxTimeout {
		return at.config.MaxTimeout
	}
	return d
}

// Average returns the current latency estimate and how many samples built it.
func (at *AdaptiveTimeout) Average() (time.Duration, int64) {
	at.mu.Lock()
	defer at.mu.Unlock()
	return at.average, at.samples
}

// Reset discards the latency history.
func (at *AdaptiveTimeout) Reset() {
	at.mu.Lock()
	defer at.mu.Unlock()
	at.average = 0
	at.samples = 0
}
