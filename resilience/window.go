package resilience

import (
	"sync"
	"time"
)

// Outcome classifies a completed call.
type Outcome int

const (
	// OutcomeSuccess means the call completed without error.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the call returned an error.
	OutcomeFailure
	// OutcomeTimeout means the call's deadline elapsed before it completed.
	// Timeouts count as failures in every rate.
	OutcomeTimeout
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// windowEntry is one recorded call in the ring buffer.
type windowEntry struct {
	outcome  Outcome
	duration time.Duration
	at       time.Time
}

// WindowStats is a snapshot of the current window contents.
// Rates cover only what is still in the window, not cumulative totals.
type WindowStats struct {
	// Total is the number of calls currently in the window.
	Total int

	// Successes, Failures and Slow are counts over the window contents.
	// A call is slow when its duration exceeded the slow-call threshold,
	// independent of whether it succeeded or failed.
	Successes int
	Failures  int
	Slow      int

	// FailureRate and SlowRate are percentages in [0, 100].
	FailureRate float64
	SlowRate    float64

	// Sufficient reports whether Total reached the evaluation floor.
	// Rates must not trip a breaker while Sufficient is false.
	Sufficient bool
}

// slidingWindow is a fixed-capacity ring buffer of recent call outcomes.
// Once full, the oldest entry is evicted on each record. Each window is
// owned by one breaker and guarded by its own mutex, so traffic on one
// service key never contends with another.
type slidingWindow struct {
	mu            sync.Mutex
	entries       []windowEntry
	next          int
	filled        bool
	minCalls      int
	slowThreshold time.Duration
}

func newSlidingWindow(size, minCalls int, slowThreshold time.Duration) *slidingWindow {
	return &slidingWindow{
		entries:       make([]windowEntry, size),
		minCalls:      minCalls,
		slowThreshold: slowThreshold,
	}
}

// record appends one call outcome, evicting the oldest entry when full.
func (w *slidingWindow) record(outcome Outcome, duration time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries[w.next] = windowEntry{outcome: outcome, duration: duration, at: time.Now()}
	w.next++
	if w.next == len(w.entries) {
		w.next = 0
		w.filled = true
	}
}

// stats computes counts and rates over the current window contents.
func (w *slidingWindow) stats() WindowStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	total := w.next
	if w.filled {
		total = len(w.entries)
	}

	s := WindowStats{Total: total}
	for i := 0; i < total; i++ {
		e := w.entries[i]
		switch e.outcome {
		case OutcomeSuccess:
			s.Successes++
		default:
			s.Failures++
		}
		if w.slowThreshold > 0 && e.duration > w.slowThreshold {
			s.Slow++
		}
	}

	if total > 0 {
		s.FailureRate = float64(s.Failures) / float64(total) * 100
		s.SlowRate = float64(s.Slow) / float64(total) * 100
	}
	s.Sufficient = total >= w.minCalls
	return s
}

// reset discards all window contents.
func (w *slidingWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next = 0
	w.filled = false
}
