package resilience

import (
	"runtime"
	"sync"
	"time"
)

// SystemProbe supplies process-level load signals to the shedder.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic; unknown signals report 0.
type SystemProbe interface {
	// CPUPercent returns current CPU usage in [0, 100].
	CPUPercent() float64

	// MemoryPercent returns current memory usage in [0, 100].
	MemoryPercent() float64

	// Goroutines returns the current number of live goroutines.
	Goroutines() int
}

// LoadShedderConfig configures the process-wide load shedder.
//
// Each threshold is independent; a zero threshold disables that signal.
type LoadShedderConfig struct {
	// MaxCPUPercent sheds when CPU usage exceeds this percentage.
	MaxCPUPercent float64

	// MaxMemoryPercent sheds when memory usage exceeds this percentage.
	MaxMemoryPercent float64

	// MaxWorkerUtilization sheds when live goroutines exceed this
	// percentage of MaxGoroutines.
	MaxWorkerUtilization float64

	// MaxGoroutines is the goroutine count treated as 100% worker
	// utilization. Default: 10000
	MaxGoroutines int

	// MaxAvgResponseTime sheds when the observed average response time
	// exceeds this duration.
	MaxAvgResponseTime time.Duration

	// MaxRequestsPerSecond sheds when the observed request rate exceeds
	// this value.
	MaxRequestsPerSecond float64

	// SmoothingFactor is the EWMA weight for response time samples.
	// Valid: (0, 1]. Default: 0.2
	SmoothingFactor float64

	// Probe supplies the CPU, memory and goroutine signals.
	// Default: a runtime-based probe without CPU readings.
	Probe SystemProbe

	// CPUPercent overrides the probe's CPU reading. CPU sampling is
	// platform specific, so hosts that have a source plug it in here.
	CPUPercent func() float64
}

// LoadShedder is a process-wide admission gate. It is evaluated before any
// per-service state and protects the calling process itself, so one
// shedder is shared by every service key.
type LoadShedder struct {
	config LoadShedderConfig
	probe  SystemProbe

	mu          sync.Mutex
	avgResponse time.Duration
	respSamples int64
	windowStart time.Time
	windowCount int
	lastRate    float64

	shed int64
}

// NewLoadShedder creates a new load shedder.
func NewLoadShedder(config LoadShedderConfig) *LoadShedder {
	// Apply defaults
	if config.MaxGoroutines <= 0 {
		config.MaxGoroutines = 10000
	}
	if config.SmoothingFactor <= 0 || config.SmoothingFactor > 1 {
		config.SmoothingFactor = 0.2
	}

	probe := config.Probe
	if probe == nil {
		probe = &runtimeProbe{cpu: config.CPUPercent}
	}

	return &LoadShedder{
		config:      config,
		probe:       probe,
		windowStart: time.Now(),
	}
}

// Allow evaluates every enabled signal and returns a *LoadShedError naming
// the first breached one, or nil to admit. It also counts the request
// toward the observed request rate.
func (ls *LoadShedder) Allow() error {
	ls.mu.Lock()
	rate := ls.tickLocked()
	avg := ls.avgResponse
	ls.mu.Unlock()

	if err := ls.check("cpu", ls.probe.CPUPercent(), ls.config.MaxCPUPercent); err != nil {
		return err
	}
	if err := ls.check("memory", ls.probe.MemoryPercent(), ls.config.MaxMemoryPercent); err != nil {
		return err
	}
	if ls.config.MaxWorkerUtilization > 0 {
		util := float64(ls.probe.Goroutines()) / float64(ls.config.MaxGoroutines) * 100
		if err := ls.check("workers", util, ls.config.MaxWorkerUtilization); err != nil {
			return err
		}
	}
	if ls.config.MaxAvgResponseTime > 0 && avg > ls.config.MaxAvgResponseTime {
		return ls.reject(&LoadShedError{
			Signal:    "response_time",
			Value:     float64(avg.Milliseconds()),
			Threshold: float64(ls.config.MaxAvgResponseTime.Milliseconds()),
		})
	}
	if err := ls.check("request_rate", rate, ls.config.MaxRequestsPerSecond); err != nil {
		return err
	}
	return nil
}

func (ls *LoadShedder) check(signal string, value, threshold float64) error {
	if threshold > 0 && value > threshold {
		return ls.reject(&LoadShedError{Signal: signal, Value: value, Threshold: threshold})
	}
	return nil
}

func (ls *LoadShedder) reject(err *LoadShedError) error {
	ls.mu.Lock()
	ls.shed++
	ls.mu.Unlock()
	return err
}

// tickLocked counts one request and returns the request rate observed over
// the last completed one-second bucket.
func (ls *LoadShedder) tickLocked() float64 {
	now := time.Now()
	if elapsed := now.Sub(ls.windowStart); elapsed >= time.Second {
		ls.lastRate = float64(ls.windowCount) / elapsed.Seconds()
		ls.windowStart = now
		ls.windowCount = 0
	}
	ls.windowCount++
	return ls.lastRate
}

// Observe feeds one completed call's duration into the average response
// time signal.
func (ls *LoadShedder) Observe(duration time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.respSamples == 0 {
		ls.avgResponse = duration
	} else {
		alpha := ls.config.SmoothingFactor
		ls.avgResponse = time.Duration(float64(ls.avgResponse)*(1-alpha) + float64(duration)*alpha)
	}
	ls.respSamples++
}

// Metrics returns current load shedder statistics.
func (ls *LoadShedder) Metrics() LoadShedderMetrics {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	return LoadShedderMetrics{
		AvgResponseTime:   ls.avgResponse,
		RequestsPerSecond: ls.lastRate,
		Shed:              ls.shed,
	}
}

// LoadShedderMetrics contains load shedder statistics.
type LoadShedderMetrics struct {
	AvgResponseTime   time.Duration
	RequestsPerSecond float64
	Shed              int64
}

// runtimeProbe reads load signals from the Go runtime. CPU usage has no
// portable runtime source, so it reports 0 unless a reader was supplied.
type runtimeProbe struct {
	cpu func() float64
}

func (p *runtimeProbe) CPUPercent() float64 {
	if p.cpu != nil {
		return p.cpu()
	}
	return 0
}

func (p *runtimeProbe) MemoryPercent() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.Sys == 0 {
		return 0
	}
	return float64(stats.Alloc) / float64(stats.Sys) * 100
}

func (p *runtimeProbe) Goroutines() int {
	return runtime.NumGoroutine()
}
