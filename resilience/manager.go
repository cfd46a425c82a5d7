package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/shield/observe"
)

// Config is the per-service-key configuration for the bulkhead, rate
// limiter and adaptive timeout.
type Config struct {
	// MaxConcurrentCalls bounds in-flight calls to the service.
	// Default: 10
	MaxConcurrentCalls int

	// MaxBulkheadWait is how long a call may wait for a free slot.
	// Default: 0 (reject immediately)
	MaxBulkheadWait time.Duration

	// RatePerSecond is the steady admission rate.
	// Default: 100
	RatePerSecond float64

	// BurstCapacity is the token bucket burst size.
	// Default: 10
	BurstCapacity int

	// BaseTimeout is the lower bound of the adaptive deadline.
	// Default: 1 second
	BaseTimeout time.Duration

	// MaxTimeout is the upper bound of the adaptive deadline.
	// Default: 30 seconds
	MaxTimeout time.Duration
}

func (c Config) validate() error {
	if c.MaxConcurrentCalls < 0 {
		return fmt.Errorf("resilience: max concurrent calls must be >= 1, got %d", c.MaxConcurrentCalls)
	}
	if c.RatePerSecond < 0 {
		return fmt.Errorf("resilience: rate per second must be > 0, got %v", c.RatePerSecond)
	}
	if c.BurstCapacity < 0 {
		return fmt.Errorf("resilience: burst capacity must be >= 1, got %d", c.BurstCapacity)
	}
	if c.MaxBulkheadWait < 0 || c.BaseTimeout < 0 || c.MaxTimeout < 0 {
		return fmt.Errorf("resilience: durations must not be negative")
	}
	if c.MaxTimeout > 0 && c.BaseTimeout > c.MaxTimeout {
		return fmt.Errorf("resilience: base timeout %v exceeds max timeout %v", c.BaseTimeout, c.MaxTimeout)
	}
	return nil
}

// service bundles the per-key primitives. Every field has its own locking;
// nothing here is shared across keys.
type service struct {
	breaker  *CircuitBreaker
	bulkhead *Bulkhead
	limiter  *RateLimiter
	timeout  *AdaptiveTimeout
	callCap  time.Duration
}

// Manager composes the resilience pipeline and owns the per-service-key
// state. For each call the stages run in a fixed order:
//
//	load shedder -> rate limiter -> bulkhead -> circuit breaker ->
//	deadline-bounded execution -> outcome reporting -> bulkhead release
//
// A rejection at any stage short-circuits with a stage-specific error and
// never reaches later stages or the protected operation.
type Manager struct {
	mu       sync.RWMutex
	services map[string]*service

	defaults        Config
	breakerDefaults CircuitBreakerConfig
	perService      map[string]Config
	perBreaker      map[string]CircuitBreakerConfig

	shedder *LoadShedder
	logger  observe.Logger
	metrics observe.Metrics
	tracer  trace.Tracer
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaults sets the Config used for service keys without their own.
func WithDefaults(cfg Config) ManagerOption {
	return func(m *Manager) {
		m.defaults = cfg
	}
}

// WithBreakerDefaults sets the CircuitBreakerConfig used for service keys
// without their own.
func WithBreakerDefaults(cfg CircuitBreakerConfig) ManagerOption {
	return func(m *Manager) {
		m.breakerDefaults = cfg
	}
}

// WithServiceConfig registers a per-service-key Config.
func WithServiceConfig(key string, cfg Config) ManagerOption {
	return func(m *Manager) {
		m.perService[key] = cfg
	}
}

// WithBreakerConfig registers a per-service-key CircuitBreakerConfig.
func WithBreakerConfig(key string, cfg CircuitBreakerConfig) ManagerOption {
	return func(m *Manager) {
		m.perBreaker[key] = cfg
	}
}

// WithLoadShedder installs a process-wide load shedder as the first
// pipeline stage.
func WithLoadShedder(ls *LoadShedder) ManagerOption {
	return func(m *Manager) {
		m.shedder = ls
	}
}

// WithLogger installs a logger for state transitions and shed decisions.
func WithLogger(logger observe.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics installs a metrics recorder for pipeline events.
func WithMetrics(metrics observe.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithTracer wraps each protected operation in a span.
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// NewManager creates a new manager. Configuration is validated here;
// invalid thresholds are construction errors, never clamped.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		services:   make(map[string]*service),
		perService: make(map[string]Config),
		perBreaker: make(map[string]CircuitBreakerConfig),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.defaults.validate(); err != nil {
		return nil, err
	}
	if err := m.breakerDefaults.validate(); err != nil {
		return nil, err
	}
	for key, cfg := range m.perService {
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("service %q: %w", key, err)
		}
	}
	for key, cfg := range m.perBreaker {
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("service %q: %w", key, err)
		}
	}

	return m, nil
}

// Execute runs the operation through the full resilience pipeline for the
// given service key. Per-key state is created lazily on first use and
// lives for the process lifetime.
func (m *Manager) Execute(ctx context.Context, key string, op func(context.Context) error) error {
	if m.shedder != nil {
		if err := m.shedder.Allow(); err != nil {
			m.recordRejection(ctx, key, "load_shed", err)
			return err
		}
	}

	svc := m.getService(key)

	if !svc.limiter.Allow() {
		m.recordRejection(ctx, key, "rate_limit", ErrRateLimited)
		return ErrRateLimited
	}

	if err := svc.bulkhead.Acquire(ctx); err != nil {
		if errors.Is(err, ErrBulkheadFull) {
			// Bulkhead pressure reflects downstream slowness, so it
			// counts against the circuit's failure rate.
			svc.breaker.RecordRejection()
			m.recordRejection(ctx, key, "bulkhead", err)
		}
		return err
	}

	// A slot is held from here on. Exactly one Release happens on every
	// path below, after outcome reporting.

	if err := svc.breaker.Allow(); err != nil {
		m.recordRejection(ctx, key, "circuit", err)
		svc.bulkhead.Release()
		return err
	}

	deadline := svc.deadline()
	execCtx := ctx
	cancel := func() {}
	if deadline > 0 {
		execCtx, cancel = context.WithTimeout(ctx, deadline)
	}

	start := time.Now()
	err := m.run(execCtx, key, op)
	elapsed := time.Since(start)
	timedOut := execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
	cancel()

	switch {
	case err == nil:
		svc.breaker.OnSuccess(elapsed)
		svc.timeout.Record(elapsed)
	case timedOut:
		svc.breaker.OnTimeout(elapsed)
		err = ErrTimeout
	default:
		// Includes the operation's own failures and caller-side
		// cancellation; either way the outcome is reported once.
		svc.breaker.OnFailure(elapsed)
	}

	if m.shedder != nil {
		m.shedder.Observe(elapsed)
	}
	if m.metrics != nil {
		m.metrics.RecordCall(ctx, key, elapsed, err)
	}

	svc.bulkhead.Release()
	return err
}

// run executes the operation, unblocking as soon as the context is done so
// a timed-out call reports its outcome promptly instead of waiting for the
// operation to finish naturally.
func (m *Manager) run(ctx context.Context, key string, op func(context.Context) error) error {
	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.Start(ctx, "resilience.execute",
			trace.WithAttributes(attribute.String("service.key", key)))
		defer span.End()

		err := m.await(ctx, op)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
	return m.await(ctx, op)
}

func (m *Manager) await(ctx context.Context, op func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs a value-returning operation through the manager's pipeline.
// On rejection or timeout the zero value is returned with the error.
func Do[T any](ctx context.Context, m *Manager, key string, op func(context.Context) (T, error)) (T, error) {
	var (
		mu     sync.Mutex
		result T
	)

	err := m.Execute(ctx, key, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		result = v
		mu.Unlock()
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (m *Manager) getService(key string) *service {
	m.mu.RLock()
	svc, ok := m.services[key]
	m.mu.RUnlock()
	if ok {
		return svc
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double check
	if svc, ok := m.services[key]; ok {
		return svc
	}

	svc = m.buildService(key)
	m.services[key] = svc
	return svc
}

func (m *Manager) buildService(key string) *service {
	cfg, ok := m.perService[key]
	if !ok {
		cfg = m.defaults
	}
	bcfg, ok := m.perBreaker[key]
	if !ok {
		bcfg = m.breakerDefaults
	}

	userHook := bcfg.OnStateChange
	bcfg.OnStateChange = func(from, to State) {
		if m.logger != nil {
			m.logger.Info(context.Background(), "circuit state changed",
				observe.Field{Key: "service.key", Value: key},
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
		}
		if m.metrics != nil {
			m.metrics.RecordStateChange(context.Background(), key, from.String(), to.String())
		}
		if userHook != nil {
			userHook(from, to)
		}
	}

	// Config was validated in NewManager, so this cannot fail.
	breaker, err := NewCircuitBreaker(bcfg)
	if err != nil {
		panic(err)
	}

	return &service{
		breaker: breaker,
		bulkhead: NewBulkhead(BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrentCalls,
			MaxWait:       cfg.MaxBulkheadWait,
		}),
		limiter: NewRateLimiter(RateLimiterConfig{
			Rate:  cfg.RatePerSecond,
			Burst: cfg.BurstCapacity,
		}),
		timeout: NewAdaptiveTimeout(AdaptiveTimeoutConfig{
			BaseTimeout: cfg.BaseTimeout,
			MaxTimeout:  cfg.MaxTimeout,
		}),
		callCap: breaker.config.CallTimeout,
	}
}

// deadline is the adaptive per-call deadline, hard-capped by the breaker's
// fixed CallTimeout when one is set.
func (s *service) deadline() time.Duration {
	d := s.timeout.Timeout()
	if s.callCap > 0 && s.callCap < d {
		return s.callCap
	}
	return d
}

func (m *Manager) recordRejection(ctx context.Context, key, stage string, err error) {
	if m.logger != nil {
		m.logger.Debug(ctx, "call rejected",
			observe.Field{Key: "service.key", Value: key},
			observe.Field{Key: "stage", Value: stage},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
	if m.metrics != nil {
		m.metrics.RecordRejection(ctx, key, stage)
	}
}

// State returns the circuit state for the service key.
func (m *Manager) State(key string) State {
	return m.getService(key).breaker.State()
}

// Metrics returns the circuit breaker metrics for the service key.
func (m *Manager) Metrics(key string) CircuitBreakerMetrics {
	return m.getService(key).breaker.Metrics()
}

// BulkheadMetrics returns the bulkhead metrics for the service key.
func (m *Manager) BulkheadMetrics(key string) BulkheadMetrics {
	return m.getService(key).bulkhead.Metrics()
}

// LoadMetrics returns the load shedder's metrics, or the zero value when
// no shedder is installed.
func (m *Manager) LoadMetrics() LoadShedderMetrics {
	if m.shedder == nil {
		return LoadShedderMetrics{}
	}
	return m.shedder.Metrics()
}

// ForceOpen forces the service key's circuit open until Reset.
func (m *Manager) ForceOpen(key string) {
	m.getService(key).breaker.ForceOpen()
}

// ForceHalfOpen forces the service key's circuit into forced half-open,
// allowing limited trial calls until Reset.
func (m *Manager) ForceHalfOpen(key string) {
	m.getService(key).breaker.ForceHalfOpen()
}

// Reset returns the service key's circuit to closed with cleared window
// and counters, and discards its adaptive latency history.
func (m *Manager) Reset(key string) {
	svc := m.getService(key)
	svc.breaker.Reset()
	svc.timeout.Reset()
}

// ServiceKeys returns the keys with live per-service state.
func (m *Manager) ServiceKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.services))
	for key := range m.services {
		keys = append(keys, key)
	}
	return keys
}
