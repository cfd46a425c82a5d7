package health

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonwraymond/shield/resilience"
)

// BreakerChecker reports health from the circuit breaker states of a
// resilience manager. Open circuits mean a downstream dependency is being
// fast-failed, so the check degrades with half-open circuits and goes
// unhealthy when any circuit is open.
type BreakerChecker struct {
	manager *resilience.Manager
}

// NewBreakerChecker creates a checker over the manager's circuits.
func NewBreakerChecker(manager *resilience.Manager) *BreakerChecker {
	return &BreakerChecker{manager: manager}
}

// Name returns the name of this checker.
func (c *BreakerChecker) Name() string {
	return "circuits"
}

// Check inspects every live service key's circuit state.
func (c *BreakerChecker) Check(ctx context.Context) Result {
	keys := c.manager.ServiceKeys()
	sort.Strings(keys)

	var open, halfOpen []string
	details := make(map[string]any, len(keys))

	for _, key := range keys {
		select {
		case <-ctx.Done():
			return Unhealthy("context cancelled")
		default:
		}

		state := c.manager.State(key)
		details[key] = state.String()

		switch state {
		case resilience.StateOpen, resilience.StateForcedOpen:
			open = append(open, key)
		case resilience.StateHalfOpen, resilience.StateForcedHalfOpen:
			halfOpen = append(halfOpen, key)
		}
	}

	switch {
	case len(open) > 0:
		msg := fmt.Sprintf("circuits open: %s", strings.Join(open, ", "))
		return Unhealthy(msg).WithDetails(details)
	case len(halfOpen) > 0:
		msg := fmt.Sprintf("circuits probing recovery: %s", strings.Join(halfOpen, ", "))
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("%d circuits closed", len(keys))).WithDetails(details)
	}
}
