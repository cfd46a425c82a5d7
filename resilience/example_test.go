package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/shield/resilience"
)

func ExampleNewManager() {
	m, err := resilience.NewManager(
		resilience.WithDefaults(resilience.Config{
			MaxConcurrentCalls: 20,
			RatePerSecond:      100,
			BurstCapacity:      10,
		}),
	)
	if err != nil {
		fmt.Println("config error:", err)
		return
	}

	err = m.Execute(context.Background(), "inventory", func(ctx context.Context) error {
		// Simulated successful downstream call
		return nil
	})
	if err == nil {
		fmt.Println("call succeeded")
	}
	// Output:
	// call succeeded
}

func ExampleManager_ForceOpen() {
	m, _ := resilience.NewManager()

	m.ForceOpen("billing")
	err := m.Execute(context.Background(), "billing", func(ctx context.Context) error {
		return nil
	})
	fmt.Println("rejected:", errors.Is(err, resilience.ErrCircuitOpen))

	m.Reset("billing")
	fmt.Println("state after reset:", m.State("billing"))
	// Output:
	// rejected: true
	// state after reset: closed
}

func ExampleDo() {
	m, _ := resilience.NewManager()

	price, err := resilience.Do(context.Background(), m, "pricing", func(ctx context.Context) (float64, error) {
		return 19.99, nil
	})
	if err == nil {
		fmt.Printf("price: %.2f\n", price)
	}
	// Output:
	// price: 19.99
}

func ExampleNewCircuitBreaker() {
	cb, err := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureRateThreshold: 50,
		MinimumCalls:         2,
		WindowSize:           10,
		WaitDuration:         time.Minute,
	})
	if err != nil {
		fmt.Println("config error:", err)
		return
	}

	fmt.Println("initial:", cb.State())

	cb.OnFailure(5 * time.Millisecond)
	cb.OnFailure(5 * time.Millisecond)
	fmt.Println("after failures:", cb.State())
	// Output:
	// initial: closed
	// after failures: open
}

func ExampleNewRateLimiter() {
	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 2, Burst: 2})

	fmt.Println(rl.Allow())
	fmt.Println(rl.Allow())
	fmt.Println(rl.Allow())
	// Output:
	// true
	// true
	// false
}
