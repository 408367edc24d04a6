// Package resilience wraps github.com/sony/gobreaker/v2 the same way the
// teacher's libs/resilience/circuitbreaker.go does, so outbound vendor
// calls degrade to an explicit error instead of hanging the replay loop
// (§7: ServerError / AsyncError).
package resilience

import (
	"context"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	MaxFailures   uint32
	OnStateChange func(name string, from, to gobreaker.State)
}

func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		MaxFailures: 5,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf(`{"event":"circuit_breaker_state","name":%q,"from":%q,"to":%q}`, name, from, to)
		},
	}
}

type CircuitBreaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

func New(cfg Config) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(0)
			if counts.Requests > 0 {
				failureRatio = float64(counts.TotalFailures) / float64(counts.Requests)
			}
			return counts.ConsecutiveFailures >= cfg.MaxFailures || (counts.Requests >= 3 && failureRatio >= 0.6)
		},
		OnStateChange: cfg.OnStateChange,
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[any](settings), name: cfg.Name}
}

func (c *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return c.cb.Execute(fn)
}

func (c *CircuitBreaker) ExecuteWithContext(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.cb.Execute(fn)
}

func (c *CircuitBreaker) Name() string { return c.name }
