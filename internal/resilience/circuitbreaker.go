// Package resilience wraps bounded-wait guards around operations that
// touch the outside world (loading a feed source) so a hung or flapping
// data provider cannot stall a batch run indefinitely.
package resilience

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config configures a breaker guarding one external operation.
type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	MaxFailures   uint32
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns sensible defaults for guarding a feed load.
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		MaxFailures: 3,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[CircuitBreaker:%s] state changed: %s -> %s", name, from, to)
		},
	}
}

// Breaker wraps gobreaker with domain-appropriate logging and config.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreaker constructs a Breaker from cfg.
func NewBreaker(cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 1 && counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: cfg.OnStateChange,
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings), name: cfg.Name}
}

// Guard runs fn under the breaker and ctx's deadline — building a
// FeedStore is a bounded-wait operation, not unbounded I/O.
func (b *Breaker) Guard(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := b.cb.Execute(func() (any, error) { return fn(ctx) })
	if err != nil {
		return nil, fmt.Errorf("resilience: breaker %s: %w", b.name, err)
	}
	return result, nil
}

// State returns the breaker's current state for diagnostics.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
