// Package resilience wraps secondary-backend writes with retry, circuit
// breaking and an absolute timeout.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/polystore/polystore/internal/domain"
)

// samplingWindow is how long the circuit breaker accumulates counts while
// closed before resetting them.
const samplingWindow = 10 * time.Second

// Pipeline composes retry-with-backoff and a circuit breaker around a call,
// bounded by an absolute timeout. When resilience is disabled the call runs
// once, still under the timeout. One pipeline guards one secondary backend.
type Pipeline struct {
	name       string
	enabled    bool
	retryCount int
	retryDelay time.Duration
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
}

// New creates a pipeline from the resilience configuration.
func New(name string, cfg domain.ResilienceConfig) *Pipeline {
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryDelay := time.Duration(cfg.RetryDelayMs) * time.Millisecond
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}
	timeout := time.Duration(cfg.SecondaryWriteTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	minThroughput := uint32(cfg.CircuitBreakerFailureThreshold)
	if minThroughput == 0 {
		minThroughput = 5
	}
	breakDuration := time.Duration(cfg.CircuitBreakerDurationSeconds) * time.Second
	if breakDuration <= 0 {
		breakDuration = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    samplingWindow,
		Timeout:     breakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minThroughput && ratio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change",
				"pipeline", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Pipeline{
		name:       name,
		enabled:    cfg.EnableResilience,
		retryCount: retryCount,
		retryDelay: retryDelay,
		timeout:    timeout,
		breaker:    breaker,
	}
}

// Execute runs fn under the pipeline. The context handed to fn carries a
// deadline derived from the configured timeout, linked to the caller's own
// cancellation; when it fires the call is failed regardless of remaining
// retry budget or breaker state.
func (p *Pipeline) Execute(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if !p.enabled {
		return fn(ctx)
	}

	attempt := 0
	operation := func() error {
		attempt++
		_, err := p.breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Retrying against an open circuit only burns the budget.
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	notify := func(err error, next time.Duration) {
		slog.Warn("retrying secondary write",
			"pipeline", p.name,
			"attempt", attempt,
			"next_delay_ms", next.Milliseconds(),
			"error", err,
		)
	}

	return backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.retryCount)), ctx),
		notify,
	)
}

// State returns the current circuit breaker state.
func (p *Pipeline) State() gobreaker.State {
	return p.breaker.State()
}
