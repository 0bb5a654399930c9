// Package resilience wraps task bodies with exponential-backoff retry and
// per-kind circuit breakers.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/tasksched/internal/config"
	"github.com/aristath/tasksched/internal/scheduler"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// FromConfig converts the file configuration. Zero fields take the defaults.
func FromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.InitialInterval > 0 {
		cfg.InitialInterval = c.InitialInterval.Std()
	}
	if c.MaxInterval > 0 {
		cfg.MaxInterval = c.MaxInterval.Std()
	}
	if c.MaxElapsedTime > 0 {
		cfg.MaxElapsedTime = c.MaxElapsedTime.Std()
	}
	if c.Multiplier > 0 {
		cfg.Multiplier = c.Multiplier
	}
	if c.RandomizationFactor > 0 {
		cfg.RandomizationFactor = c.RandomizationFactor
	}
	return cfg
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// BreakerRegistry manages one circuit breaker per task kind.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// NewBreakerRegistry creates an empty registry. State changes are logged to log.
func NewBreakerRegistry(log zerolog.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      log,
	}
}

// Get returns the circuit breaker for kind, creating it on first use.
func (r *BreakerRegistry) Get(kind string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[kind]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        kind,
		MaxRequests: 3,                // Trial requests allowed while half-open
		Interval:    0,                // Never clear counts while closed
		Timeout:     30 * time.Second, // Open period before probing
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.log.Warn().Str("kind", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is not a failure of the kind itself
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[kind] = cb
	return cb
}

// Policy applies retry and circuit breaking to task bodies.
type Policy struct {
	Retry    RetryConfig
	Breakers *BreakerRegistry
	Log      zerolog.Logger
}

// Wrap returns a body that runs body through the kind's circuit breaker and
// retries failures with exponential backoff. Open-breaker errors, permanent
// errors and context cancellation stop retrying.
func (p Policy) Wrap(kind string, body scheduler.Body) scheduler.Body {
	if body == nil {
		return nil
	}

	return func(ctx context.Context) error {
		var cb *gobreaker.CircuitBreaker
		if p.Breakers != nil {
			cb = p.Breakers.Get(kind)
		}

		operation := func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			var err error
			if cb != nil {
				_, err = cb.Execute(func() (interface{}, error) {
					return nil, body(ctx)
				})
			} else {
				err = body(ctx)
			}
			if err == nil {
				return nil
			}

			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = p.Retry.InitialInterval
		policy.MaxInterval = p.Retry.MaxInterval
		policy.MaxElapsedTime = p.Retry.MaxElapsedTime
		policy.Multiplier = p.Retry.Multiplier
		policy.RandomizationFactor = p.Retry.RandomizationFactor

		notify := func(err error, wait time.Duration) {
			ev := p.Log.Debug().Err(err).Str("kind", kind).Dur("backoff", wait)
			if t := scheduler.Current(ctx); t != nil {
				ev = ev.Str("task_id", string(t.ID()))
			}
			ev.Msg("retrying task body")
		}

		return backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	}
}
