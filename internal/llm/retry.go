package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/observability"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 16 * time.Second
	defaultMultiplier     = 2.0
)

// RetryPolicy controls how many attempts are made and how long to wait
// between them.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy waits 1s, 2s, 4s, 8s between five attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		Multiplier:     defaultMultiplier,
	}
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = defaultMultiplier
	}
	backoff := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// RealSleeper sleeps on the wall clock.
var RealSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// Retrier runs an operation until it succeeds, fails permanently or the
// policy's attempts are used up. Only transient errors are retried.
type Retrier struct {
	policy  RetryPolicy
	sleeper Sleeper
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRetrier creates a retrier. A nil sleeper uses RealSleeper.
func NewRetrier(policy RetryPolicy, sleeper Sleeper, logger *observability.Logger, metrics *observability.Metrics) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if sleeper == nil {
		sleeper = RealSleeper
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Retrier{
		policy:  policy,
		sleeper: sleeper,
		logger:  logger.WithComponent("llm"),
		metrics: metrics,
	}
}

// Policy returns the retry policy in use.
func (r *Retrier) Policy() RetryPolicy { return r.policy }

// Do calls fn until it succeeds or retrying stops. It returns the number of
// attempts made and the last error.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			r.metrics.LLMAttempt("success")
			return attempt, nil
		}
		if !domain.IsTransient(lastErr) {
			r.metrics.LLMAttempt("permanent")
			return attempt, lastErr
		}
		r.metrics.LLMAttempt("transient")

		if attempt == r.policy.MaxAttempts {
			break
		}

		backoff := r.policy.Backoff(attempt)
		r.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", r.policy.MaxAttempts).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("Request failed, retrying")

		if err := r.sleeper.Sleep(ctx, backoff); err != nil {
			return attempt, err
		}
	}

	return r.policy.MaxAttempts, fmt.Errorf("gave up after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}
