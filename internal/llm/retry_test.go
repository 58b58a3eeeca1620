package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/content-pipeline/internal/domain"
)

// recordingSleeper records requested delays without sleeping.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *recordingSleeper) total() time.Duration {
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 16 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, p.Backoff(i+1), "attempt %d", i+1)
	}
}

func TestRetrier_TransientThenSuccess(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetrier(DefaultRetryPolicy(), sleeper, nil, nil)

	calls := 0
	attempts, err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if calls <= 4 {
			return domain.EnrichmentTransientError("rate limited", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, sleeper.delays)
	assert.Equal(t, 15*time.Second, sleeper.total())
}

func TestRetrier_PermanentStopsImmediately(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetrier(DefaultRetryPolicy(), sleeper, nil, nil)

	calls := 0
	attempts, err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return domain.EnrichmentPermanentError("unauthorized", &StatusError{StatusCode: 401})
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.delays)
	assert.Equal(t, 401, StatusCode(err))
}

func TestRetrier_Exhausted(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetrier(DefaultRetryPolicy(), sleeper, nil, nil)

	attempts, err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return domain.EnrichmentTransientError("server error", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Len(t, sleeper.delays, 4)
	assert.True(t, domain.IsTransient(err))
}

func TestRetrier_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleeper := SleeperFunc(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	r := NewRetrier(DefaultRetryPolicy(), sleeper, nil, nil)

	attempts, err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		return domain.EnrichmentTransientError("timeout", nil)
	})

	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRealSleeper_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RealSleeper.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
