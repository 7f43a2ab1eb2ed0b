package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantSleep makes retries run without real timers.
func instantSleep(ctx context.Context, d time.Duration) error {
	return nil
}

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.Sleep = instantSleep
	return cfg
}

func TestComputeDelayGrowsExponentially(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, cfg.ComputeDelay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.ComputeDelay(1))
	assert.Equal(t, 400*time.Millisecond, cfg.ComputeDelay(2))
	assert.Equal(t, 800*time.Millisecond, cfg.ComputeDelay(3))
}

func TestComputeDelayCapsAtMax(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
	}

	assert.Equal(t, 500*time.Millisecond, cfg.ComputeDelay(5))
	assert.Equal(t, 500*time.Millisecond, cfg.ComputeDelay(20))
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	// Given a function that fails twice with a retryable error
	calls := 0
	fn := func() error {
		calls++
		if calls < 3 {
			return New(ErrCodeRateLimited, "429", nil)
		}
		return nil
	}

	// When retrying
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then the third attempt succeeds
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	// Given a function that always fails with a non-retryable error
	calls := 0
	fn := func() error {
		calls++
		return New(ErrCodeConfigInvalid, "bad config", nil)
	}

	// When retrying
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then it fails immediately without retries
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrCodeConfigInvalid, GetCode(err))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	// Given a function that always returns a retryable error
	cfg := fastRetryConfig()
	cfg.MaxRetries = 2
	calls := 0
	fn := func() error {
		calls++
		return New(ErrCodeProviderServer, "502", nil)
	}

	// When retrying
	err := Retry(context.Background(), cfg, fn)

	// Then all attempts are consumed and the error reports exhaustion
	assert.Equal(t, 3, calls)
	assert.Equal(t, ErrCodeRetriesExhausted, GetCode(err))
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, New(ErrCodeProviderServer, "", nil))
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	// Given an already-cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastRetryConfig(), func() error {
		calls++
		return nil
	})

	// Then the function never runs
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPlainErrorsAreNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		calls++
		return fmt.Errorf("plain failure")
	})

	assert.Equal(t, 1, calls)
	assert.EqualError(t, err, "plain failure")
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	// Given a function that fails once then returns a value
	calls := 0
	fn := func() ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, New(ErrCodeRateLimited, "429", nil)
		}
		return []float32{0.1, 0.2}, nil
	}

	// When retrying
	result, err := RetryWithResult(context.Background(), fastRetryConfig(), fn)

	// Then the value from the successful attempt is returned
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, result)
	assert.Equal(t, 2, calls)
}

func TestRetryWithResultExhaustionReturnsZeroValue(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxRetries = 1

	result, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		return 42, New(ErrCodeProviderServer, "502", nil)
	})

	assert.Equal(t, 0, result)
	assert.Equal(t, ErrCodeRetriesExhausted, GetCode(err))
}
