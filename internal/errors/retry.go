package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including the
	// initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool

	// Sleep is the wait function. Defaults to a context-aware time.After
	// wait. Tests inject a no-op to run without real timers.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

// ComputeDelay returns the backoff delay for the given zero-based retry
// attempt. It is a pure function of the config and attempt number so that
// backoff schedules can be unit-tested without timers.
func (cfg RetryConfig) ComputeDelay(attempt int) time.Duration {
	delay := cfg.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// sleep waits for d or until the context is cancelled.
func (cfg RetryConfig) sleep(ctx context.Context, d time.Duration) error {
	if cfg.Sleep != nil {
		return cfg.Sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Retry executes fn with exponential backoff, retrying only while
// IsRetryable(err) holds. Non-retryable errors are returned immediately.
// If the context is cancelled it returns the context error.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= cfg.MaxRetries {
			break
		}

		waitDelay := cfg.ComputeDelay(attempt)
		if cfg.Jitter {
			waitDelay = time.Duration(float64(waitDelay) * (0.5 + rand.Float64()*0.5))
		}
		if err := cfg.sleep(ctx, waitDelay); err != nil {
			return err
		}
	}

	if IsRetryable(lastErr) {
		return New(ErrCodeRetriesExhausted,
			fmt.Sprintf("failed after %d retries: %v", cfg.MaxRetries, lastErr), lastErr)
	}
	return lastErr
}

// RetryWithResult executes a function that returns a value with retry logic.
// Same semantics as Retry for functions returning a result and an error.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var err error
		result, err = fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= cfg.MaxRetries {
			break
		}

		waitDelay := cfg.ComputeDelay(attempt)
		if cfg.Jitter {
			waitDelay = time.Duration(float64(waitDelay) * (0.5 + rand.Float64()*0.5))
		}
		if err := cfg.sleep(ctx, waitDelay); err != nil {
			return result, err
		}
	}

	var zero T
	if IsRetryable(lastErr) {
		return zero, New(ErrCodeRetriesExhausted,
			fmt.Sprintf("failed after %d retries: %v", cfg.MaxRetries, lastErr), lastErr)
	}
	return zero, lastErr
}
