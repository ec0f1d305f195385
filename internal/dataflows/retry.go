package dataflows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned by vendors whose credentials are missing.
var ErrNotConfigured = errors.New("dataflows: provider not configured")

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// WithRetry runs fn until it succeeds, retries are exhausted or ctx ends.
// Backoff sleeps are cancelled with ctx.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrNotConfigured) || ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// callWithContext runs a blocking call that has no context support and
// returns early when ctx is done. The call itself keeps running.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
