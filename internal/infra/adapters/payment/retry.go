package payment

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls exponential backoff for processor calls.
type RetryConfig struct {
	MaxRetries int           // attempts after the first one; 0 disables retrying
	BaseDelay  time.Duration // first backoff
	MaxDelay   time.Duration // backoff cap
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// withRetry runs fn until it succeeds, fails with a non-retryable error,
// runs out of attempts or ctx is done. The caller keeps request identity
// (idempotency key) fixed across attempts.
func withRetry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		out, err = fn(ctx)
		if err == nil || !retryable(err) {
			return out, err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return out, err
		case <-time.After(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)):
		}
	}
	return out, err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int63n(int64(quarter*2))) - quarter
	}
	return delay
}
