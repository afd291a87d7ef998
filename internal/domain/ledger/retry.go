package ledger

import (
	"context"
	"math"
	"math/rand"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// RetryConfig bounds the backoff loop callers wrap around contended
// mutations. The lock itself never waits; waiting happens here, between
// attempts, where it cannot pile up inside the storage layer.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the standard backoff bounds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   25 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
	}
}

// WithRetry runs fn, retrying transient failures (contention, storage)
// with exponential backoff and full jitter up to MaxAttempts. Permanent
// failures and context cancellation return immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !apperror.IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := backoffDelay(cfg, attempt)
		logger.Debug(ctx, "transient failure, backing off",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// backoffDelay doubles the base per attempt, caps at MaxDelay, and
// jitters over the full range to spread contending callers apart.
// Doubling stops as soon as the cap is reached so a large attempt
// number cannot overflow the duration.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		if cfg.MaxDelay > 0 && d >= cfg.MaxDelay {
			break
		}
		if d > math.MaxInt64/2 {
			break
		}
		d <<= 1
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d))) + 1
}
