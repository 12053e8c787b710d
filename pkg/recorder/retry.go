package recorder

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// RetryConfig holds configuration for retry with backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 5
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	// Default: 50ms
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	// Default: 2s
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the backoff after each attempt.
	// Default: 2.0
	BackoffMultiplier float64

	// JitterFraction is the fraction of backoff to randomize (0.0 to 1.0).
	// Default: 0.1
	JitterFraction float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// retryWithBackoff runs op until it succeeds, fails permanently or the
// attempts are used up. It returns the last error.
func retryWithBackoff(ctx context.Context, config RetryConfig, op func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		lastErr = op()
		if !isRetryable(lastErr) || attempt >= config.MaxAttempts {
			return lastErr
		}

		jitter := time.Duration(float64(backoff) * config.JitterFraction * (rand.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
	return lastErr
}

// isRetryable reports whether err may go away on a later attempt.
// Storage errors other than a missing record are assumed transient.
func isRetryable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, core.ErrJobNotFound):
		return false
	}
	return true
}
