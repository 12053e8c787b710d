package recorder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 2*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
	assert.Equal(t, 0.1, cfg.JitterFraction)
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	var attempts int
	err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	var attempts int
	want := errors.New("connection refused")
	err := retryWithBackoff(context.Background(), fastRetry(3), func() error {
		attempts++
		return want
	})

	assert.Equal(t, want, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentErrors(t *testing.T) {
	for _, perm := range []error{
		context.Canceled,
		context.DeadlineExceeded,
		fmt.Errorf("conclude: %w", core.ErrJobNotFound),
	} {
		var attempts int
		err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
			attempts++
			return perm
		})
		assert.ErrorIs(t, err, perm)
		assert.Equal(t, 1, attempts, "%v", perm)
	}
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 1}

	var attempts int
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := retryWithBackoff(ctx, cfg, func() error {
		attempts++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(core.ErrJobNotFound))
	assert.True(t, isRetryable(errors.New("deadlock detected")))
}
