package shres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AcquireRelease(t *testing.T) {
	l := New(100)
	require.NoError(t, l.Acquire(context.Background(), 60))
	assert.Equal(t, int64(60), l.InUse())
	assert.False(t, l.TryAcquire(50))
	assert.True(t, l.TryAcquire(40))
	l.Release(60)
	l.Release(40)
	assert.Equal(t, int64(0), l.InUse())
}

func TestLimiter_BlocksUntilRelease(t *testing.T) {
	l := New(10)
	require.NoError(t, l.Acquire(context.Background(), 10))

	acquired := make(chan struct{})
	go func() {
		_ = l.Acquire(context.Background(), 5)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block while budget is exhausted")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release(10)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire did not resume after release")
	}
	assert.Equal(t, int64(5), l.InUse())
}

func TestLimiter_ContextCancel(t *testing.T) {
	l := New(1)
	require.NoError(t, l.Acquire(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), l.InUse())
}

func TestLimiter_OversizeIsClamped(t *testing.T) {
	l := New(8)
	require.NoError(t, l.Acquire(context.Background(), 100))
	assert.Equal(t, int64(8), l.InUse())
	l.Release(100)
	assert.Equal(t, int64(0), l.InUse())
}

func TestLimiter_NeverExceedsTotal(t *testing.T) {
	l := New(64)
	var wg sync.WaitGroup
	var mu sync.Mutex
	peak := int64(0)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background(), 16))
			mu.Lock()
			if cur := l.InUse(); cur > peak {
				peak = cur
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			l.Release(16)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak, int64(64))
	assert.Equal(t, int64(0), l.InUse())
}
