package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FiresDueTasks(t *testing.T) {
	s := NewScheduler(WithTick(time.Millisecond))
	var fast, slow atomic.Int32
	s.Add("fast", Every(5*time.Millisecond), func(context.Context) error {
		fast.Add(1)
		return nil
	})
	s.Add("slow", Every(time.Hour), func(context.Context) error {
		slow.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return fast.Load() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, slow.Load())
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(WithTick(time.Millisecond))
	release := make(chan struct{})
	var runs atomic.Int32
	s.Add("backup", Every(time.Millisecond), func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestScheduler_TaskErrorKeepsSchedule(t *testing.T) {
	s := NewScheduler(WithTick(time.Millisecond))
	var runs atomic.Int32
	s.Add("flaky", Every(2*time.Millisecond), func(context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, time.Millisecond)
}

func TestScheduler_NextAndRemove(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	s := NewScheduler()
	s.now = func() time.Time { return base }

	s.Add("nightly", Daily(2, 0), func(context.Context) error { return nil })
	next, ok := s.Next("nightly")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC), next)

	s.Remove("nightly")
	_, ok = s.Next("nightly")
	assert.False(t, ok)
}
