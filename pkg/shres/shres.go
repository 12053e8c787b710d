// Package shres provides a shared-resource limiter bounding the total amount
// of memory held by in-flight copy requests.
//
// Acquire suspends the caller until enough budget is free; Release always
// succeeds. Requests larger than the whole budget are clamped so they run
// alone instead of blocking forever.
package shres

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting semaphore over bytes.
type Limiter struct {
	total int64
	inUse atomic.Int64
	sem   *semaphore.Weighted
}

// New creates a limiter with the given total budget.
func New(total int64) *Limiter {
	if total < 1 {
		total = 1
	}
	return &Limiter{
		total: total,
		sem:   semaphore.NewWeighted(total),
	}
}

func (l *Limiter) clamp(n int64) int64 {
	if n > l.total {
		return l.total
	}
	return n
}

// Acquire blocks until n units are available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	n = l.clamp(n)
	if err := l.sem.Acquire(ctx, n); err != nil {
		return err
	}
	l.inUse.Add(n)
	return nil
}

// TryAcquire takes n units without blocking.
func (l *Limiter) TryAcquire(n int64) bool {
	if n <= 0 {
		return true
	}
	n = l.clamp(n)
	if !l.sem.TryAcquire(n) {
		return false
	}
	l.inUse.Add(n)
	return true
}

// Release returns n units previously acquired.
func (l *Limiter) Release(n int64) {
	if n <= 0 {
		return
	}
	n = l.clamp(n)
	l.inUse.Add(-n)
	l.sem.Release(n)
}

// Total returns the configured budget.
func (l *Limiter) Total() int64 {
	return l.total
}

// InUse returns the amount currently held.
func (l *Limiter) InUse() int64 {
	return l.inUse.Load()
}
