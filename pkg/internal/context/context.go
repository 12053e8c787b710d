// Package context provides context helpers for the jobs package.
package context

import (
	"context"
	"log/slog"
)

// JobContextKey is the key for storing job context in context.Context.
type JobContextKey struct{}

// JobContext describes the job whose Run method owns the context.
type JobContext struct {
	JobID  string
	Handle string
	Type   string
	// Job is the *job.Job; kept untyped to avoid an import cycle.
	Job    any
	Logger *slog.Logger
}

// GetJobContext retrieves the job context from a context.Context.
func GetJobContext(ctx context.Context) *JobContext {
	if jc, ok := ctx.Value(JobContextKey{}).(*JobContext); ok {
		return jc
	}
	return nil
}

// WithJobContext adds job context to a context.Context.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, JobContextKey{}, jc)
}
