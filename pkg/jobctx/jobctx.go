// Package jobctx provides public access to the running job from inside a
// driver's Run method.
package jobctx

import (
	"context"
	"log/slog"

	intctx "github.com/jdziat/simple-block-jobs/pkg/internal/context"
	"github.com/jdziat/simple-block-jobs/pkg/job"
)

// JobFromContext returns the current Job from context, or nil if not in a job.
func JobFromContext(ctx context.Context) *job.Job {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return nil
	}
	j, _ := jc.Job.(*job.Job)
	return j
}

// JobIDFromContext returns the current job ID, or "" if not in a job or the
// job is internal.
func JobIDFromContext(ctx context.Context) string {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return ""
	}
	return jc.JobID
}

// HandleFromContext returns the current job handle, or "".
func HandleFromContext(ctx context.Context) string {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return ""
	}
	return jc.Handle
}

// Logger returns the job's logger, or slog.Default() outside a job.
func Logger(ctx context.Context) *slog.Logger {
	jc := intctx.GetJobContext(ctx)
	if jc == nil || jc.Logger == nil {
		return slog.Default()
	}
	return jc.Logger
}

// PausePoint runs the current job's pause point. Outside a job it does
// nothing.
func PausePoint(ctx context.Context) {
	if j := JobFromContext(ctx); j != nil {
		j.PausePoint()
	}
}

// ReportProgress records n units of work for the current job. Outside a job
// it does nothing.
func ReportProgress(ctx context.Context, n uint64) {
	if j := JobFromContext(ctx); j != nil {
		j.ProgressUpdate(n)
	}
}

// IsCancelled reports whether the current job was force-cancelled.
func IsCancelled(ctx context.Context) bool {
	if j := JobFromContext(ctx); j != nil {
		return j.IsCancelled()
	}
	return false
}
