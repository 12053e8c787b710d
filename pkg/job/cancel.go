package job

import (
	"fmt"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// cancelAsyncLocked records a cancellation request without waiting.
func (r *Registry) cancelAsyncLocked(j *Job, force bool) {
	if c, ok := j.driver.(Canceller); ok {
		r.mu.Unlock()
		force = c.Cancel(j, force)
		r.mu.Lock()
	} else {
		force = true
	}

	if j.userPaused {
		// The caller enters the job.
		r.userResumeHookLocked(j)
		j.userPaused = false
		j.pauseCount--
	}

	// Soft requests are ignored once Run has returned.
	if force || !j.deferred {
		j.cancelled = true
		j.forceCancel = j.forceCancel || force
	}
	if j.forceCancel {
		j.cancelCtx()
	}
}

func (r *Registry) cancelLocked(j *Job, force bool) {
	switch j.status {
	case core.StatusNull:
		return
	case core.StatusConcluded:
		r.doDismissLocked(j)
		return
	}
	r.cancelAsyncLocked(j, force)
	switch {
	case !j.started:
		r.completedLocked(j)
	case j.deferred:
		if j.forceCancel {
			r.completedTxnAbortLocked(j)
		}
	default:
		r.enterLocked(j, nil)
	}
}

// Cancel requests cancellation without checking the verb table. A
// concluded job is dismissed instead.
func (j *Job) Cancel(force bool) {
	r := j.r
	r.lock()
	defer r.unlock()
	r.cancelLocked(j, force)
}

// UserCancel applies the cancel verb.
func (j *Job) UserCancel(force bool) error {
	r := j.r
	r.lock()
	defer r.unlock()
	if err := r.applyVerbLocked(j, core.VerbCancel); err != nil {
		return err
	}
	r.cancelLocked(j, force)
	return nil
}

// CancelSync cancels the job and waits for it to complete. It returns the
// job's result, ErrCancelled for a job cancelled without an error of its own.
func (j *Job) CancelSync(force bool) error {
	r := j.r
	r.lock()
	defer r.unlock()
	return r.finishSyncLocked(j, func() error {
		r.cancelLocked(j, force)
		return nil
	})
}

// Complete applies the complete verb, asking a ready job to finish.
func (j *Job) Complete() error {
	r := j.r
	r.lock()
	defer r.unlock()
	return r.completeLocked(j)
}

func (r *Registry) completeLocked(j *Job) error {
	if err := r.applyVerbLocked(j, core.VerbComplete); err != nil {
		return err
	}
	c, ok := j.driver.(Completer)
	if j.cancelled || !ok {
		return fmt.Errorf("%w: %q", core.ErrCannotComplete, j.displayID())
	}
	r.mu.Unlock()
	err := c.Complete(j)
	r.mu.Lock()
	return err
}

// CompleteSync completes the job and waits for it to finish.
func (j *Job) CompleteSync() error {
	r := j.r
	r.lock()
	defer r.unlock()
	return r.finishSyncLocked(j, func() error {
		return r.completeLocked(j)
	})
}

// FinishSync waits until the job has completed and returns its result.
func (j *Job) FinishSync() error {
	r := j.r
	r.lock()
	defer r.unlock()
	return r.finishSyncLocked(j, nil)
}

// finishSyncLocked runs finish and then waits for j to complete, entering it
// whenever it parks without a pending sleep.
func (r *Registry) finishSyncLocked(j *Job, finish func() error) error {
	j.refcnt++
	if finish != nil {
		if err := finish(); err != nil {
			r.unrefLocked(j)
			return err
		}
	}
	for !j.status.IsCompleted() {
		r.enterLocked(j, (*Job).timerNotPendingLocked)
		r.waitLocked()
	}
	ret := j.ret
	if ret == nil && j.forceCancel {
		ret = core.ErrCancelled
	}
	r.unrefLocked(j)
	return ret
}
