package job

import (
	"slices"
	"time"

	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/security"
)

// updateRCLocked turns a force-cancelled success into ErrCancelled and
// moves failed jobs to aborting.
func (r *Registry) updateRCLocked(j *Job) {
	if j.ret == nil && j.forceCancel {
		j.ret = core.ErrCancelled
	}
	if j.ret != nil {
		r.transitionLocked(j, core.StatusAborting)
	}
}

// completedLocked decides the outcome of a job whose Run returned.
func (r *Registry) completedLocked(j *Job) {
	r.updateRCLocked(j)
	if j.ret != nil {
		j.logger.Debug("job failed", "error", j.ret)
		r.completedTxnAbortLocked(j)
	} else {
		r.txnSuccessLocked(j)
	}
}

// completedTxnAbortLocked force-cancels every other member of j's
// transaction, waits for each and finalizes all of them. Only the first
// caller per transaction does the work.
func (r *Registry) completedTxnAbortLocked(j *Job) {
	t := j.txn
	if t.aborting {
		return
	}
	t.aborting = true
	t.refcnt++
	j.refcnt++

	for _, other := range slices.Clone(t.jobs) {
		if other != j {
			r.cancelAsyncLocked(other, true)
		}
	}
	for len(t.jobs) > 0 {
		other := t.jobs[0]
		if !other.status.IsCompleted() {
			if other.started {
				_ = r.finishSyncLocked(other, nil)
			} else {
				r.updateRCLocked(other)
			}
		}
		r.finalizeSingleLocked(other)
	}

	r.unrefLocked(j)
	r.txnUnrefLocked(t)
}

func (r *Registry) txnSuccessLocked(j *Job) {
	t := j.txn
	r.transitionLocked(j, core.StatusWaiting)

	for _, other := range t.jobs {
		if !other.status.IsCompleted() {
			return
		}
		if other.ret != nil {
			panic("jobs: failed job in a succeeding transaction")
		}
	}

	members := r.txnSnapshotLocked(j)
	for _, other := range members {
		r.transitionLocked(other, core.StatusPending)
		if !other.autoFinalize {
			r.emit(&core.JobPending{JobID: other.id, Type: other.typ, Timestamp: time.Now()})
		}
	}
	for _, other := range members {
		if !other.autoFinalize {
			return
		}
	}
	r.doFinalizeLocked(j)
}

// prepareLocked runs the Prepare hook of a job that has not failed.
func (r *Registry) prepareLocked(j *Job) error {
	if p, ok := j.driver.(Preparer); ok && j.ret == nil {
		r.mu.Unlock()
		err := p.Prepare(j)
		r.mu.Lock()
		j.ret = err
		r.updateRCLocked(j)
	}
	return j.ret
}

// doFinalizeLocked prepares the whole transaction and then finalizes it, or
// aborts it if any member fails to prepare.
func (r *Registry) doFinalizeLocked(j *Job) {
	members := r.txnSnapshotLocked(j)
	for _, other := range members {
		if err := r.prepareLocked(other); err != nil {
			r.completedTxnAbortLocked(other)
			return
		}
	}
	for _, other := range members {
		if other.txn != nil {
			r.finalizeSingleLocked(other)
		}
	}
}

// Finalize applies the finalize verb to a pending job, finalizing its
// whole transaction.
func (j *Job) Finalize() error {
	r := j.r
	r.lock()
	defer r.unlock()
	if err := r.applyVerbLocked(j, core.VerbFinalize); err != nil {
		return err
	}
	r.doFinalizeLocked(j)
	return nil
}

// finalizeSingleLocked runs the commit or abort hooks of one completed job,
// reports the result and concludes it.
func (r *Registry) finalizeSingleLocked(j *Job) {
	if !j.status.IsCompleted() {
		panic("jobs: finalizing a job that has not completed")
	}
	// Late transactional failures still need the abort path.
	r.updateRCLocked(j)
	ret := j.ret

	r.mu.Unlock()
	if ret == nil {
		if c, ok := j.driver.(Committer); ok {
			c.Commit(j)
		}
	} else if a, ok := j.driver.(Aborter); ok {
		a.Abort(j)
	}
	if c, ok := j.driver.(Cleaner); ok {
		c.Clean(j)
	}
	if j.onComplete != nil {
		j.onComplete(j, ret)
	}
	r.mu.Lock()

	if j.started {
		cur, total := j.progress.get()
		now := time.Now()
		if j.forceCancel {
			r.emit(&core.JobCancelled{
				JobID: j.id, Handle: j.handle, Type: j.typ,
				Offset: cur, Length: total, Timestamp: now,
			})
		} else {
			ev := &core.JobCompleted{
				JobID: j.id, Handle: j.handle, Type: j.typ,
				Offset: cur, Length: total, Timestamp: now,
			}
			if ret != nil {
				ev.Error = security.SanitizeErrorMessage(ret.Error())
			}
			r.emit(ev)
		}
	}

	if ret != nil {
		j.logger.Info("job aborted", "error", ret)
	} else {
		j.logger.Debug("job committed")
	}
	r.txnDelLocked(j)
	r.concludeLocked(j)
}

func (r *Registry) concludeLocked(j *Job) {
	r.transitionLocked(j, core.StatusConcluded)
	if j.autoDismiss || !j.started {
		r.doDismissLocked(j)
	}
}

func (r *Registry) doDismissLocked(j *Job) {
	j.busy = false
	j.paused = false
	j.deferred = true
	r.txnDelLocked(j)
	r.transitionLocked(j, core.StatusNull)
	r.unrefLocked(j)
}

// Dismiss applies the dismiss verb, releasing a concluded job.
func (j *Job) Dismiss() error {
	r := j.r
	r.lock()
	defer r.unlock()
	if err := r.applyVerbLocked(j, core.VerbDismiss); err != nil {
		return err
	}
	r.doDismissLocked(j)
	return nil
}
