package job

import (
	"time"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

func (j *Job) shouldPauseLocked() bool { return j.pauseCount > 0 }

func (j *Job) timerNotPendingLocked() bool { return j.timer == nil }

// enterLocked wakes the job goroutine if it is parked. cond, when non-nil,
// must also hold.
func (r *Registry) enterLocked(j *Job, cond func(*Job) bool) {
	if !j.started || j.deferred || j.busy {
		return
	}
	if cond != nil && !cond(j) {
		return
	}
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	j.busy = true
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

// Enter wakes the job if it is parked in Yield, Sleep or a pause point.
// Safe to call from driver hooks.
func (j *Job) Enter() {
	j.locked(func() { j.r.enterLocked(j, nil) })
}

func (r *Registry) timerFired(j *Job, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.timer == nil || j.timerGen != gen {
		return
	}
	j.timer = nil
	r.enterLocked(j, nil)
}

// doYieldLocked parks the job goroutine until it is entered. A non-negative
// d also arms a timer that enters it after d. Called with mu held, which is
// released while parked.
func (r *Registry) doYieldLocked(j *Job, d time.Duration) {
	if d >= 0 {
		j.timerGen++
		gen := j.timerGen
		j.timer = time.AfterFunc(d, func() { r.timerFired(j, gen) })
	}
	j.busy = false
	r.emitIdle(j)
	r.cond.Broadcast()
	r.mu.Unlock()

	<-j.wake

	r.mu.Lock()
	if !j.busy {
		panic("jobs: job resumed without being entered")
	}
}

// PausePoint parks the job while it has pause requests, unless it was
// force-cancelled. Run must call it regularly.
func (j *Job) PausePoint() {
	r := j.r
	r.mu.Lock()
	if !j.shouldPauseLocked() || j.forceCancel {
		r.mu.Unlock()
		return
	}
	if p, ok := j.driver.(Pauser); ok {
		r.mu.Unlock()
		p.Pause(j)
		r.mu.Lock()
	}
	if j.shouldPauseLocked() && !j.forceCancel {
		status := j.status
		to := core.StatusPaused
		if status == core.StatusReady {
			to = core.StatusStandby
		}
		r.transitionLocked(j, to)
		j.paused = true
		r.doYieldLocked(j, -1)
		j.paused = false
		r.transitionLocked(j, status)
	}
	r.mu.Unlock()

	if res, ok := j.driver.(Resumer); ok {
		res.Resume(j)
	}
}

// Yield parks the job until it is entered, then passes a pause point.
// A force-cancelled job returns immediately.
func (j *Job) Yield() {
	j.yield(-1)
}

// Sleep parks the job for d or until it is entered, then passes a pause
// point. A force-cancelled job returns immediately.
func (j *Job) Sleep(d time.Duration) {
	if d < 0 {
		d = 0
	}
	j.yield(d)
}

func (j *Job) yield(d time.Duration) {
	r := j.r
	r.mu.Lock()
	if j.forceCancel {
		r.mu.Unlock()
		return
	}
	if !j.shouldPauseLocked() {
		r.doYieldLocked(j, d)
	}
	r.mu.Unlock()
	j.PausePoint()
}

// Pause adds a pause request. The job parks at its next pause point.
func (j *Job) Pause() {
	j.locked(func() { j.r.pauseLocked(j) })
}

func (r *Registry) pauseLocked(j *Job) {
	j.pauseCount++
	if !j.paused {
		r.enterLocked(j, nil)
	}
}

// Resume drops a pause request added by Pause.
func (j *Job) Resume() {
	j.locked(func() { j.r.resumeLocked(j) })
}

func (r *Registry) resumeLocked(j *Job) {
	if j.pauseCount <= 0 {
		panic("jobs: resume of a job that is not paused")
	}
	j.pauseCount--
	if j.pauseCount > 0 {
		return
	}
	r.enterLocked(j, (*Job).timerNotPendingLocked)
}

// UserPause applies the pause verb.
func (j *Job) UserPause() error {
	r := j.r
	r.lock()
	defer r.unlock()
	if err := r.applyVerbLocked(j, core.VerbPause); err != nil {
		return err
	}
	if j.userPaused {
		return core.ErrAlreadyPaused
	}
	j.userPaused = true
	r.pauseLocked(j)
	return nil
}

// UserResume applies the resume verb.
func (j *Job) UserResume() error {
	r := j.r
	r.lock()
	defer r.unlock()
	if !j.userPaused || j.pauseCount <= 0 {
		return core.ErrNotPaused
	}
	if err := r.applyVerbLocked(j, core.VerbResume); err != nil {
		return err
	}
	r.userResumeHookLocked(j)
	j.userPaused = false
	r.resumeLocked(j)
	return nil
}

func (r *Registry) userResumeHookLocked(j *Job) {
	if u, ok := j.driver.(UserResumer); ok {
		r.mu.Unlock()
		u.UserResume(j)
		r.mu.Lock()
	}
}

// TransitionToReady moves a running job to its ready phase.
func (j *Job) TransitionToReady() {
	r := j.r
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitionLocked(j, core.StatusReady)
	r.emit(&core.JobReady{JobID: j.id, Type: j.typ, Timestamp: time.Now()})
}
