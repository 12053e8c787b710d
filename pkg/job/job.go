package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/security"
)

// Job is one asynchronous operation managed by a Registry.
//
// Methods fall in two groups. Control-plane verbs (Start, Cancel, Complete,
// Finalize, Dismiss and the user variants) may be called from any goroutine
// except driver hooks. Driver-side methods (PausePoint, Yield, Sleep,
// TransitionToReady and the progress methods) are meant for Run.
type Job struct {
	r          *Registry
	id         string
	handle     string
	typ        string
	driver     Driver
	onComplete func(j *Job, err error)
	logger     *slog.Logger
	created    time.Time

	ctx       context.Context
	cancelCtx context.CancelFunc
	wake      chan struct{}

	// Guarded by r.mu.
	status       core.Status
	refcnt       int
	txn          *Txn
	pauseCount   int
	paused       bool
	userPaused   bool
	cancelled    bool
	forceCancel  bool
	busy         bool
	deferred     bool
	started      bool
	freed        bool
	autoFinalize bool
	autoDismiss  bool
	ret          error
	timer        *time.Timer
	timerGen     uint64
	speed        int64
	limiter      *rate.Limiter

	progress progress
}

// ID returns the job ID; internal jobs return "".
func (j *Job) ID() string { return j.id }

// Handle returns the unique handle assigned at creation.
func (j *Job) Handle() string { return j.handle }

// Type returns the job type name.
func (j *Job) Type() string { return j.typ }

// Driver returns the job's driver.
func (j *Job) Driver() Driver { return j.driver }

// Context returns the context passed to Run.
func (j *Job) Context() context.Context { return j.ctx }

// Logger returns a logger carrying the job's attributes.
func (j *Job) Logger() *slog.Logger { return j.logger }

// CreatedAt returns the creation time.
func (j *Job) CreatedAt() time.Time { return j.created }

// Internal reports whether the job has no ID.
func (j *Job) Internal() bool { return j.id == "" }

func (j *Job) displayID() string {
	if j.id == "" {
		return "internal:" + j.handle[:8]
	}
	return j.id
}

func (j *Job) String() string {
	return fmt.Sprintf("job(%s)", j.displayID())
}

func (j *Job) locked(fn func()) {
	j.r.mu.Lock()
	defer j.r.mu.Unlock()
	fn()
}

// Status returns the current status.
func (j *Job) Status() core.Status {
	var s core.Status
	j.locked(func() { s = j.status })
	return s
}

// IsCancelled reports whether the job was force-cancelled.
func (j *Job) IsCancelled() bool {
	var v bool
	j.locked(func() { v = j.forceCancel })
	return v
}

// CancelRequested reports whether any cancellation was requested.
func (j *Job) CancelRequested() bool {
	var v bool
	j.locked(func() { v = j.cancelled })
	return v
}

// IsCompleted reports whether the job's Run has been accounted for.
func (j *Job) IsCompleted() bool { return j.Status().IsCompleted() }

// IsReady reports whether the job is in its ready phase.
func (j *Job) IsReady() bool { return j.Status().IsReady() }

// NotPausedNorCancelled reports whether the job should keep working.
func (j *Job) NotPausedNorCancelled() bool {
	var v bool
	j.locked(func() { v = j.pauseCount == 0 && !j.forceCancel })
	return v
}

// Busy reports whether the job goroutine is running rather than parked.
func (j *Job) Busy() bool {
	var v bool
	j.locked(func() { v = j.busy })
	return v
}

// Paused reports whether the job is parked at a pause point.
func (j *Job) Paused() bool {
	var v bool
	j.locked(func() { v = j.paused })
	return v
}

// UserPaused reports whether a user pause is in effect.
func (j *Job) UserPaused() bool {
	var v bool
	j.locked(func() { v = j.userPaused })
	return v
}

// PauseCount returns the number of outstanding pause requests.
func (j *Job) PauseCount() int {
	var v int
	j.locked(func() { v = j.pauseCount })
	return v
}

// Err returns the job result recorded when Run returned.
func (j *Job) Err() error {
	var err error
	j.locked(func() { err = j.ret })
	return err
}

// Failed reports whether the job ended with an error.
func (j *Job) Failed() bool { return j.Err() != nil }

// Start launches Run. It may be called once, on a created job.
func (j *Job) Start() error {
	r := j.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.started || j.status != core.StatusCreated {
		return core.ErrAlreadyStarted
	}
	j.started = true
	j.pauseCount--
	j.busy = true
	j.paused = false
	r.transitionLocked(j, core.StatusRunning)
	go j.entry()
	return nil
}

// entry is the body of the job goroutine.
func (j *Job) entry() {
	j.PausePoint()
	err := j.run()

	r := j.r
	r.mu.Lock()
	if err != nil && j.forceCancel && errors.Is(err, context.Canceled) {
		err = core.ErrCancelled
	}
	j.ret = err
	j.deferred = true
	j.busy = true
	r.mu.Unlock()

	r.exit(j)
}

func (j *Job) run() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return j.driver.Run(j.ctx, j)
}

// exit accounts for a finished Run on the control plane.
func (r *Registry) exit(j *Job) {
	r.lock()
	defer r.unlock()

	j.refcnt++
	j.busy = false
	r.emitIdle(j)
	r.completedLocked(j)
	r.unrefLocked(j)
}

func (r *Registry) emitIdle(j *Job) {
	r.emit(&core.JobIdle{JobID: j.id, Timestamp: time.Now()})
}

// unrefLocked drops a reference. The last reference removes the job from
// the registry.
func (r *Registry) unrefLocked(j *Job) {
	j.refcnt--
	if j.refcnt > 0 || j.freed {
		return
	}
	if j.status != core.StatusNull || j.timer != nil || j.txn != nil {
		panic(fmt.Sprintf("jobs: freeing live job %s in state %s", j.displayID(), j.status))
	}
	j.freed = true
	if f, ok := j.driver.(Freer); ok {
		r.mu.Unlock()
		f.Free(j)
		r.mu.Lock()
	}
	for i, x := range r.jobs {
		if x == j {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			break
		}
	}
	j.cancelCtx()
	r.cond.Broadcast()
}

// EarlyFail dismisses a job that was created but never started.
func (j *Job) EarlyFail() error {
	r := j.r
	r.lock()
	defer r.unlock()
	if j.status != core.StatusCreated || j.started {
		return core.ErrAlreadyStarted
	}
	r.doDismissLocked(j)
	return nil
}

// SetSpeed sets the job's rate limit in bytes per second; 0 removes it.
func (j *Job) SetSpeed(speed int64) error {
	r := j.r
	r.lock()
	defer r.unlock()
	if err := r.applyVerbLocked(j, core.VerbSetSpeed); err != nil {
		return err
	}
	if err := security.ValidateSpeed(speed); err != nil {
		return fmt.Errorf("%w: %d", err, speed)
	}
	j.speed = speed
	if speed == 0 {
		j.limiter = nil
		return nil
	}
	j.limiter = rate.NewLimiter(rate.Limit(speed), int(speed))
	return nil
}

// Speed returns the configured rate limit, 0 if none.
func (j *Job) Speed() int64 {
	var v int64
	j.locked(func() { v = j.speed })
	return v
}

// RateLimitDelay accounts n bytes against the rate limit and returns how
// long the job should sleep before continuing.
func (j *Job) RateLimitDelay(n int64) time.Duration {
	r := j.r
	r.mu.Lock()
	lim := j.limiter
	speed := j.speed
	r.mu.Unlock()
	if lim == nil || n <= 0 {
		return 0
	}
	now := time.Now()
	var d time.Duration
	for n > 0 {
		c := min(n, speed)
		d = lim.ReserveN(now, int(c)).DelayFrom(now)
		n -= c
	}
	return d
}

// Info is a point-in-time view of a job.
type Info struct {
	ID              string
	Handle          string
	Type            string
	Status          core.Status
	CurrentProgress uint64
	TotalProgress   uint64
	Speed           int64
	Busy            bool
	Paused          bool
	Cancelled       bool
	AutoFinalize    bool
	AutoDismiss     bool
	Error           string
	CreatedAt       time.Time
}

// Info returns a snapshot of the job.
func (j *Job) Info() Info {
	cur, total := j.Progress()
	var info Info
	j.locked(func() {
		info = Info{
			ID:              j.id,
			Handle:          j.handle,
			Type:            j.typ,
			Status:          j.status,
			CurrentProgress: cur,
			TotalProgress:   total,
			Speed:           j.speed,
			Busy:            j.busy,
			Paused:          j.paused,
			Cancelled:       j.forceCancel,
			AutoFinalize:    j.autoFinalize,
			AutoDismiss:     j.autoDismiss,
			CreatedAt:       j.created,
		}
		if j.ret != nil {
			info.Error = security.SanitizeErrorMessage(j.ret.Error())
		}
	})
	return info
}
