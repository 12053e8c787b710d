package job

import "context"

// Driver is the behaviour behind a job. Run does the work and runs on the
// job's own goroutine. The context is cancelled when the job is
// force-cancelled.
type Driver interface {
	Run(ctx context.Context, j *Job) error
}

// Preparer is called once on the success path before Commit. An error
// aborts the whole transaction.
type Preparer interface {
	Prepare(j *Job) error
}

// Committer is called when the job finished successfully.
type Committer interface {
	Commit(j *Job)
}

// Aborter is called when the job or its transaction failed.
type Aborter interface {
	Abort(j *Job)
}

// Cleaner is called after Commit or Abort.
type Cleaner interface {
	Clean(j *Job)
}

// Pauser is called from the job goroutine before it pauses.
type Pauser interface {
	Pause(j *Job)
}

// Resumer is called from the job goroutine after a pause point.
type Resumer interface {
	Resume(j *Job)
}

// UserResumer is called when a user pause is lifted.
type UserResumer interface {
	UserResume(j *Job)
}

// Canceller lets a driver handle cancellation cooperatively. It returns the
// effective force flag. Drivers without it are always force-cancelled.
type Canceller interface {
	Cancel(j *Job, force bool) bool
}

// Completer implements the complete verb for jobs with a ready phase.
type Completer interface {
	Complete(j *Job) error
}

// Freer is called once the last reference to the job is gone.
type Freer interface {
	Free(j *Job)
}

// Typed names the job type shown in listings and events.
type Typed interface {
	JobType() string
}

// DriverFunc adapts a function to a Driver.
type DriverFunc func(ctx context.Context, j *Job) error

func (f DriverFunc) Run(ctx context.Context, j *Job) error { return f(ctx, j) }
