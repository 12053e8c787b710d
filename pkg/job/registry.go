package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-block-jobs/pkg/core"
	intctx "github.com/jdziat/simple-block-jobs/pkg/internal/context"
	"github.com/jdziat/simple-block-jobs/pkg/security"
)

// Registry owns every live job.
type Registry struct {
	// bql serialises the control plane: completion, finalization and verbs.
	bql sync.Mutex
	// mu is the job mutex. It guards job and transaction fields.
	mu   sync.Mutex
	cond *sync.Cond
	jobs []*Job

	subsMu sync.RWMutex
	subs   []chan core.Event

	logger *slog.Logger
	ctx    context.Context
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := &RegistryOptions{}
	for _, opt := range opts {
		opt.ApplyRegistry(o)
	}
	r := &Registry{
		logger: o.Logger,
		ctx:    o.Context,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.ctx == nil {
		r.ctx = context.Background()
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Create registers a new job in the created state. It does not start it.
func (r *Registry) Create(id string, d Driver, opts ...Option) (*Job, error) {
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if o.Internal {
			return nil, core.ErrInternalWithID
		}
		if err := security.ValidateJobID(id); err != nil {
			return nil, fmt.Errorf("%w: %q", err, id)
		}
		if r.findLocked(id) != nil {
			return nil, fmt.Errorf("%w: %q", core.ErrDuplicateID, id)
		}
	} else if !o.Internal {
		return nil, core.ErrMissingID
	}

	typ := o.Type
	if typ == "" {
		if t, ok := d.(Typed); ok {
			typ = t.JobType()
		}
	}
	if !security.ValidJobType(typ) {
		typ = "job"
	}

	j := &Job{
		r:            r,
		id:           id,
		handle:       uuid.New().String(),
		typ:          typ,
		driver:       d,
		onComplete:   o.OnComplete,
		refcnt:       1,
		paused:       true,
		pauseCount:   1,
		autoFinalize: !o.ManualFinalize,
		autoDismiss:  !o.ManualDismiss,
		wake:         make(chan struct{}, 1),
		created:      time.Now(),
	}
	j.logger = r.logger.With("job_id", j.displayID(), "type", typ)
	j.ctx, j.cancelCtx = context.WithCancel(intctx.WithJobContext(r.ctx, &intctx.JobContext{
		JobID:  id,
		Handle: j.handle,
		Type:   typ,
		Job:    j,
		Logger: j.logger,
	}))

	r.transitionLocked(j, core.StatusCreated)
	r.jobs = append(r.jobs, j)

	// A job outside any transaction gets a private one.
	if o.Txn == nil {
		t := r.newTxnLocked()
		r.txnAddLocked(t, j)
		r.txnUnrefLocked(t)
	} else {
		r.txnAddLocked(o.Txn, j)
	}
	return j, nil
}

func (r *Registry) findLocked(id string) *Job {
	for _, j := range r.jobs {
		if j.id != "" && j.id == id {
			return j
		}
	}
	return nil
}

// Get returns the job with the given ID, or nil.
func (r *Registry) Get(id string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(id)
}

// Lookup is like Get but reports a missing job as ErrJobNotFound.
func (r *Registry) Lookup(id string) (*Job, error) {
	if j := r.Get(id); j != nil {
		return j, nil
	}
	return nil, fmt.Errorf("%w: %q", core.ErrJobNotFound, id)
}

// ByHandle returns the job with the given handle, or nil.
func (r *Registry) ByHandle(handle string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.handle == handle {
			return j
		}
	}
	return nil
}

// Jobs returns a snapshot of all registered jobs in creation order.
func (r *Registry) Jobs() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// CancelSyncAll force-cancels every job and waits until the registry is
// empty.
func (r *Registry) CancelSyncAll() {
	r.bql.Lock()
	defer r.bql.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.jobs) > 0 {
		j := r.jobs[0]
		if j.status == core.StatusNull {
			// Dismissed but still referenced by a waiter.
			r.waitLocked()
			continue
		}
		_ = r.finishSyncLocked(j, func() error {
			r.cancelLocked(j, true)
			return nil
		})
	}
}

// Close cancels all jobs.
func (r *Registry) Close() error {
	r.CancelSyncAll()
	return nil
}

// lock takes the control-plane lock and the job mutex.
func (r *Registry) lock() {
	r.bql.Lock()
	r.mu.Lock()
}

func (r *Registry) unlock() {
	r.mu.Unlock()
	r.bql.Unlock()
}

// waitLocked blocks until the next status change or job park. Called with
// both locks held; both are held again on return. The control-plane lock is
// released meanwhile so other jobs can complete.
func (r *Registry) waitLocked() {
	r.bql.Unlock()
	r.cond.Wait()
	r.mu.Unlock()
	r.bql.Lock()
	r.mu.Lock()
}

// transitionLocked moves j to status s. Illegal transitions panic.
func (r *Registry) transitionLocked(j *Job, s core.Status) {
	from := j.status
	if !core.CanTransition(from, s) {
		panic(&core.TransitionError{JobID: j.displayID(), From: from, To: s})
	}
	j.status = s
	r.cond.Broadcast()
	r.logger.Debug("job status changed", "job_id", j.displayID(), "from", from.String(), "status", s.String())
	r.emit(&core.JobStatusChanged{
		JobID:     j.id,
		Handle:    j.handle,
		Type:      j.typ,
		From:      from,
		To:        s,
		Timestamp: time.Now(),
	})
}

// applyVerbLocked reports whether j accepts verb in its current status.
func (r *Registry) applyVerbLocked(j *Job, verb core.Verb) error {
	if core.VerbAllowed(verb, j.status) {
		return nil
	}
	return &core.VerbError{JobID: j.displayID(), Status: j.status, Verb: verb}
}

// Events returns a channel receiving registry events.
// The caller must call Unsubscribe when done.
func (r *Registry) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()
	return ch
}

// Unsubscribe removes a channel created by Events. The channel is not closed.
func (r *Registry) Unsubscribe(ch <-chan core.Event) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for i, sub := range r.subs {
		if sub == ch {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *Registry) emit(e core.Event) {
	r.subsMu.RLock()
	subs := make([]chan core.Event, len(r.subs))
	copy(subs, r.subs)
	r.subsMu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full
		}
	}
}
