package recorder

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/security"
)

// EventSource is the subscription side of a job registry.
type EventSource interface {
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}

// Recorder writes job history to a store.
type Recorder struct {
	src    EventSource
	store  core.HistoryStore
	config Config
	wg     sync.WaitGroup
	ready  chan struct{}
}

// New creates a recorder. Call Start to begin recording.
func New(src EventSource, store core.HistoryStore, opts ...Option) *Recorder {
	config := DefaultConfig()
	for _, opt := range opts {
		opt.ApplyRecorder(&config)
	}
	config.Workers = security.ClampWorkers(config.Workers)
	return &Recorder{src: src, store: store, config: config, ready: make(chan struct{})}
}

// Ready is closed once Start has subscribed to the event source.
func (r *Recorder) Ready() <-chan struct{} { return r.ready }

// Start records events until ctx is cancelled. Events already received are
// written before Start returns.
func (r *Recorder) Start(ctx context.Context) error {
	events := r.src.Events()
	defer r.src.Unsubscribe(events)
	close(r.ready)

	// Writes after cancellation still need a live context.
	writeCtx := context.WithoutCancel(ctx)

	shards := make([]chan core.Event, r.config.Workers)
	for i := range shards {
		shards[i] = make(chan core.Event, 256)
		r.wg.Add(1)
		go r.writeLoop(writeCtx, shards[i])
	}

	stop := func() {
		for _, ch := range shards {
			close(ch)
		}
		r.wg.Wait()
	}

	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued.
			for {
				select {
				case e := <-events:
					r.dispatch(shards, e)
				default:
					stop()
					return ctx.Err()
				}
			}
		case e := <-events:
			r.dispatch(shards, e)
		}
	}
}

func (r *Recorder) dispatch(shards []chan core.Event, e core.Event) {
	handle, jobID, ok := identify(e)
	if !ok || (r.config.SkipInternal && jobID == "") {
		return
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(handle))
	shards[h.Sum32()%uint32(len(shards))] <- e
}

// identify returns the handle and ID of the job an event is about, and
// whether the recorder persists that event kind.
func identify(e core.Event) (handle, jobID string, ok bool) {
	switch e := e.(type) {
	case *core.JobStatusChanged:
		return e.Handle, e.JobID, true
	case *core.JobProgress:
		return e.Handle, e.JobID, true
	case *core.JobCompleted:
		return e.Handle, e.JobID, true
	case *core.JobCancelled:
		return e.Handle, e.JobID, true
	}
	return "", "", false
}

// writeLoop applies the events of the jobs hashed to one shard.
func (r *Recorder) writeLoop(ctx context.Context, events <-chan core.Event) {
	defer r.wg.Done()
	lastProgress := make(map[string]time.Time)

	for e := range events {
		switch e := e.(type) {
		case *core.JobStatusChanged:
			r.recordStatus(ctx, e)
			if e.To == core.StatusNull {
				delete(lastProgress, e.Handle)
			}
		case *core.JobProgress:
			if e.Current < e.Total && e.Timestamp.Sub(lastProgress[e.Handle]) < r.config.ProgressInterval {
				continue
			}
			lastProgress[e.Handle] = e.Timestamp
			r.write(ctx, "update progress", e.Handle, func() error {
				return r.store.UpdateProgress(ctx, e.Handle, e.Current, e.Total)
			})
		case *core.JobCompleted:
			r.conclude(ctx, e.Handle, false, e.Error, e.Offset, e.Length)
		case *core.JobCancelled:
			r.conclude(ctx, e.Handle, true, "", e.Offset, e.Length)
		}
	}
}

func (r *Recorder) recordStatus(ctx context.Context, e *core.JobStatusChanged) {
	if e.To == core.StatusCreated {
		rec := &core.JobRecord{
			Handle:    e.Handle,
			JobID:     e.JobID,
			Type:      e.Type,
			Status:    e.To.String(),
			CreatedAt: e.Timestamp,
		}
		r.write(ctx, "save job", e.Handle, func() error {
			return r.store.SaveJob(ctx, rec)
		})
		return
	}
	tr := &core.TransitionRecord{
		Handle:    e.Handle,
		JobID:     e.JobID,
		FromState: e.From.String(),
		ToState:   e.To.String(),
		At:        e.Timestamp,
	}
	r.write(ctx, "record transition", e.Handle, func() error {
		// Each attempt inserts under a fresh ID.
		tr.ID = ""
		return r.store.RecordTransition(ctx, tr)
	})
}

func (r *Recorder) conclude(ctx context.Context, handle string, cancelled bool, errMsg string, cur, end uint64) {
	r.write(ctx, "update progress", handle, func() error {
		return r.store.UpdateProgress(ctx, handle, cur, end)
	})
	r.write(ctx, "conclude job", handle, func() error {
		return r.store.Conclude(ctx, handle, cancelled, errMsg)
	})
}

func (r *Recorder) write(ctx context.Context, what, handle string, op func() error) {
	if err := retryWithBackoff(ctx, r.config.Retry, op); err != nil {
		r.config.Logger.Error("failed to "+what+" after retries", "handle", handle, "error", err)
	}
}
