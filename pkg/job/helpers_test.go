package job

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// recorder is a driver that logs its hook calls.
type recorder struct {
	run        func(ctx context.Context, j *Job) error
	prepareErr error

	mu    sync.Mutex
	calls []string
}

func (d *recorder) Run(ctx context.Context, j *Job) error {
	if d.run == nil {
		return nil
	}
	return d.run(ctx, j)
}

func (d *recorder) record(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, s)
}

func (d *recorder) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

func (d *recorder) Prepare(*Job) error { d.record("prepare"); return d.prepareErr }
func (d *recorder) Commit(*Job)        { d.record("commit") }
func (d *recorder) Abort(*Job)         { d.record("abort") }
func (d *recorder) Clean(*Job)         { d.record("clean") }
func (d *recorder) JobType() string    { return "test" }

// untilCancelled runs pause points until the job is force-cancelled.
func untilCancelled(_ context.Context, j *Job) error {
	for !j.IsCancelled() {
		j.Sleep(time.Millisecond)
	}
	return nil
}

// blockUntil returns a Run function that waits for ch and returns err.
func blockUntil(ch <-chan struct{}, err error) func(context.Context, *Job) error {
	return func(ctx context.Context, j *Job) error {
		select {
		case <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func waitStatus(t *testing.T, j *Job, want core.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return j.Status() == want }, 5*time.Second, time.Millisecond,
		"job %s never reached %s (now %s)", j.ID(), want, j.Status())
}

// statusLog collects the status changes of one job from the event stream.
type statusLog struct {
	mu     sync.Mutex
	seen   map[string][]core.Status
	events []core.Event
	stop   chan struct{}
	done   chan struct{}
}

func watch(t *testing.T, r *Registry) *statusLog {
	t.Helper()
	ch := r.Events()
	l := &statusLog{
		seen: make(map[string][]core.Status),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(l.done)
		for {
			select {
			case e := <-ch:
				l.mu.Lock()
				l.events = append(l.events, e)
				if sc, ok := e.(*core.JobStatusChanged); ok {
					l.seen[sc.JobID] = append(l.seen[sc.JobID], sc.To)
				}
				l.mu.Unlock()
			case <-l.stop:
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(l.stop)
		<-l.done
		r.Unsubscribe(ch)
	})
	return l
}

func (l *statusLog) statuses(id string) []core.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.seen[id])
}

func (l *statusLog) all() []core.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}
