package copyjob

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jdziat/simple-block-jobs/pkg/blockcopy"
	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/job"
	"github.com/jdziat/simple-block-jobs/pkg/jobctx"
)

// Driver runs a copy between the source and target of a blockcopy.State.
type Driver struct {
	state *blockcopy.State
	opts  *Options

	shouldComplete atomic.Bool
	copied         atomic.Int64
	passes         atomic.Int64
}

// New creates a driver for state.
func New(state *blockcopy.State, opts ...Option) *Driver {
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}
	return &Driver{state: state, opts: o}
}

// JobType implements job.Typed.
func (d *Driver) JobType() string { return d.opts.Mode.String() }

// State returns the copy engine.
func (d *Driver) State() *blockcopy.State { return d.state }

// Copied returns the number of bytes copied so far.
func (d *Driver) Copied() int64 { return d.copied.Load() }

// Passes returns the number of completed passes over the bitmap.
func (d *Driver) Passes() int64 { return d.passes.Load() }

func (d *Driver) logger(ctx context.Context) *slog.Logger {
	if d.opts.Logger != nil {
		return d.opts.Logger
	}
	return jobctx.Logger(ctx)
}

func (d *Driver) chunkSize() int64 {
	n := d.opts.ChunkSize
	if n <= 0 {
		n = d.state.CopySize()
	}
	c := d.state.ClusterSize()
	if n < c {
		return c
	}
	return n / c * c
}

// Run implements job.Driver.
func (d *Driver) Run(ctx context.Context, j *job.Job) error {
	s := d.state
	bm := s.Bitmap()
	log := d.logger(ctx)

	s.SetCallbacks(blockcopy.Callbacks{
		OnBytesCopied: func(n int64) {
			d.copied.Add(n)
			j.ProgressUpdate(uint64(n))
		},
		OnProgressReset: func() {
			j.ProgressSetRemaining(uint64(bm.DirtyBytes()))
		},
	})
	defer s.SetCallbacks(blockcopy.Callbacks{})

	if d.opts.FullSync {
		bm.SetAll()
	}
	j.ProgressSetRemaining(uint64(bm.DirtyBytes()))
	log.Debug("copy started", "mode", d.opts.Mode.String(), "bytes", bm.DirtyBytes(), "cluster", s.ClusterSize())

	if d.opts.SkipUnallocated {
		if err := d.resetUnallocated(ctx, j); err != nil || j.IsCancelled() {
			return err
		}
	}

	if err := d.drain(ctx, j); err != nil || j.IsCancelled() {
		return err
	}
	if d.opts.Mode == ModeBackup {
		return nil
	}

	j.TransitionToReady()
	log.Info("mirror ready", "copied", d.copied.Load())
	for !j.CancelRequested() && !d.shouldComplete.Load() {
		if bm.Count() == 0 {
			j.Sleep(d.opts.Interval)
			continue
		}
		if err := d.drain(ctx, j); err != nil || j.IsCancelled() {
			return err
		}
	}
	if j.CancelRequested() {
		// Soft cancel of a ready mirror leaves the target as it is.
		return nil
	}
	// Converge before completing.
	return d.drain(ctx, j)
}

// resetUnallocated walks the source and drops the bits of clusters that
// are not allocated in its top layer.
func (d *Driver) resetUnallocated(ctx context.Context, j *job.Job) error {
	s := d.state
	s.SetSkipUnallocated(true)
	defer s.SetSkipUnallocated(false)

	for off := int64(0); off < s.Len(); {
		if j.IsCancelled() {
			return nil
		}
		j.PausePoint()
		n, _, err := s.ResetUnallocated(ctx, off)
		if err != nil {
			return fmt.Errorf("scan allocation: %w", err)
		}
		off += n
	}
	return nil
}

// drain copies every dirty cluster until the bitmap is clean.
func (d *Driver) drain(ctx context.Context, j *job.Job) error {
	s := d.state
	bm := s.Bitmap()
	length := s.Len()
	chunk := d.chunkSize()

	for bm.Count() > 0 {
		off := bm.NextDirty(0, length)
		for off >= 0 {
			if j.IsCancelled() {
				return nil
			}
			n := min(chunk, length-off)
			before := d.copied.Load()
			isRead, err := s.Copy(ctx, off, n)
			if err != nil {
				if j.IsCancelled() {
					return nil
				}
				d.logger(ctx).Error("copy failed", "offset", off, "bytes", n, "read", isRead, "error", err)
				return err
			}
			if delay := j.RateLimitDelay(d.copied.Load() - before); delay > 0 {
				j.Sleep(delay)
			} else {
				j.PausePoint()
			}

			next := off + n
			if next >= length {
				break
			}
			off = bm.NextDirty(next, length-next)
		}
		d.passes.Add(1)
	}
	return nil
}

// Cancel implements job.Canceller. A ready mirror honours soft requests.
func (d *Driver) Cancel(j *job.Job, force bool) bool {
	if d.opts.Mode == ModeMirror {
		return force || !j.IsReady()
	}
	return true
}

// Complete implements job.Completer.
func (d *Driver) Complete(j *job.Job) error {
	if d.opts.Mode != ModeMirror {
		return fmt.Errorf("%w: %s jobs finish on their own", core.ErrCannotComplete, d.opts.Mode)
	}
	d.shouldComplete.Store(true)
	j.Enter()
	return nil
}

// Commit implements job.Committer.
func (d *Driver) Commit(j *job.Job) {
	j.Logger().Info("copy committed", "copied", d.copied.Load(), "passes", d.passes.Load())
}

// Abort implements job.Aborter.
func (d *Driver) Abort(j *job.Job) {
	j.Logger().Warn("copy aborted", "copied", d.copied.Load(), "error", j.Err())
}

// Clean implements job.Cleaner.
func (d *Driver) Clean(j *job.Job) {
	j.Logger().Debug("copy cleaned up", "dirty", d.state.Bitmap().DirtyBytes())
}
