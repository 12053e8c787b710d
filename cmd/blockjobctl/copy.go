package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/digitalocean/go-qemu/qmp"
	"github.com/spf13/cobra"

	"github.com/jdziat/simple-block-jobs/pkg/blockcopy"
	"github.com/jdziat/simple-block-jobs/pkg/blockdev"
	"github.com/jdziat/simple-block-jobs/pkg/copyjob"
	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/job"
	"github.com/jdziat/simple-block-jobs/pkg/monitor"
	"github.com/jdziat/simple-block-jobs/pkg/recorder"
	"github.com/jdziat/simple-block-jobs/pkg/schedule"
)

type copyOptions struct {
	id              string
	mode            string
	speed           int64
	clusterSize     int64
	memoryLimit     int64
	skipUnallocated bool
	noCopyRange     bool
	create          bool
	schedule        string
	events          bool
}

func newCopyCmd(c *cli) *cobra.Command {
	o := &copyOptions{}
	cmd := &cobra.Command{
		Use:   "copy <source> <target>",
		Short: "Copy a device or image file as a block job",
		Long: `The copy command runs a backup or mirror job from source to target.

A backup job finishes after one pass. A mirror job keeps the target in sync
and is completed as soon as it becomes ready. Interrupting the command
cancels the job. With --schedule the copy is repeated on a cron expression
or fixed interval until interrupted.

Example:
  blockjobctl copy disk.img backup.img --create
  blockjobctl copy /dev/vg0/root root.img --create --speed 104857600
  blockjobctl copy disk.img nightly.img --schedule "0 2 * * *" --events`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.applyDefaults(cmd, c)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.runCopy(ctx, cmd.OutOrStdout(), o, args[0], args[1])
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.id, "id", "copy0", "Job ID")
	f.StringVar(&o.mode, "mode", "", "Job mode: backup or mirror")
	f.Int64Var(&o.speed, "speed", 0, "Rate limit in bytes per second, 0 for unlimited")
	f.Int64Var(&o.clusterSize, "cluster-size", 0, "Copy granularity in bytes")
	f.Int64Var(&o.memoryLimit, "memory-limit", 0, "Bytes held by in-flight requests")
	f.BoolVar(&o.skipUnallocated, "skip-unallocated", false, "Skip clusters not allocated in the source")
	f.BoolVar(&o.noCopyRange, "no-copy-range", false, "Disable copy offload")
	f.BoolVar(&o.create, "create", false, "Create the target with the source's size")
	f.StringVar(&o.schedule, "schedule", "", "Repeat the copy on a cron expression or interval")
	f.BoolVar(&o.events, "events", false, "Print QMP events as JSON lines")
	return cmd
}

// applyDefaults fills flags the user did not set from the configuration.
func (o *copyOptions) applyDefaults(cmd *cobra.Command, c *cli) {
	cc := c.cfg.Copy
	f := cmd.Flags()
	if !f.Changed("mode") {
		o.mode = cc.Mode
	}
	if !f.Changed("speed") {
		o.speed = cc.Speed
	}
	if !f.Changed("cluster-size") {
		o.clusterSize = cc.ClusterSize
	}
	if !f.Changed("memory-limit") {
		o.memoryLimit = cc.MemoryLimit
	}
	if !f.Changed("skip-unallocated") {
		o.skipUnallocated = cc.SkipUnallocated
	}
	if !f.Changed("no-copy-range") {
		o.noCopyRange = !cc.CopyRange
	}
	if !f.Changed("schedule") {
		o.schedule = c.cfg.Schedule
	}
	if c.jsonOut {
		o.events = true
	}
}

func (c *cli) runCopy(ctx context.Context, out io.Writer, o *copyOptions, src, dst string) error {
	mode, err := copyjob.ParseMode(o.mode)
	if err != nil {
		return err
	}

	store, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	reg := job.NewRegistry(job.WithLogger(c.logger))
	defer reg.Close()

	rec := recorder.New(reg, store, recorder.SkipInternal(), recorder.WithLogger(c.logger))
	recCtx, stopRecorder := context.WithCancel(context.Background())
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		_ = rec.Start(recCtx)
	}()
	defer func() {
		stopRecorder()
		<-recDone
	}()
	<-rec.Ready()

	mon := monitor.New(reg, monitor.WithLogger(c.logger))
	if err := mon.Connect(); err != nil {
		return err
	}
	defer mon.Disconnect()

	r := &copyRun{cli: c, opts: o, mode: mode, reg: reg, mon: mon, out: out, src: src, dst: dst}
	if o.schedule == "" {
		return r.once(ctx, o.id)
	}

	sched, err := schedule.Parse(o.schedule)
	if err != nil {
		return err
	}
	s := schedule.NewScheduler(schedule.WithLogger(c.logger), schedule.WithTick(time.Second))
	var n int
	s.Add(o.id, sched, func(ctx context.Context) error {
		n++
		return r.once(ctx, fmt.Sprintf("%s-%d", o.id, n))
	})
	next, _ := s.Next(o.id)
	c.logger.Info("copy scheduled", "job_id", o.id, "next", next)
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// copyRun holds what one scheduled or one-off copy needs.
type copyRun struct {
	cli  *cli
	opts *copyOptions
	mode copyjob.Mode
	reg  *job.Registry
	mon  *monitor.Monitor
	out  io.Writer
	src  string
	dst  string
}

func (r *copyRun) once(ctx context.Context, id string) error {
	o := r.opts
	log := r.cli.logger.With("job_id", id)

	src, err := blockdev.OpenFile(r.src, false, false, 0)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := blockdev.OpenFile(r.dst, true, o.create, src.Length())
	if err != nil {
		return err
	}
	defer dst.Close()
	if dst.Length() < src.Length() {
		return fmt.Errorf("target %s is smaller than source (%d < %d bytes)", r.dst, dst.Length(), src.Length())
	}

	state, err := blockcopy.New(src, dst, o.clusterSize,
		blockcopy.WithMemLimit(o.memoryLimit),
		blockcopy.WithCopyRange(!o.noCopyRange),
		blockcopy.WithLogger(log),
	)
	if err != nil {
		return err
	}
	drv := copyjob.New(state,
		copyjob.WithMode(r.mode),
		copyjob.WithSkipUnallocated(o.skipUnallocated),
	)

	evCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	events, err := r.mon.Events(evCtx)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	j, err := r.reg.Create(id, drv, job.OnComplete(func(_ *job.Job, err error) {
		done <- err
	}))
	if err != nil {
		return err
	}
	if o.speed > 0 {
		if _, err := r.mon.Run(monitor.Command("block-job-set-speed", "device", id, "speed", o.speed)); err != nil {
			j.Cancel(true)
			return err
		}
	}

	start := time.Now()
	if err := j.Start(); err != nil {
		return err
	}
	log.Info("copy started", "source", r.src, "target", r.dst, "mode", r.mode.String(), "bytes", src.Length())

	result := r.wait(ctx, j, events, done)
	if errors.Is(result, core.ErrCancelled) {
		return fmt.Errorf("job %s cancelled after %d bytes", id, drv.Copied())
	}
	if result != nil {
		return fmt.Errorf("job %s failed: %w", id, result)
	}
	if !o.events {
		fmt.Fprintf(r.out, "%s: copied %d bytes in %s\n", id, drv.Copied(), time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// wait relays events until the job is released and returns its result.
// A ready mirror is completed and an interrupt cancels the job.
func (r *copyRun) wait(ctx context.Context, j *job.Job, events <-chan qmp.Event, done <-chan error) error {
	enc := json.NewEncoder(r.out)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var (
		result     error
		finished   bool
		completing bool
		cancelling bool
	)
	complete := func() {
		if completing || cancelling || finished || !j.IsReady() {
			return
		}
		completing = true
		if _, err := r.mon.Run(monitor.Command("block-job-complete", "device", j.ID())); err != nil {
			r.cli.logger.Warn("complete failed", "job_id", j.ID(), "error", err)
			completing = false
		}
	}

	for {
		select {
		case result = <-done:
			finished = true
			done = nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if r.opts.events && belongsTo(ev, j.ID()) {
				if err := enc.Encode(ev); err != nil {
					r.cli.logger.Warn("write event", "error", err)
				}
			}
			switch {
			case ev.Event == monitor.EventBlockJobReady:
				complete()
			case finished && ev.Event == monitor.EventJobStatusChange &&
				ev.Data["id"] == j.ID() && ev.Data["status"] == core.StatusNull.String():
				return result
			}
		case <-ticker.C:
			// Dropped events must not leave us waiting for a job that is gone.
			if finished && r.reg.Get(j.ID()) == nil {
				return result
			}
			complete()
		case <-ctx.Done():
			if !cancelling && !finished {
				cancelling = true
				r.cli.logger.Info("cancelling copy", "job_id", j.ID())
				if _, err := r.mon.Run(monitor.Command("block-job-cancel", "device", j.ID())); err != nil {
					j.Cancel(true)
				}
			}
			ctx = context.Background()
		}
	}
}

func belongsTo(ev qmp.Event, id string) bool {
	if v, ok := ev.Data["id"]; ok {
		return v == id
	}
	return ev.Data["device"] == id
}
