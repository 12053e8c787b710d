package fanout

import (
	"context"
	"fmt"

	"github.com/jdziat/simple-block-jobs/pkg/job"
)

type outcome struct {
	index int
	err   error
}

// FanOut creates and starts every sub-job in reg and waits until all have
// been finalized. Cancelling ctx force-cancels the sub-jobs; FanOut still
// waits for them to finish.
func FanOut(ctx context.Context, reg *job.Registry, subJobs []SubJob, opts ...Option) ([]Result, error) {
	if len(subJobs) == 0 {
		return nil, nil
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(cfg)
	}
	if cfg.totalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.totalTimeout)
		defer cancel()
	}

	var txn *job.Txn
	if cfg.strategy == StrategyFailFast {
		txn = reg.NewTxn()
		defer txn.Unref()
	}

	done := make(chan outcome, len(subJobs))
	jobs := make([]*job.Job, 0, len(subJobs))
	abort := func(err error) ([]Result, error) {
		for _, j := range jobs {
			j.Cancel(true)
		}
		for range jobs {
			<-done
		}
		return nil, err
	}

	for i, sj := range subJobs {
		j, err := reg.Create(sj.ID, sj.Driver, subJobOptions(i, sj, txn, done)...)
		if err != nil {
			return abort(fmt.Errorf("create sub-job %d: %w", i, err))
		}
		jobs = append(jobs, j)
		if cfg.speed > 0 {
			if err := j.SetSpeed(cfg.speed); err != nil {
				return abort(fmt.Errorf("sub-job %s: %w", j.ID(), err))
			}
		}
	}
	for _, j := range jobs {
		if err := j.Start(); err != nil {
			return abort(fmt.Errorf("start sub-job %s: %w", j.ID(), err))
		}
	}

	results := make([]Result, len(jobs))
	for i, j := range jobs {
		results[i] = Result{Index: i, JobID: j.ID()}
	}
	pending := len(jobs)
	cancelled := false
	for pending > 0 {
		select {
		case o := <-done:
			results[o.index].Err = o.err
			pending--
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				for _, j := range jobs {
					j.Cancel(true)
				}
			}
		}
		if cancelled {
			ctx = context.Background()
		}
	}

	return results, evaluate(cfg, results)
}

// subJobOptions adds the result callback while keeping one the caller set.
func subJobOptions(i int, sj SubJob, txn *job.Txn, done chan<- outcome) []job.Option {
	user := job.NewOptions()
	for _, opt := range sj.Options {
		opt.Apply(user)
	}
	prev := user.OnComplete

	opts := append([]job.Option{}, sj.Options...)
	if txn != nil {
		opts = append(opts, job.InTxn(txn))
	}
	return append(opts, job.OnComplete(func(j *job.Job, err error) {
		if prev != nil {
			prev(j, err)
		}
		done <- outcome{index: i, err: err}
	}))
}

func evaluate(cfg *config, results []Result) error {
	var failures []SubJobFailure
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, SubJobFailure{Index: r.Index, JobID: r.JobID, Err: r.Err})
		}
	}
	if len(failures) == 0 {
		return nil
	}

	switch cfg.strategy {
	case StrategyCollectAll:
		return nil
	case StrategyThreshold:
		ok := float64(len(results)-len(failures)) / float64(len(results))
		if ok >= cfg.threshold {
			return nil
		}
	}
	return &Error{
		TotalCount:  len(results),
		FailedCount: len(failures),
		Strategy:    cfg.strategy,
		Failures:    failures,
	}
}
