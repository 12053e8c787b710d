package job

import (
	"sync"
	"time"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// progress tracks work done against an estimate that may grow.
type progress struct {
	mu      sync.Mutex
	current uint64
	total   uint64
}

func (p *progress) get() (uint64, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.total
}

// Progress returns the work done and the current total estimate.
func (j *Job) Progress() (current, total uint64) {
	return j.progress.get()
}

// ProgressUpdate records done units of work.
func (j *Job) ProgressUpdate(done uint64) {
	j.progress.mu.Lock()
	j.progress.current += done
	if j.progress.current > j.progress.total {
		j.progress.total = j.progress.current
	}
	cur, total := j.progress.current, j.progress.total
	j.progress.mu.Unlock()
	j.emitProgress(cur, total)
}

// ProgressSetRemaining sets the remaining work, adjusting the total.
func (j *Job) ProgressSetRemaining(remaining uint64) {
	j.progress.mu.Lock()
	j.progress.total = j.progress.current + remaining
	cur, total := j.progress.current, j.progress.total
	j.progress.mu.Unlock()
	j.emitProgress(cur, total)
}

// ProgressIncreaseRemaining grows the total estimate by delta.
func (j *Job) ProgressIncreaseRemaining(delta uint64) {
	j.progress.mu.Lock()
	j.progress.total += delta
	cur, total := j.progress.current, j.progress.total
	j.progress.mu.Unlock()
	j.emitProgress(cur, total)
}

func (j *Job) emitProgress(cur, total uint64) {
	j.r.emit(&core.JobProgress{
		JobID:     j.id,
		Handle:    j.handle,
		Current:   cur,
		Total:     total,
		Timestamp: time.Now(),
	})
}
