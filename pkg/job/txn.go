package job

import "slices"

// Txn groups jobs that succeed or fail together. Every job belongs to
// exactly one transaction; jobs created without one get a private one.
type Txn struct {
	r        *Registry
	jobs     []*Job
	aborting bool
	refcnt   int
}

// NewTxn creates a transaction holding one reference for the caller, which
// must be released with Unref once all jobs have been created.
func (r *Registry) NewTxn() *Txn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newTxnLocked()
}

func (r *Registry) newTxnLocked() *Txn {
	return &Txn{r: r, refcnt: 1}
}

// Unref releases the caller's reference.
func (t *Txn) Unref() {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.txnUnrefLocked(t)
}

// Jobs returns the current members.
func (t *Txn) Jobs() []*Job {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	return slices.Clone(t.jobs)
}

// Aborting reports whether the transaction has started aborting.
func (t *Txn) Aborting() bool {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	return t.aborting
}

func (r *Registry) txnAddLocked(t *Txn, j *Job) {
	if j.txn != nil {
		panic("jobs: job already belongs to a transaction")
	}
	if t.r != r {
		panic("jobs: transaction belongs to another registry")
	}
	j.txn = t
	t.jobs = append(t.jobs, j)
	t.refcnt++
}

func (r *Registry) txnDelLocked(j *Job) {
	t := j.txn
	if t == nil {
		return
	}
	if i := slices.Index(t.jobs, j); i >= 0 {
		t.jobs = slices.Delete(t.jobs, i, i+1)
	}
	j.txn = nil
	r.txnUnrefLocked(t)
}

func (r *Registry) txnUnrefLocked(t *Txn) {
	if t.refcnt <= 0 {
		panic("jobs: transaction released too often")
	}
	t.refcnt--
	if t.refcnt == 0 {
		t.jobs = nil
	}
}

// txnSnapshotLocked returns the members of j's transaction.
func (r *Registry) txnSnapshotLocked(j *Job) []*Job {
	if j.txn == nil {
		return nil
	}
	return slices.Clone(j.txn.jobs)
}
