package core

import (
	"errors"
	"fmt"
)

// Usage errors. These never change job state.
var (
	ErrMissingID       = errors.New("jobs: an explicit job ID is required")
	ErrInvalidID       = errors.New("jobs: invalid job ID")
	ErrDuplicateID     = errors.New("jobs: job ID already in use")
	ErrInternalWithID  = errors.New("jobs: cannot specify job ID for internal job")
	ErrJobIDTooLong    = errors.New("jobs: job ID too long")
	ErrJobNotFound     = errors.New("jobs: job not found")
	ErrAlreadyPaused   = errors.New("jobs: job is already paused")
	ErrNotPaused       = errors.New("jobs: can't resume a job that was not paused")
	ErrCannotComplete  = errors.New("jobs: the active job cannot be completed")
	ErrInvalidSpeed    = errors.New("jobs: invalid speed")
	ErrAlreadyStarted  = errors.New("jobs: job already started")
	ErrRegistryClosing = errors.New("jobs: registry is shutting down")
)

// ErrCancelled is the canonical result of a job that was cancelled without
// reporting an error of its own.
var ErrCancelled = errors.New("jobs: operation cancelled")

// VerbError reports a verb that the job's current status does not accept.
type VerbError struct {
	JobID  string
	Status Status
	Verb   Verb
}

func (e *VerbError) Error() string {
	return fmt.Sprintf("jobs: job '%s' in state '%s' cannot accept command verb '%s'", e.JobID, e.Status, e.Verb)
}

// IOOp identifies the side of a copy that failed.
type IOOp string

const (
	OpRead       IOOp = "read"
	OpWrite      IOOp = "write"
	OpCopyRange  IOOp = "copy-range"
	OpZeroWrite  IOOp = "write-zeroes"
	OpStatus     IOOp = "block-status"
	OpAllocation IOOp = "is-allocated"
)

// IOError is a failed device operation surfaced by the copy engine.
type IOError struct {
	Op     IOOp
	Offset int64
	Bytes  int64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s at offset %d (%d bytes): %v", e.Op, e.Offset, e.Bytes, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsRead reports whether the failure happened on the source side.
func (e *IOError) IsRead() bool {
	return e.Op == OpRead || e.Op == OpStatus || e.Op == OpAllocation
}

// ErrorIsRead reports whether err carries a read-side IOError.
func ErrorIsRead(err error) bool {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return ioErr.IsRead()
	}
	return false
}
