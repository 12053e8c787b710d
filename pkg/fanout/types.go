package fanout

import (
	"fmt"

	"github.com/jdziat/simple-block-jobs/pkg/job"
)

// Strategy decides when a fan-out fails.
type Strategy int

const (
	// StrategyFailFast fails the group on the first failure and aborts
	// every member.
	StrategyFailFast Strategy = iota
	// StrategyCollectAll waits for every job and never fails the group.
	StrategyCollectAll
	// StrategyThreshold fails when fewer than a fraction of jobs succeed.
	StrategyThreshold
)

func (s Strategy) String() string {
	switch s {
	case StrategyFailFast:
		return "fail-fast"
	case StrategyCollectAll:
		return "collect-all"
	case StrategyThreshold:
		return "threshold"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// SubJob is one member of a fan-out.
type SubJob struct {
	ID      string
	Driver  job.Driver
	Options []job.Option
}

// Sub creates a sub-job definition.
func Sub(id string, d job.Driver, opts ...job.Option) SubJob {
	return SubJob{ID: id, Driver: d, Options: opts}
}

// Result is the outcome of one sub-job.
type Result struct {
	Index int // Position in the subJobs slice
	JobID string
	Err   error
}

// Error contains details about fan-out failures.
type Error struct {
	TotalCount  int
	FailedCount int
	Strategy    Strategy
	Failures    []SubJobFailure
}

func (e *Error) Error() string {
	return fmt.Sprintf("fan-out failed: %d/%d sub-jobs failed", e.FailedCount, e.TotalCount)
}

// SubJobFailure contains details about a single sub-job failure.
type SubJobFailure struct {
	Index int
	JobID string
	Err   error
}
