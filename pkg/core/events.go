package core

import "time"

// Event is the interface for all registry events.
type Event interface {
	eventMarker()
}

// JobStatusChanged is emitted on every state change of a non-internal job.
type JobStatusChanged struct {
	JobID     string
	Handle    string
	Type      string
	From      Status
	To        Status
	Timestamp time.Time
}

func (*JobStatusChanged) eventMarker() {}

// JobReady is emitted when a job enters its ready phase.
type JobReady struct {
	JobID     string
	Type      string
	Timestamp time.Time
}

func (*JobReady) eventMarker() {}

// JobPending is emitted when a manually finalized job waits for Finalize.
type JobPending struct {
	JobID     string
	Type      string
	Timestamp time.Time
}

func (*JobPending) eventMarker() {}

// JobCompleted is emitted when a started job that was not cancelled is
// finalized. Error is set if the job failed.
type JobCompleted struct {
	JobID     string
	Handle    string
	Type      string
	Offset    uint64
	Length    uint64
	Error     string
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobCancelled is emitted when a started, cancelled job is finalized.
type JobCancelled struct {
	JobID     string
	Handle    string
	Type      string
	Offset    uint64
	Length    uint64
	Timestamp time.Time
}

func (*JobCancelled) eventMarker() {}

// JobIdle is emitted whenever a job's goroutine parks.
type JobIdle struct {
	JobID     string
	Timestamp time.Time
}

func (*JobIdle) eventMarker() {}

// JobProgress is emitted when a job reports progress.
type JobProgress struct {
	JobID     string
	Handle    string
	Current   uint64
	Total     uint64
	Timestamp time.Time
}

func (*JobProgress) eventMarker() {}
