package core

import "fmt"

// Status represents the lifecycle state of a job.
type Status int

const (
	StatusUndefined Status = iota
	StatusCreated
	StatusRunning
	StatusPaused
	StatusReady
	StatusStandby
	StatusWaiting
	StatusPending
	StatusAborting
	StatusConcluded
	StatusNull

	statusMax
)

var statusNames = [statusMax]string{
	StatusUndefined: "undefined",
	StatusCreated:   "created",
	StatusRunning:   "running",
	StatusPaused:    "paused",
	StatusReady:     "ready",
	StatusStandby:   "standby",
	StatusWaiting:   "waiting",
	StatusPending:   "pending",
	StatusAborting:  "aborting",
	StatusConcluded: "concluded",
	StatusNull:      "null",
}

func (s Status) String() string {
	if s < 0 || s >= statusMax {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus returns the Status with the given name.
func ParseStatus(name string) (Status, bool) {
	for s, n := range statusNames {
		if n == name {
			return Status(s), true
		}
	}
	return StatusUndefined, false
}

// AllStatuses lists every status in table order.
func AllStatuses() []Status {
	out := make([]Status, 0, statusMax)
	for s := StatusUndefined; s < statusMax; s++ {
		out = append(out, s)
	}
	return out
}

// IsCompleted reports whether the job has left its run phase.
func (s Status) IsCompleted() bool {
	switch s {
	case StatusWaiting, StatusPending, StatusAborting, StatusConcluded, StatusNull:
		return true
	}
	return false
}

// IsReady reports whether the job is in its ready phase.
func (s Status) IsReady() bool {
	return s == StatusReady || s == StatusStandby
}

// transitionTable lists every legal status change; anything absent is refused.
var transitionTable = [statusMax][statusMax]bool{
	StatusUndefined: {StatusCreated: true},
	StatusCreated:   {StatusRunning: true, StatusAborting: true, StatusNull: true},
	StatusRunning:   {StatusPaused: true, StatusReady: true, StatusWaiting: true, StatusAborting: true},
	StatusPaused:    {StatusRunning: true},
	StatusReady:     {StatusStandby: true, StatusWaiting: true, StatusAborting: true},
	StatusStandby:   {StatusReady: true},
	StatusWaiting:   {StatusPending: true, StatusAborting: true},
	StatusPending:   {StatusAborting: true, StatusConcluded: true},
	StatusAborting:  {StatusAborting: true, StatusConcluded: true},
	StatusConcluded: {StatusNull: true},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to Status) bool {
	if from < 0 || from >= statusMax || to < 0 || to >= statusMax {
		return false
	}
	return transitionTable[from][to]
}

// TransitionError is the panic value raised for an illegal state change.
// It indicates a bug in the job framework, never a data condition.
type TransitionError struct {
	JobID string
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("jobs: illegal transition of job %q from %s to %s", e.JobID, e.From, e.To)
}

// Verb is a user-facing command applied to a job.
type Verb int

const (
	VerbCancel Verb = iota
	VerbPause
	VerbResume
	VerbSetSpeed
	VerbComplete
	VerbFinalize
	VerbDismiss

	verbMax
)

var verbNames = [verbMax]string{
	VerbCancel:   "cancel",
	VerbPause:    "pause",
	VerbResume:   "resume",
	VerbSetSpeed: "set-speed",
	VerbComplete: "complete",
	VerbFinalize: "finalize",
	VerbDismiss:  "dismiss",
}

func (v Verb) String() string {
	if v < 0 || v >= verbMax {
		return fmt.Sprintf("verb(%d)", int(v))
	}
	return verbNames[v]
}

// AllVerbs lists every verb in table order.
func AllVerbs() []Verb {
	out := make([]Verb, 0, verbMax)
	for v := VerbCancel; v < verbMax; v++ {
		out = append(out, v)
	}
	return out
}

var verbTable = [verbMax][statusMax]bool{
	VerbCancel: {
		StatusCreated: true, StatusRunning: true, StatusPaused: true, StatusReady: true,
		StatusStandby: true, StatusWaiting: true, StatusPending: true,
	},
	VerbPause: {
		StatusCreated: true, StatusRunning: true, StatusPaused: true, StatusReady: true, StatusStandby: true,
	},
	VerbResume: {
		StatusCreated: true, StatusRunning: true, StatusPaused: true, StatusReady: true, StatusStandby: true,
	},
	VerbSetSpeed: {
		StatusCreated: true, StatusRunning: true, StatusPaused: true, StatusReady: true, StatusStandby: true,
	},
	VerbComplete: {StatusReady: true, StatusStandby: true},
	VerbFinalize: {StatusPending: true},
	VerbDismiss:  {StatusConcluded: true},
}

// VerbAllowed reports whether verb may be applied to a job in status s.
func VerbAllowed(verb Verb, s Status) bool {
	if verb < 0 || verb >= verbMax || s < 0 || s >= statusMax {
		return false
	}
	return verbTable[verb][s]
}
