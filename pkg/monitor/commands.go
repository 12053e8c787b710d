package monitor

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/jdziat/simple-block-jobs/pkg/core"
	"github.com/jdziat/simple-block-jobs/pkg/job"
)

type handler func(m *Monitor, args gjson.Result) (string, error)

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"qmp_capabilities": func(*Monitor, gjson.Result) (string, error) { return "", nil },
		"query-jobs":       (*Monitor).queryJobs,
		"query-block-jobs": (*Monitor).queryBlockJobs,

		"job-pause":    jobVerb("id", (*job.Job).UserPause),
		"job-resume":   jobVerb("id", (*job.Job).UserResume),
		"job-complete": jobVerb("id", (*job.Job).Complete),
		"job-finalize": jobVerb("id", (*job.Job).Finalize),
		"job-dismiss":  jobVerb("id", (*job.Job).Dismiss),
		"job-cancel": jobVerb("id", func(j *job.Job) error {
			return j.UserCancel(true)
		}),

		"block-job-pause":     jobVerb("device", (*job.Job).UserPause),
		"block-job-resume":    jobVerb("device", (*job.Job).UserResume),
		"block-job-complete":  jobVerb("device", (*job.Job).Complete),
		"block-job-finalize":  jobVerb("id", (*job.Job).Finalize),
		"block-job-dismiss":   jobVerb("id", (*job.Job).Dismiss),
		"block-job-cancel":    (*Monitor).blockJobCancel,
		"block-job-set-speed": (*Monitor).blockJobSetSpeed,
	}
}

// find resolves the job named by args[key]. Internal jobs never match.
func (m *Monitor) find(args gjson.Result, key string) (*job.Job, error) {
	v := args.Get(key)
	if !v.Exists() {
		return nil, &Error{Class: ClassGeneric, Desc: fmt.Sprintf("Parameter '%s' is missing", key)}
	}
	id := v.String()
	var j *job.Job
	if id != "" {
		j = m.reg.Get(id)
	}
	if j == nil {
		if key == "device" {
			return nil, &Error{Class: ClassDeviceNotActive, Desc: fmt.Sprintf("Block job '%s' not found", id)}
		}
		return nil, &Error{Class: ClassGeneric, Desc: fmt.Sprintf("Job not found: %s", id)}
	}
	return j, nil
}

func jobVerb(key string, verb func(*job.Job) error) handler {
	return func(m *Monitor, args gjson.Result) (string, error) {
		j, err := m.find(args, key)
		if err != nil {
			return "", err
		}
		return "", describe(verb(j))
	}
}

func (m *Monitor) blockJobCancel(args gjson.Result) (string, error) {
	j, err := m.find(args, "device")
	if err != nil {
		return "", err
	}
	return "", describe(j.UserCancel(args.Get("force").Bool()))
}

func (m *Monitor) blockJobSetSpeed(args gjson.Result) (string, error) {
	j, err := m.find(args, "device")
	if err != nil {
		return "", err
	}
	speed := args.Get("speed")
	if !speed.Exists() {
		return "", &Error{Class: ClassGeneric, Desc: "Parameter 'speed' is missing"}
	}
	return "", describe(j.SetSpeed(speed.Int()))
}

// describe turns job errors into QMP errors with QEMU's wording.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var verr *core.VerbError
	if errors.As(err, &verr) {
		return &Error{
			Class: ClassGeneric,
			Desc: fmt.Sprintf("Job '%s' in state '%s' cannot accept command verb '%s'",
				verr.JobID, verr.Status, verr.Verb),
		}
	}
	return &Error{Class: ClassGeneric, Desc: err.Error()}
}

// visibleJobs returns the jobs with an ID.
func (m *Monitor) visibleJobs() []*job.Job {
	var out []*job.Job
	for _, j := range m.reg.Jobs() {
		if !j.Internal() {
			out = append(out, j)
		}
	}
	return out
}

func (m *Monitor) queryJobs(gjson.Result) (string, error) {
	out := newDocument("[]")
	for i, j := range m.visibleJobs() {
		info := j.Info()
		p := fmt.Sprintf("%d.", i)
		out.set(p+"id", info.ID)
		out.set(p+"type", info.Type)
		out.set(p+"status", info.Status.String())
		out.set(p+"current-progress", info.CurrentProgress)
		out.set(p+"total-progress", info.TotalProgress)
		if info.Error != "" {
			out.set(p+"error", info.Error)
		}
	}
	return out.result()
}

func (m *Monitor) queryBlockJobs(gjson.Result) (string, error) {
	out := newDocument("[]")
	for i, j := range m.visibleJobs() {
		info := j.Info()
		p := fmt.Sprintf("%d.", i)
		out.set(p+"device", info.ID)
		out.set(p+"type", info.Type)
		out.set(p+"len", info.TotalProgress)
		out.set(p+"offset", info.CurrentProgress)
		out.set(p+"busy", info.Busy)
		out.set(p+"paused", info.Paused)
		out.set(p+"speed", info.Speed)
		out.set(p+"ready", info.Status.IsReady())
		out.set(p+"status", info.Status.String())
		out.set(p+"auto-finalize", info.AutoFinalize)
		out.set(p+"auto-dismiss", info.AutoDismiss)
		if info.Error != "" {
			out.set(p+"error", info.Error)
		}
	}
	return out.result()
}
