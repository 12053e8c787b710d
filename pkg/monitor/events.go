package monitor

import (
	"context"
	"time"

	"github.com/digitalocean/go-qemu/qmp"
	"github.com/tidwall/gjson"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// QMP event names.
const (
	EventJobStatusChange   = "JOB_STATUS_CHANGE"
	EventBlockJobReady     = "BLOCK_JOB_READY"
	EventBlockJobPending   = "BLOCK_JOB_PENDING"
	EventBlockJobCompleted = "BLOCK_JOB_COMPLETED"
	EventBlockJobCancelled = "BLOCK_JOB_CANCELLED"
)

// Events implements qmp.Monitor. The stream is closed when ctx is done or
// the monitor disconnects.
func (m *Monitor) Events(ctx context.Context) (<-chan qmp.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan qmp.Event, 64)
	m.streams[out] = cancel
	src := m.reg.Events()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(out)
		defer m.reg.Unsubscribe(src)
		defer func() {
			m.mu.Lock()
			delete(m.streams, out)
			m.mu.Unlock()
			cancel()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case e := <-src:
				ev, ok := m.translate(e)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// translate maps a registry event to a QMP event. Events of internal jobs
// and events without a QMP counterpart are dropped.
func (m *Monitor) translate(e core.Event) (qmp.Event, bool) {
	var (
		name string
		at   time.Time
		data = newDocument(`{}`)
	)
	switch e := e.(type) {
	case *core.JobStatusChanged:
		if e.JobID == "" {
			return qmp.Event{}, false
		}
		name, at = EventJobStatusChange, e.Timestamp
		data.set("id", e.JobID)
		data.set("status", e.To.String())
	case *core.JobReady:
		if e.JobID == "" {
			return qmp.Event{}, false
		}
		name, at = EventBlockJobReady, e.Timestamp
		m.blockJobData(data, e.JobID, e.Type)
	case *core.JobPending:
		if e.JobID == "" {
			return qmp.Event{}, false
		}
		name, at = EventBlockJobPending, e.Timestamp
		data.set("type", e.Type)
		data.set("id", e.JobID)
	case *core.JobCompleted:
		if e.JobID == "" {
			return qmp.Event{}, false
		}
		name, at = EventBlockJobCompleted, e.Timestamp
		m.blockJobData(data, e.JobID, e.Type)
		data.set("len", e.Length)
		data.set("offset", e.Offset)
		if e.Error != "" {
			data.set("error", e.Error)
		}
	case *core.JobCancelled:
		if e.JobID == "" {
			return qmp.Event{}, false
		}
		name, at = EventBlockJobCancelled, e.Timestamp
		m.blockJobData(data, e.JobID, e.Type)
		data.set("len", e.Length)
		data.set("offset", e.Offset)
	default:
		return qmp.Event{}, false
	}

	raw, err := data.result()
	if err != nil {
		m.logger.Warn("qmp event encoding failed", "event", name, "error", err)
		return qmp.Event{}, false
	}
	ev := qmp.Event{Event: name}
	ev.Data, _ = gjson.Parse(raw).Value().(map[string]interface{})
	ev.Timestamp.Seconds = at.Unix()
	ev.Timestamp.Microseconds = int64(at.Nanosecond() / 1000)
	return ev, true
}

// blockJobData fills the common BLOCK_JOB_* fields.
func (m *Monitor) blockJobData(data *document, id, typ string) {
	data.set("device", id)
	data.set("type", typ)
	var speed int64
	if j := m.reg.Get(id); j != nil {
		speed = j.Speed()
		if !gjson.Get(data.raw, "len").Exists() {
			cur, total := j.Progress()
			data.set("len", total)
			data.set("offset", cur)
		}
	}
	data.set("speed", speed)
}
