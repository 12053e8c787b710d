package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/digitalocean/go-qemu/qmp"
	"github.com/tidwall/gjson"

	"github.com/jdziat/simple-block-jobs/pkg/job"
)

// QMP error classes.
const (
	ClassGeneric         = "GenericError"
	ClassCommandNotFound = "CommandNotFound"
	ClassDeviceNotActive = "DeviceNotActive"
)

// ErrNotConnected is returned by Run and Events before Connect.
var ErrNotConnected = errors.New("monitor: not connected")

// Error is a failed QMP command.
type Error struct {
	Class string
	Desc  string
}

func (e *Error) Error() string { return e.Desc }

// Monitor is a qmp.Monitor backed by a job registry.
type Monitor struct {
	reg    *job.Registry
	logger *slog.Logger

	mu        sync.Mutex
	connected bool
	streams   map[chan qmp.Event]context.CancelFunc
	wg        sync.WaitGroup
}

var _ qmp.Monitor = (*Monitor)(nil)

// Option configures a Monitor.
type Option interface {
	applyMonitor(*Monitor)
}

type optionFunc func(*Monitor)

func (f optionFunc) applyMonitor(m *Monitor) { f(m) }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	})
}

// New creates a monitor for reg.
func New(reg *job.Registry, opts ...Option) *Monitor {
	m := &Monitor{
		reg:     reg,
		logger:  slog.Default(),
		streams: make(map[chan qmp.Event]context.CancelFunc),
	}
	for _, opt := range opts {
		opt.applyMonitor(m)
	}
	return m
}

// Connect implements qmp.Monitor.
func (m *Monitor) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Disconnect implements qmp.Monitor. Open event streams are closed.
func (m *Monitor) Disconnect() error {
	m.mu.Lock()
	m.connected = false
	for _, cancel := range m.streams {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *Monitor) isConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Run implements qmp.Monitor. It executes one QMP command and returns the
// raw response. Failed commands return an error response together with an
// *Error.
func (m *Monitor) Run(command []byte) ([]byte, error) {
	if !m.isConnected() {
		return nil, ErrNotConnected
	}
	if !gjson.ValidBytes(command) {
		return m.fail(command, &Error{Class: ClassGeneric, Desc: "Invalid JSON"})
	}
	name := gjson.GetBytes(command, "execute").String()
	args := gjson.GetBytes(command, "arguments")
	m.logger.Debug("qmp command", "execute", name, "arguments", args.Raw)

	h, ok := handlers[name]
	if !ok {
		return m.fail(command, &Error{
			Class: ClassCommandNotFound,
			Desc:  fmt.Sprintf("The command %s has not been found", name),
		})
	}
	ret, err := h(m, args)
	if err != nil {
		var qerr *Error
		if !errors.As(err, &qerr) {
			qerr = &Error{Class: ClassGeneric, Desc: err.Error()}
		}
		return m.fail(command, qerr)
	}
	if ret == "" {
		ret = "{}"
	}
	if !gjson.Valid(ret) {
		return m.fail(command, &Error{Class: ClassGeneric, Desc: "Command returned malformed JSON"})
	}
	out := newDocument(`{}`)
	out.setRaw("return", ret)
	return m.respond(out, command, nil)
}

func (m *Monitor) fail(command []byte, e *Error) ([]byte, error) {
	out := newDocument(`{}`)
	out.set("error.class", e.Class)
	out.set("error.desc", e.Desc)
	return m.respond(out, command, e)
}

// respond echoes the command's id into out and returns it with e. A response
// that could not be encoded becomes a GenericError without the id.
func (m *Monitor) respond(out *document, command []byte, e *Error) ([]byte, error) {
	if id := gjson.GetBytes(command, "id"); id.Exists() {
		out.setRaw("id", id.Raw)
	}
	raw, err := out.result()
	if err != nil {
		m.logger.Error("qmp response encoding failed", "error", err)
		e = &Error{Class: ClassGeneric, Desc: "Failed to encode response: " + err.Error()}
		fallback := newDocument(`{}`)
		fallback.set("error.class", e.Class)
		fallback.set("error.desc", e.Desc)
		raw = fallback.raw
	}
	if e != nil {
		return []byte(raw), e
	}
	return []byte(raw), nil
}

// Command builds a QMP command. Each pair of args is a path and a value.
// Values that cannot be encoded as JSON are left out.
func Command(execute string, args ...any) []byte {
	out := newDocument(`{}`)
	out.set("execute", execute)
	for i := 0; i+1 < len(args); i += 2 {
		path, ok := args[i].(string)
		if !ok {
			continue
		}
		out.set("arguments."+path, args[i+1])
		out.err = nil
	}
	return []byte(out.raw)
}
