package copyjob

import (
	"fmt"
	"log/slog"
	"time"
)

// Mode selects how a copy job ends.
type Mode int

const (
	// ModeBackup finishes once the bitmap is clean.
	ModeBackup Mode = iota
	// ModeMirror becomes ready after the first pass and syncs until completed.
	ModeMirror
)

func (m Mode) String() string {
	switch m {
	case ModeBackup:
		return "backup"
	case ModeMirror:
		return "mirror"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode returns the Mode with the given name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "backup", "":
		return ModeBackup, nil
	case "mirror":
		return ModeMirror, nil
	}
	return 0, fmt.Errorf("copyjob: unknown mode %q", s)
}

// DefaultInterval is how long a ready mirror sleeps when nothing is dirty.
const DefaultInterval = 100 * time.Millisecond

// Options configures a Driver.
type Options struct {
	Mode            Mode
	FullSync        bool
	SkipUnallocated bool
	ChunkSize       int64
	Interval        time.Duration
	Logger          *slog.Logger
}

// NewOptions returns Options with defaults.
func NewOptions() *Options {
	return &Options{
		Mode:     ModeBackup,
		FullSync: true,
		Interval: DefaultInterval,
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// WithMode sets the job mode.
func WithMode(m Mode) Option {
	return optionFunc(func(o *Options) {
		o.Mode = m
	})
}

// Incremental copies only what is already dirty in the bitmap instead of
// marking the whole device dirty at start.
func Incremental() Option {
	return optionFunc(func(o *Options) {
		o.FullSync = false
	})
}

// WithSkipUnallocated clears the bits of clusters that are not allocated in
// the top layer of the source before copying.
func WithSkipUnallocated(skip bool) Option {
	return optionFunc(func(o *Options) {
		o.SkipUnallocated = skip
	})
}

// WithChunkSize sets the number of bytes handed to each Copy call. The
// default is the engine's copy size.
func WithChunkSize(n int64) Option {
	return optionFunc(func(o *Options) {
		if n > 0 {
			o.ChunkSize = n
		}
	})
}

// WithInterval sets the idle sleep of a ready mirror.
func WithInterval(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		if d > 0 {
			o.Interval = d
		}
	})
}

// WithLogger sets the logger. By default the job's logger is used.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Options) {
		o.Logger = l
	})
}
