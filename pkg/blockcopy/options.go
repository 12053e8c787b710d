package blockcopy

import (
	"log/slog"

	"github.com/jdziat/simple-block-jobs/pkg/blockdev"
	"github.com/jdziat/simple-block-jobs/pkg/shres"
)

// Options holds the configuration of a State.
type Options struct {
	WriteFlags      blockdev.Flags
	MemLimit        int64
	Limiter         *shres.Limiter
	SkipUnallocated bool
	NoCopyRange     bool
	Logger          *slog.Logger
}

// NewOptions returns Options with defaults.
func NewOptions() *Options {
	return &Options{
		MemLimit: MaxMem,
		Logger:   slog.Default(),
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// WithWriteFlags sets the flags passed on every target write.
// FlagWriteCompressed disables copy offload.
func WithWriteFlags(f blockdev.Flags) Option {
	return optionFunc(func(o *Options) {
		o.WriteFlags = f
	})
}

// WithMemLimit bounds the bytes held by in-flight requests of this State.
func WithMemLimit(n int64) Option {
	return optionFunc(func(o *Options) {
		if n > 0 {
			o.MemLimit = n
		}
	})
}

// WithLimiter shares an existing limiter between several States.
func WithLimiter(l *shres.Limiter) Option {
	return optionFunc(func(o *Options) {
		o.Limiter = l
	})
}

// WithSkipUnallocated makes Copy skip runs not allocated in the top layer
// of the source.
func WithSkipUnallocated(skip bool) Option {
	return optionFunc(func(o *Options) {
		o.SkipUnallocated = skip
	})
}

// WithCopyRange enables or disables copy offload. It is enabled by default
// when both devices allow transfers of at least one cluster.
func WithCopyRange(enabled bool) Option {
	return optionFunc(func(o *Options) {
		o.NoCopyRange = !enabled
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	})
}
