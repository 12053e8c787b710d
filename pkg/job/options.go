package job

import (
	"context"
	"log/slog"
)

// Options holds the configuration of a new job.
type Options struct {
	Txn            *Txn
	Internal       bool
	ManualFinalize bool
	ManualDismiss  bool
	OnComplete     func(j *Job, err error)
	Type           string
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// InTxn adds the job to an existing transaction.
func InTxn(t *Txn) Option {
	return optionFunc(func(o *Options) {
		o.Txn = t
	})
}

// Internal marks the job as internal. Internal jobs have no ID.
func Internal() Option {
	return optionFunc(func(o *Options) {
		o.Internal = true
	})
}

// ManualFinalize keeps the job pending until Finalize is called.
func ManualFinalize() Option {
	return optionFunc(func(o *Options) {
		o.ManualFinalize = true
	})
}

// ManualDismiss keeps the job concluded until Dismiss is called.
func ManualDismiss() Option {
	return optionFunc(func(o *Options) {
		o.ManualDismiss = true
	})
}

// OnComplete registers a callback run at finalization with the job's result.
func OnComplete(fn func(j *Job, err error)) Option {
	return optionFunc(func(o *Options) {
		o.OnComplete = fn
	})
}

// WithType overrides the job type name.
func WithType(name string) Option {
	return optionFunc(func(o *Options) {
		o.Type = name
	})
}

// RegistryOptions holds the configuration of a Registry.
type RegistryOptions struct {
	Logger  *slog.Logger
	Context context.Context
}

// RegistryOption modifies RegistryOptions.
type RegistryOption interface {
	ApplyRegistry(*RegistryOptions)
}

type registryOptionFunc func(*RegistryOptions)

func (f registryOptionFunc) ApplyRegistry(o *RegistryOptions) { f(o) }

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return registryOptionFunc(func(o *RegistryOptions) {
		o.Logger = l
	})
}

// WithContext sets the parent of every job context.
func WithContext(ctx context.Context) RegistryOption {
	return registryOptionFunc(func(o *RegistryOptions) {
		o.Context = ctx
	})
}
