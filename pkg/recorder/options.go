package recorder

import (
	"log/slog"
	"time"

	"github.com/jdziat/simple-block-jobs/pkg/security"
)

// Config holds recorder configuration.
type Config struct {
	Workers          int
	Retry            RetryConfig
	ProgressInterval time.Duration
	SkipInternal     bool
	Logger           *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		Retry:            DefaultRetryConfig(),
		ProgressInterval: time.Second,
		Logger:           slog.Default(),
	}
}

// Option configures a Recorder.
type Option interface {
	ApplyRecorder(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) ApplyRecorder(c *Config) { f(c) }

// Workers sets the number of writer goroutines.
// Values are clamped to [1, security.MaxRecorderWorkers].
func Workers(n int) Option {
	return optionFunc(func(c *Config) {
		c.Workers = security.ClampWorkers(n)
	})
}

// WithRetry sets the storage retry policy.
func WithRetry(r RetryConfig) Option {
	return optionFunc(func(c *Config) {
		c.Retry = r
	})
}

// ProgressInterval sets the minimum time between two progress writes of
// one job. Final progress is always written.
func ProgressInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) {
		c.ProgressInterval = d
	})
}

// SkipInternal stops the recorder from persisting jobs without an ID.
func SkipInternal() Option {
	return optionFunc(func(c *Config) {
		c.SkipInternal = true
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	})
}
