package fanout

import (
	"time"
)

// Option configures fan-out behavior.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	strategy     Strategy
	threshold    float64
	speed        int64
	totalTimeout time.Duration
}

func defaultConfig() *config {
	return &config{
		strategy:  StrategyFailFast,
		threshold: 1.0,
	}
}

// FailFast runs the sub-jobs as one transaction.
func FailFast() Option {
	return optionFunc(func(c *config) {
		c.strategy = StrategyFailFast
	})
}

// CollectAll waits for all sub-jobs and returns every result.
func CollectAll() Option {
	return optionFunc(func(c *config) {
		c.strategy = StrategyCollectAll
	})
}

// Threshold succeeds if at least pct (0 to 1) of sub-jobs succeed.
func Threshold(pct float64) Option {
	return optionFunc(func(c *config) {
		c.strategy = StrategyThreshold
		c.threshold = min(max(pct, 0), 1)
	})
}

// WithSpeed sets the rate limit of every sub-job.
func WithSpeed(bytesPerSecond int64) Option {
	return optionFunc(func(c *config) {
		c.speed = bytesPerSecond
	})
}

// WithTimeout force-cancels sub-jobs still running after d.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.totalTimeout = d
	})
}
