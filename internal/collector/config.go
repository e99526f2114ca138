package collector

import (
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
)

const (
	defaultInterval    = 10 * time.Minute
	defaultTimeout     = 2 * time.Minute
	defaultConcurrency = 8
)

type Config struct {
	Interval time.Duration
	// Timeout bounds the fetch phase of one cycle.
	Timeout     time.Duration
	Concurrency int
	// Clock stamps snapshots; defaults to time.Now.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Interval:    defaultInterval,
		Timeout:     defaultTimeout,
		Concurrency: defaultConcurrency,
		Clock:       time.Now,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithMessage(ErrInvalidInterval, "collector interval must be positive")
	}
	if c.Timeout <= 0 || c.Timeout > c.Interval {
		return errFactory.WithMessage(ErrInvalidInterval, "collector timeout must be positive and not exceed the interval")
	}
	if c.Concurrency < 1 {
		return errFactory.WithMessage(ErrInvalidConfig, "collector concurrency must be at least 1")
	}
	return nil
}
