package telemetry

import (
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
)

const defaultMaxBatchSize = 256

type Config struct {
	// MaxBatchSize caps the number of readings accepted in one call.
	MaxBatchSize int
	// Clock stamps health readings; defaults to time.Now.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxBatchSize: defaultMaxBatchSize,
		Clock:        time.Now,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.MaxBatchSize < 1 {
		return errFactory.WithMessage(ErrInvalidConfig, "max batch size must be at least 1")
	}
	return nil
}
