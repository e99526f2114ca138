package api

import (
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
)

const (
	defaultListen          = ":5000"
	defaultShutdownTimeout = 10 * time.Second
	defaultMAFactor        = 4
	maxBodyBytes           = 1 << 20
)

type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	// MAFactor scales bucket counts down to moving-average windows.
	MAFactor int
}

func DefaultConfig() Config {
	return Config{
		Listen:          defaultListen,
		ShutdownTimeout: defaultShutdownTimeout,
		MAFactor:        defaultMAFactor,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Listen == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "listen address is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "shutdown timeout must be positive")
	}
	if c.MAFactor < 1 {
		return errFactory.WithMessage(ErrInvalidConfig, "moving average factor must be at least 1")
	}
	return nil
}
