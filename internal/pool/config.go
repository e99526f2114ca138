package pool

import (
	"net/url"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
)

const (
	defaultBaseURL         = "https://flexpool.io/api/v1"
	defaultTimeout         = 10 * time.Second
	defaultRate            = 10
	defaultBurst           = 5
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = time.Minute
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// Rate is the sustained request rate in requests per second.
	Rate  float64
	Burst int
	// BreakerFailures consecutive server failures open the circuit for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:         defaultBaseURL,
		Timeout:         defaultTimeout,
		Rate:            defaultRate,
		Burst:           defaultBurst,
		BreakerFailures: defaultBreakerFailures,
		BreakerTimeout:  defaultBreakerTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "pool base URL must be absolute")
	}
	if c.Timeout <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "pool timeout must be positive")
	}
	if c.Rate <= 0 || c.Burst < 1 {
		return errFactory.WithMessage(ErrInvalidConfig, "pool rate and burst must be positive")
	}
	if c.BreakerFailures == 0 || c.BreakerTimeout <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "circuit breaker settings must be positive")
	}
	return nil
}
