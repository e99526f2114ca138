package agent

import (
	"net/url"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"github.com/google/uuid"
)

const (
	defaultInterval = time.Minute
	defaultTimeout  = 10 * time.Second
)

type Config struct {
	APIURL   string
	MinerID  string
	Interval time.Duration
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		APIURL:   "http://localhost:5000",
		Interval: defaultInterval,
		Timeout:  defaultTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Key   string
			Value string
		}{
			Key:   "agent.api_url",
			Value: c.APIURL,
		})
	}
	if _, err := uuid.Parse(c.MinerID); err != nil {
		return errFactory.WithMessage(ErrInvalidConfig, "agent.miner_id must be the id of a registered miner")
	}
	if c.Interval <= 0 || c.Timeout <= 0 {
		return errFactory.New(ErrInvalidInterval)
	}
	return nil
}
