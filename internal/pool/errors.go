package pool

import "codeberg.org/mutker/hashtop/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("pool_invalid_config")

	// Upstream Errors
	ErrUpstreamUnavailable = errors.ErrUpstreamUnavailable
)
