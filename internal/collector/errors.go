package collector

import "codeberg.org/mutker/hashtop/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig   = errors.ErrorCode("collector_invalid_config")
	ErrInvalidInterval = errors.ErrInvalidInterval

	// Cycle Errors
	ErrAlreadyRunning = errors.ErrAlreadyRunning
	ErrListUsers      = errors.ErrorCode("collector_list_users_failed")
	ErrPersist        = errors.ErrorCode("collector_persist_failed")
)
