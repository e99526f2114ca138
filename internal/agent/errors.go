package agent

import "codeberg.org/mutker/hashtop/internal/errors"

const (
	ErrInvalidConfig   = errors.ErrorCode("agent_invalid_config")
	ErrInvalidInterval = errors.ErrInvalidInterval
	ErrSubmitFailed    = errors.ErrorCode("agent_submit_failed")
	ErrRejected        = errors.ErrorCode("agent_batch_rejected")

	ErrHashrateUnavailable = errors.ErrorCode("agent_hashrate_unavailable")
)
