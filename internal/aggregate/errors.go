package aggregate

import "codeberg.org/mutker/hashtop/internal/errors"

const (
	ErrUnknownStatistic = errors.ErrValidation
	ErrInvalidTimezone  = errors.ErrValidation
	ErrSmoothingFailed  = errors.ErrorCode("aggregate_smoothing_failed")
)
