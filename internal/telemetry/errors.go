package telemetry

import "codeberg.org/mutker/hashtop/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")

	// Batch Errors
	ErrValidation    = errors.ErrValidation
	ErrBatchTooLarge = errors.ErrValidation

	// Entity Errors
	ErrUnknownMiner = errors.ErrNotFound
)
