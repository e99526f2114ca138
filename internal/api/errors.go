package api

import "codeberg.org/mutker/hashtop/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("api_invalid_config")

	// Server Errors
	ErrServe    = errors.ErrInitFailed
	ErrShutdown = errors.ErrShutdownFailed

	// Request Errors
	ErrBadRequest = errors.ErrValidation
)
