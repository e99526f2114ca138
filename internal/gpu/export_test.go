package gpu

import "codeberg.org/mutker/hashtop/internal/logger"

// Device mirrors the NVML device subset read by the sampler.
type Device = device

// Controller mirrors the NVML lifecycle used by the sampler.
type Controller interface {
	Initialize() error
	Shutdown() error
	Devices() ([]Device, error)
}

func NewTestSampler(ctrl Controller, log logger.Logger) Sampler {
	return newSampler(ctrl, log)
}
