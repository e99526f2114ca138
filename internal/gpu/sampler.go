package gpu

import (
	"context"
	"sync"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type sampler struct {
	nvml    nvmlController
	devices []device
	names   []string
	log     logger.Logger
	mu      sync.Mutex
}

// NewSampler returns a Sampler backed by the NVIDIA management library.
func NewSampler(log logger.Logger) Sampler {
	return newSampler(&nvmlWrapper{}, log)
}

func newSampler(ctrl nvmlController, log logger.Logger) *sampler {
	return &sampler{nvml: ctrl, log: log}
}

// Initialize loads NVML and enumerates devices. Device indices double as
// GPU numbers, so the order NVML reports is kept.
func (s *sampler) Initialize() error {
	errFactory := errors.New()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.nvml.Initialize(); err != nil {
		return err
	}

	devices, err := s.nvml.Devices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return errFactory.New(ErrNoDevices)
	}

	s.devices = devices
	s.names = make([]string, len(devices))
	for i, d := range devices {
		name, ret := d.GetName()
		if !IsNVMLSuccess(ret) {
			s.log.Warn().Int("index", i).Str("error", nvml.ErrorString(ret)).Msg("Failed to get GPU name")
			continue
		}
		s.names[i] = name
		s.log.Info().Int("index", i).Str("name", name).Msg("Detected GPU")
	}

	return nil
}

func (s *sampler) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices = nil
	s.names = nil
	return s.nvml.Shutdown()
}

func (s *sampler) DeviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

// Sample reads every device once. A device that fails to read is logged and
// left out; the call only fails when no device could be read.
func (s *sampler) Sample(ctx context.Context) ([]Sample, error) {
	errFactory := errors.New()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devices == nil {
		return nil, errFactory.New(ErrNotInitialized)
	}

	samples := make([]Sample, 0, len(s.devices))
	var lastErr error
	for i, d := range s.devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sample, err := readDevice(d)
		if err != nil {
			lastErr = err
			s.log.Warn().Int("index", i).Err(err).Msg("Failed to read GPU")
			continue
		}
		sample.Index = i
		sample.Name = s.names[i]
		samples = append(samples, sample)
	}

	if len(samples) == 0 {
		return nil, errFactory.Wrap(ErrSampleFailed, lastErr)
	}
	return samples, nil
}

func readDevice(d device) (Sample, error) {
	errFactory := errors.New()

	temp, ret := d.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return Sample{}, errFactory.Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
	}

	draw, err := readPowerDraw(d)
	if err != nil {
		return Sample{}, err
	}

	limit, err := readPowerLimit(d)
	if err != nil {
		return Sample{}, err
	}

	fan, err := readFanSpeed(d)
	if err != nil {
		return Sample{}, err
	}

	return Sample{
		Temperature: float64(temp),
		PowerDraw:   draw,
		PowerLimit:  limit,
		FanSpeed:    fan,
	}, nil
}
