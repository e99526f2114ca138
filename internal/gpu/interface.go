package gpu

import (
	"context"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Sampler reads the instruments of every local GPU.
type Sampler interface {
	Initialize() error
	Shutdown() error
	DeviceCount() int
	Sample(ctx context.Context) ([]Sample, error)
}

// Sample is one reading of a single device. FanSpeed and PowerLimit are nil
// when the device does not expose them.
type Sample struct {
	Index       int
	Name        string
	Temperature float64  // °C
	PowerDraw   float64  // W
	PowerLimit  *float64 // W
	FanSpeed    *float64 // percent, averaged over the device's fans
}

// device is the subset of nvml.Device the sampler reads.
type device interface {
	GetName() (string, nvml.Return)
	GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetPowerManagementLimit() (uint32, nvml.Return)
	GetNumFans() (int, nvml.Return)
	GetFanSpeed_v2(fan int) (uint32, nvml.Return)
}
