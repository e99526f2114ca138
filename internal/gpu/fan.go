package gpu

import (
	"codeberg.org/mutker/hashtop/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// readFanSpeed averages the speed of all fans on d. Fanless devices and
// devices that hide fan control report nil.
func readFanSpeed(d device) (*float64, error) {
	errFactory := errors.New()

	count, ret := d.GetNumFans()
	if isUnsupported(ret) || (IsNVMLSuccess(ret) && count == 0) {
		return nil, nil
	}
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrGetFanSpeedFailed, newNVMLError(ret))
	}

	var sum uint32
	for i := 0; i < count; i++ {
		speed, ret := d.GetFanSpeed_v2(i)
		if isUnsupported(ret) {
			return nil, nil
		}
		if !IsNVMLSuccess(ret) {
			return nil, errFactory.WithData(ErrGetFanSpeedFailed, struct {
				Fan   int
				Error string
			}{
				Fan:   i,
				Error: nvml.ErrorString(ret),
			})
		}
		sum += speed
	}

	avg := float64(sum) / float64(count)
	return &avg, nil
}
