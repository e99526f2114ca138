package gpu

import "codeberg.org/mutker/hashtop/internal/errors"

const milliWattsToWatts = 1000

func readPowerDraw(d device) (float64, error) {
	usage, ret := d.GetPowerUsage()
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrPowerUsageFailed, newNVMLError(ret))
	}

	return float64(usage) / milliWattsToWatts, nil
}

// readPowerLimit returns nil when the device does not support power
// management.
func readPowerLimit(d device) (*float64, error) {
	limit, ret := d.GetPowerManagementLimit()
	if isUnsupported(ret) {
		return nil, nil
	}
	if !IsNVMLSuccess(ret) {
		return nil, errors.New().Wrap(ErrPowerLimitFailed, newNVMLError(ret))
	}

	watts := float64(limit) / milliWattsToWatts
	return &watts, nil
}
