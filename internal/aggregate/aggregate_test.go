package aggregate_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/hashtop/internal/aggregate"
	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTemperatureTwoSamples(t *testing.T) {
	health := []model.HealthSample{
		{GPUNo: 0, Time: at(0), Temperature: 60, PowerDraw: 150, Hashrate: 95},
		{GPUNo: 0, Time: at(10), Temperature: 62, PowerDraw: 152, Hashrate: 94},
	}

	res, err := aggregate.Compute(aggregate.Input{
		Statistic: aggregate.StatTemperature,
		Timezone:  "UTC",
		Health:    health,
	})
	require.NoError(t, err)
	require.False(t, res.Empty)
	require.Len(t, res.Series, 1)

	s := res.Series[0]
	assert.Equal(t, 1, s.Window)
	require.NotNil(t, s.GPUNo)
	assert.Equal(t, 0, *s.GPUNo)
	assert.Equal(t, "°C", s.Unit)
	require.Len(t, s.Points, 2)
	assert.InDelta(t, 60.0, s.Points[0].Value, 1e-9)
	assert.InDelta(t, 62.0, s.Points[1].Value, 1e-9)
}

func TestComputeDisplayTimezone(t *testing.T) {
	res, err := aggregate.Compute(aggregate.Input{
		Statistic: aggregate.StatPowerDraw,
		Timezone:  "Asia/Tokyo",
		Health:    []model.HealthSample{{GPUNo: 0, Time: at(0), PowerDraw: 150}},
	})
	require.NoError(t, err)
	require.Len(t, res.Series, 1)

	p := res.Series[0].Points[0]
	assert.True(t, p.Time.Equal(at(0)))
	assert.Equal(t, 18, p.Time.Hour())
	assert.Equal(t, "Asia/Tokyo", res.Timezone)
}

func TestComputeSkipsMissingOptionalReadings(t *testing.T) {
	fan := 40.0
	res, err := aggregate.Compute(aggregate.Input{
		Statistic: aggregate.StatFanSpeed,
		Health: []model.HealthSample{
			{GPUNo: 0, Time: at(0), FanSpeed: &fan},
			{GPUNo: 1, Time: at(0)},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Equal(t, 0, *res.Series[0].GPUNo)

	res, err = aggregate.Compute(aggregate.Input{
		Statistic: aggregate.StatPowerLimit,
		Health:    []model.HealthSample{{GPUNo: 1, Time: at(0)}},
	})
	require.NoError(t, err)
	assert.True(t, res.Empty)
}

func TestComputeHashrateInMegahashes(t *testing.T) {
	res, err := aggregate.Compute(aggregate.Input{
		Statistic: aggregate.StatHashrate,
		Health:    []model.HealthSample{{GPUNo: 0, Time: at(0), Hashrate: 95_500_000}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 95.5, res.Series[0].Points[0].Value, 1e-9)
	assert.Equal(t, "MH/s", res.Series[0].Unit)
}

func TestComputeShares(t *testing.T) {
	var shares []model.ShareSample
	for m := 0; m < 12; m++ {
		for gpu := 0; gpu < 2; gpu++ {
			shares = append(shares, model.ShareSample{GPUNo: gpu, Start: at(10 * m), Valid: int64(10 + m), Invalid: 1})
		}
	}

	res, err := aggregate.Compute(aggregate.Input{Statistic: aggregate.StatShares, Shares: shares})
	require.NoError(t, err)
	require.Len(t, res.Series, 4)

	names := make([]string, 0, len(res.Series))
	for _, s := range res.Series {
		names = append(names, s.Name)
		assert.Len(t, s.Points, 12)
	}
	assert.Equal(t, []string{"valid_shares", "valid_shares_smoothed", "invalid_shares", "invalid_shares_smoothed"}, names)

	assert.Equal(t, 11, res.Series[1].Window)
	assert.InDelta(t, 20.0, res.Series[0].Points[0].Value, 1e-9)
	// A linear trend survives smoothing.
	for i, p := range res.Series[1].Points {
		assert.InDelta(t, float64(2*(10+i)), p.Value, 1e-6)
	}
}

func TestComputeBreakdown(t *testing.T) {
	res, err := aggregate.Compute(aggregate.Input{
		Statistic: aggregate.StatBreakdown,
		Health: []model.HealthSample{
			{GPUNo: 0, Time: at(0)},
			{GPUNo: 1, Time: at(0)},
		},
		Shares: []model.ShareSample{
			{GPUNo: 0, Start: at(0), Valid: 3, Invalid: 1},
			{GPUNo: 1, Start: at(0)},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Breakdown, 1)
	assert.InDelta(t, 0.75, res.Breakdown[0].ValidFraction, 1e-9)
}

func TestComputeEmpty(t *testing.T) {
	for _, stat := range aggregate.Statistics() {
		res, err := aggregate.Compute(aggregate.Input{Statistic: stat})
		require.NoError(t, err, stat)
		assert.True(t, res.Empty, stat)
		assert.NotEmpty(t, res.Advisory, stat)
	}
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := aggregate.Compute(aggregate.Input{Statistic: "clock"})
	assert.True(t, errors.HasCode(err, errors.ErrValidation))

	_, err = aggregate.Compute(aggregate.Input{Statistic: aggregate.StatShares, Timezone: "Mars/Olympus"})
	assert.True(t, errors.HasCode(err, errors.ErrValidation))
}

func TestComputeIsDeterministic(t *testing.T) {
	in := aggregate.Input{Statistic: aggregate.StatTemperature}
	for m := 0; m < 20; m++ {
		for gpu := 2; gpu >= 0; gpu-- {
			in.Health = append(in.Health, model.HealthSample{GPUNo: gpu, Time: at(m), Temperature: float64(50 + m + gpu)})
		}
	}

	first, err := aggregate.Compute(in)
	require.NoError(t, err)
	for range 5 {
		again, err := aggregate.Compute(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	require.Len(t, first.Series, 3)
	assert.Equal(t, 5, first.Series[0].Window)
	assert.Equal(t, time.UTC, first.Series[0].Points[0].Time.Location())
}
