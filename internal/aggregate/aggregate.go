// Package aggregate turns raw health and share samples of one miner into
// display series. Everything here is pure and deterministic.
package aggregate

import (
	"sort"
	"strconv"
	"time"
	// Display zones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/model"
)

// Statistic names accepted by Compute.
const (
	StatShares      = "shares"
	StatTemperature = "temperature"
	StatFanSpeed    = "fan_speed"
	StatPowerDraw   = "power_draw"
	StatPowerLimit  = "power_limit"
	StatHashrate    = "hashrate"
	StatBreakdown   = "breakdown"
)

const (
	DefaultMAFactor = 4

	noDataAdvisory = "No data to display for the selected window"
	hashrateScale  = 1e6
)

// Point is one value of a series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is an ordered run of points plus display metadata. Window is the
// smoothing window applied, zero for raw values.
type Series struct {
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	Unit   string  `json:"unit"`
	Window int     `json:"window"`
	GPUNo  *int    `json:"gpu_no,omitempty"`
	Points []Point `json:"points"`
}

// Result is the outcome of Compute. Empty is set, with an Advisory, when the
// window holds nothing to show.
type Result struct {
	Statistic string     `json:"statistic"`
	Timezone  string     `json:"timezone"`
	Series    []Series   `json:"series,omitempty"`
	Breakdown []GPUShare `json:"breakdown,omitempty"`
	Empty     bool       `json:"empty"`
	Advisory  string     `json:"advisory,omitempty"`
}

// Input is an immutable snapshot of one miner's samples over a window.
type Input struct {
	Statistic string
	Timezone  string
	Health    []model.HealthSample
	Shares    []model.ShareSample
	// MAFactor scales the bucket count down to the moving-average window.
	// Zero means DefaultMAFactor.
	MAFactor int
}

type instrument struct {
	label string
	unit  string
	value func(model.HealthSample) (float64, bool)
}

var instruments = map[string]instrument{
	StatTemperature: {
		label: "Temperature",
		unit:  "°C",
		value: func(h model.HealthSample) (float64, bool) { return h.Temperature, true },
	},
	StatFanSpeed: {
		label: "Fan speed",
		unit:  "%",
		value: func(h model.HealthSample) (float64, bool) { return deref(h.FanSpeed) },
	},
	StatPowerDraw: {
		label: "Power draw",
		unit:  "W",
		value: func(h model.HealthSample) (float64, bool) { return h.PowerDraw, true },
	},
	StatPowerLimit: {
		label: "Power limit",
		unit:  "W",
		value: func(h model.HealthSample) (float64, bool) { return deref(h.PowerLimit) },
	},
	StatHashrate: {
		label: "Hashrate",
		unit:  "MH/s",
		value: func(h model.HealthSample) (float64, bool) { return h.Hashrate / hashrateScale, true },
	},
}

// Statistics lists the statistic names Compute understands.
func Statistics() []string {
	names := []string{StatShares, StatBreakdown}
	for name := range instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute builds the series for in.Statistic in the display timezone.
func Compute(in Input) (Result, error) {
	errFactory := errors.New()

	loc, err := loadLocation(in.Timezone)
	if err != nil {
		return Result{}, errFactory.Wrap(ErrInvalidTimezone, err).
			WithMessage("unknown timezone " + in.Timezone)
	}

	res := Result{Statistic: in.Statistic, Timezone: loc.String()}

	switch in.Statistic {
	case StatShares:
		if res.Series, err = shareSeries(in.Shares, loc); err != nil {
			return Result{}, err
		}
	case StatBreakdown:
		res.Breakdown = Breakdown(Join(in.Health, in.Shares))
	default:
		inst, ok := instruments[in.Statistic]
		if !ok {
			return Result{}, errFactory.WithMessage(ErrUnknownStatistic, "unknown statistic "+in.Statistic)
		}
		factor := in.MAFactor
		if factor == 0 {
			factor = DefaultMAFactor
		}
		res.Series = instrumentSeries(in.Statistic, inst, in.Health, factor, loc)
	}

	if len(res.Series) == 0 && len(res.Breakdown) == 0 {
		res.Empty = true
		res.Advisory = noDataAdvisory
	}
	return res, nil
}

func shareSeries(shares []model.ShareSample, loc *time.Location) ([]Series, error) {
	buckets := BucketShares(shares)
	if len(buckets) == 0 {
		return nil, nil
	}

	window := WindowLength(len(buckets))
	order := PolyOrder(window)

	valid := make([]float64, len(buckets))
	invalid := make([]float64, len(buckets))
	for i, b := range buckets {
		valid[i] = float64(b.Valid)
		invalid[i] = float64(b.Invalid)
	}

	at := func(values []float64) []Point {
		points := make([]Point, len(buckets))
		for i, b := range buckets {
			points[i] = Point{Time: b.Time.In(loc), Value: values[i]}
		}
		return points
	}

	validSmoothed, err := SavGol(valid, window, order)
	if err != nil {
		return nil, err
	}
	invalidSmoothed, err := SavGol(invalid, window, order)
	if err != nil {
		return nil, err
	}

	return []Series{
		{Name: "valid_shares", Label: "Valid shares", Unit: "shares", Points: at(valid)},
		{Name: "valid_shares_smoothed", Label: "Avg valid shares", Unit: "shares", Window: window, Points: at(validSmoothed)},
		{Name: "invalid_shares", Label: "Invalid shares", Unit: "shares", Points: at(invalid)},
		{Name: "invalid_shares_smoothed", Label: "Avg invalid shares", Unit: "shares", Window: window, Points: at(invalidSmoothed)},
	}, nil
}

// instrumentSeries emits one moving-average series per GPU. The window is
// derived from the number of distinct timestamps across all GPUs.
func instrumentSeries(name string, inst instrument, health []model.HealthSample, factor int, loc *time.Location) []Series {
	buckets := make(map[int64]struct{})
	perGPU := make(map[int][]Point)

	for _, h := range health {
		v, ok := inst.value(h)
		if !ok {
			continue
		}
		buckets[h.Time.UnixNano()] = struct{}{}
		perGPU[h.GPUNo] = append(perGPU[h.GPUNo], Point{Time: h.Time.In(loc), Value: v})
	}
	if len(perGPU) == 0 {
		return nil
	}

	window := MovingAverageWindow(len(buckets), factor)

	gpus := make([]int, 0, len(perGPU))
	for no := range perGPU {
		gpus = append(gpus, no)
	}
	sort.Ints(gpus)

	series := make([]Series, 0, len(gpus))
	for _, no := range gpus {
		points := perGPU[no]
		sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })

		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}
		for i, v := range MovingAverage(values, window) {
			points[i].Value = v
		}

		gpuNo := no
		series = append(series, Series{
			Name:   name,
			Label:  inst.label + " GPU " + strconv.Itoa(no),
			Unit:   inst.unit,
			Window: window,
			GPUNo:  &gpuNo,
			Points: points,
		})
	}
	return series
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func deref(f *float64) (float64, bool) {
	if f == nil {
		return 0, false
	}
	return *f, true
}
