package model

import (
	"math"
	"time"
)

// HealthSample is one instrument reading of a GPU.
// FanSpeed and PowerLimit are nil when the reporting agent did not send them.
type HealthSample struct {
	MinerID     string    `json:"miner_id"`
	GPUNo       int       `json:"gpu_no"`
	Time        time.Time `json:"start"`
	Temperature float64   `json:"temperature"`
	PowerDraw   float64   `json:"power_draw"`
	PowerLimit  *float64  `json:"power_limit"`
	FanSpeed    *float64  `json:"fan_speed"`
	Hashrate    float64   `json:"hashrate"`
}

// ShareSample counts the shares a GPU submitted during one time bucket
// lasting Duration seconds.
type ShareSample struct {
	MinerID  string    `json:"miner_id"`
	GPUNo    int       `json:"gpu_no"`
	Start    time.Time `json:"start"`
	Valid    int64     `json:"valid"`
	Invalid  int64     `json:"invalid"`
	Duration int64     `json:"duration"` // seconds
}

// Window bounds a query in time. A zero Start or End leaves that side open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Bounds returns the window as inclusive Unix nanosecond limits.
func (w Window) Bounds() (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !w.Start.IsZero() {
		lo = w.Start.UnixNano()
	}
	if !w.End.IsZero() {
		hi = w.End.UnixNano()
	}
	return lo, hi
}

// Contains reports whether t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	lo, hi := w.Bounds()
	n := t.UnixNano()
	return n >= lo && n <= hi
}
