package telemetry

import (
	"context"
	"time"
)

// Ingester records telemetry batches for one miner at a time.
type Ingester interface {
	RecordHealth(ctx context.Context, minerID string, readings []Reading) error
	RecordShares(ctx context.Context, minerID string, readings []ShareReading) error
}

// Reading is one GPU instrument reading as submitted by an agent.
type Reading struct {
	GPUNo       int      `json:"gpu_no" validate:"gte=0,lte=255"`
	Temperature float64  `json:"temperature" validate:"gte=-50,lte=150"`
	Power       float64  `json:"power" validate:"gte=0,lte=2000"`
	Hashrate    float64  `json:"hashrate" validate:"gte=0"`
	FanSpeed    *float64 `json:"fan_speed,omitempty" validate:"omitempty,gte=0,lte=100"`
	PowerLimit  *float64 `json:"power_limit,omitempty" validate:"omitempty,gte=0,lte=2000"`
}

// ShareReading counts the shares a GPU submitted over one bucket.
type ShareReading struct {
	GPUNo    int       `json:"gpu_no" validate:"gte=0,lte=255"`
	Start    time.Time `json:"start" validate:"required"`
	Valid    int64     `json:"valid" validate:"gte=0"`
	Invalid  int64     `json:"invalid" validate:"gte=0"`
	Duration int64     `json:"duration" validate:"gte=0"`
}

type healthBatch struct {
	Readings []Reading `json:"readings" validate:"required,min=1,unique=GPUNo,dive"`
}

type shareBatch struct {
	Readings []ShareReading `json:"readings" validate:"required,min=1,dive"`
}
