package pool

import "context"

// Fetcher performs the per-wallet lookups against the mining pool.
// Every failure is reported as ErrUpstreamUnavailable.
type Fetcher interface {
	Balance(ctx context.Context, wallet string) (float64, error)
	EstimatedDailyRevenue(ctx context.Context, wallet string) (float64, error)
	Shares(ctx context.Context, wallet string) (Shares, error)
	EffectiveHashrate(ctx context.Context, wallet string) (float64, error)
	RoundSharePercent(ctx context.Context, wallet string) (float64, error)
}

// Shares are the wallet's share counts over the last day.
type Shares struct {
	Valid   int64 `json:"valid_shares"`
	Stale   int64 `json:"stale_shares"`
	Invalid int64 `json:"invalid_shares"`
}
