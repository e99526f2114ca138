package agent

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"github.com/goccy/go-json"
)

const maxStatsBytes = 1 << 20

// MinerStats reads per-GPU hashrates from the local miner's HTTP stats
// API. The endpoint must answer GET with a summary of the form
//
//	{"gpus": [{"gpu_id": 0, "hashrate": 95000000}, ...]}
//
// which is what T-Rex serves on /summary and what other miners can be
// configured to expose.
type MinerStats struct {
	url    string
	client *http.Client
}

type minerSummary struct {
	GPUs []struct {
		GPUID    *int     `json:"gpu_id"`
		Hashrate *float64 `json:"hashrate"`
	} `json:"gpus"`
}

// NewMinerStats builds a source for the stats endpoint at rawURL.
func NewMinerStats(rawURL string, timeout time.Duration) (*MinerStats, error) {
	errFactory := errors.New()

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errFactory.WithData(ErrInvalidConfig, struct {
			Key   string
			Value string
		}{
			Key:   "agent.hashrate_url",
			Value: rawURL,
		})
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &MinerStats{url: u.String(), client: &http.Client{Timeout: timeout}}, nil
}

// Hashrates fetches the miner summary once and returns the hashrate of
// every GPU listed in it.
func (m *MinerStats) Hashrates(ctx context.Context) (map[int]float64, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, errFactory.Wrap(ErrHashrateUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errFactory.Wrap(ErrHashrateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errFactory.WithData(ErrHashrateUnavailable, struct {
			URL    string
			Status int
		}{
			URL:    m.url,
			Status: resp.StatusCode,
		})
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxStatsBytes))
	if err != nil {
		return nil, errFactory.Wrap(ErrHashrateUnavailable, err)
	}

	var summary minerSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, errFactory.Wrap(ErrHashrateUnavailable, err)
	}

	rates := make(map[int]float64, len(summary.GPUs))
	for _, g := range summary.GPUs {
		if g.GPUID == nil || g.Hashrate == nil || *g.Hashrate < 0 {
			continue
		}
		rates[*g.GPUID] = *g.Hashrate
	}
	return rates, nil
}
