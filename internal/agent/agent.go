package agent

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/gpu"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/metrics"
	"codeberg.org/mutker/hashtop/internal/telemetry"
	"github.com/goccy/go-json"
)

// HashrateSource reports the current hashrate of every GPU it knows, in
// H/s, keyed by GPU index.
type HashrateSource interface {
	Hashrates(ctx context.Context) (map[int]float64, error)
}

// Agent samples local GPUs and submits them as health batches for one miner.
type Agent struct {
	sampler  gpu.Sampler
	hashrate HashrateSource
	client   *http.Client
	cfg      Config
	log      logger.Logger
	endpoint string
}

// New builds an Agent. Readings are only submitted with a measured
// hashrate, so a hashrate source is required.
func New(sampler gpu.Sampler, hashrate HashrateSource, cfg Config, log logger.Logger) (*Agent, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if hashrate == nil {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "agent requires a hashrate source")
	}

	return &Agent{
		sampler:  sampler,
		hashrate: hashrate,
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		log:      log,
		endpoint: strings.TrimRight(cfg.APIURL, "/") + "/api/v1/miners/" + cfg.MinerID + "/health",
	}, nil
}

func (a *Agent) String() string {
	return "agent"
}

// Serve submits a batch every interval until ctx is cancelled. Failed
// submissions are logged and retried on the next tick.
func (a *Agent) Serve(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.log.Info().
		Str("miner_id", a.cfg.MinerID).
		Dur("interval", a.cfg.Interval).
		Msg("Agent started")

	for {
		if err := a.Submit(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn().Err(err).Msg("Health submission failed")
		}

		select {
		case <-ctx.Done():
			a.log.Info().Msg("Agent stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Submit samples every GPU once and sends the readings as one batch.
func (a *Agent) Submit(ctx context.Context) error {
	readings, err := a.Readings(ctx)
	if err != nil {
		outcome := "sample_failed"
		if errors.HasCode(err, ErrHashrateUnavailable) {
			outcome = string(ErrHashrateUnavailable)
		}
		metrics.AgentSubmissions.WithLabelValues(outcome).Inc()
		return err
	}

	if err := a.post(ctx, readings); err != nil {
		metrics.AgentSubmissions.WithLabelValues(string(errors.CodeOf(err))).Inc()
		return err
	}

	metrics.AgentSubmissions.WithLabelValues("accepted").Inc()
	a.log.Debug().Int("readings", len(readings)).Msg("Health batch accepted")
	return nil
}

// Readings converts one round of GPU samples into ingestion readings.
// GPUs the hashrate source does not report are left out of the batch.
func (a *Agent) Readings(ctx context.Context) ([]telemetry.Reading, error) {
	errFactory := errors.New()

	samples, err := a.sampler.Sample(ctx)
	if err != nil {
		return nil, err
	}

	rates, err := a.hashrate.Hashrates(ctx)
	if err != nil {
		return nil, errFactory.Wrap(ErrHashrateUnavailable, err)
	}

	readings := make([]telemetry.Reading, 0, len(samples))
	for _, s := range samples {
		rate, ok := rates[s.Index]
		if !ok {
			a.log.Warn().Int("gpu_no", s.Index).Msg("No hashrate reported for GPU, leaving it out of the batch")
			continue
		}

		readings = append(readings, telemetry.Reading{
			GPUNo:       s.Index,
			Temperature: s.Temperature,
			Power:       s.PowerDraw,
			Hashrate:    rate,
			FanSpeed:    s.FanSpeed,
			PowerLimit:  s.PowerLimit,
		})
	}
	if len(readings) == 0 {
		return nil, errFactory.WithMessage(ErrHashrateUnavailable, "no sampled GPU has a reported hashrate")
	}
	return readings, nil
}

func (a *Agent) post(ctx context.Context, readings []telemetry.Reading) error {
	errFactory := errors.New()

	body, err := json.Marshal(readings)
	if err != nil {
		return errFactory.Wrap(ErrSubmitFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return errFactory.Wrap(ErrSubmitFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}

	var rejected struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &rejected)

	code := ErrSubmitFailed
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		code = ErrRejected
	}
	return errFactory.WithData(code, struct {
		Status  int
		Code    string
		Message string
	}{
		Status:  resp.StatusCode,
		Code:    rejected.Error.Code,
		Message: rejected.Error.Message,
	})
}
