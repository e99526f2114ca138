package pool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/metrics"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	breakerName     = "pool-api"
	maxResponseSize = 1 << 20
)

// Client talks to a flexpool v1 style API:
// GET {base}/miner/{wallet}/{endpoint} -> {"error": null, "result": ...}
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[struct{}]
	log     logger.Logger
}

var _ Fetcher = (*Client)(nil)

type envelope struct {
	Error  *string         `json:"error"`
	Result json.RawMessage `json:"result"`
}

// statusError is a non-2xx answer. Client errors say nothing about the
// health of the pool and do not count against the breaker.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.code)
}

func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.code < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		cb:      cb,
		log:     log,
	}, nil
}

func (c *Client) Balance(ctx context.Context, wallet string) (float64, error) {
	var balance float64
	err := c.get(ctx, wallet, "balance", &balance)
	return balance, err
}

func (c *Client) EstimatedDailyRevenue(ctx context.Context, wallet string) (float64, error) {
	var revenue float64
	err := c.get(ctx, wallet, "estimatedDailyRevenue", &revenue)
	return revenue, err
}

func (c *Client) Shares(ctx context.Context, wallet string) (Shares, error) {
	var shares struct {
		Valid   *int64 `json:"valid_shares"`
		Stale   *int64 `json:"stale_shares"`
		Invalid *int64 `json:"invalid_shares"`
	}
	if err := c.get(ctx, wallet, "daily", &shares); err != nil {
		return Shares{}, err
	}
	if shares.Valid == nil || shares.Stale == nil || shares.Invalid == nil {
		return Shares{}, unavailable("daily", wallet, fmt.Errorf("incomplete share counts"))
	}
	return Shares{Valid: *shares.Valid, Stale: *shares.Stale, Invalid: *shares.Invalid}, nil
}

func (c *Client) EffectiveHashrate(ctx context.Context, wallet string) (float64, error) {
	var current struct {
		EffectiveHashrate *float64 `json:"effective_hashrate"`
	}
	if err := c.get(ctx, wallet, "current", &current); err != nil {
		return 0, err
	}
	if current.EffectiveHashrate == nil {
		return 0, unavailable("current", wallet, fmt.Errorf("missing effective_hashrate"))
	}
	return *current.EffectiveHashrate, nil
}

func (c *Client) RoundSharePercent(ctx context.Context, wallet string) (float64, error) {
	var share float64
	err := c.get(ctx, wallet, "roundShare", &share)
	return share, err
}

func (c *Client) get(ctx context.Context, wallet, endpoint string, out any) error {
	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "rate_limited").Inc()
		return unavailable(endpoint, wallet, err)
	}

	_, err := c.cb.Execute(func() (struct{}, error) {
		return struct{}{}, c.fetch(ctx, wallet, endpoint, out)
	})
	if err != nil {
		status := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "rejected"
		}
		metrics.UpstreamRequests.WithLabelValues(endpoint, status).Inc()

		c.log.Debug().
			Err(err).
			Str("endpoint", endpoint).
			Str("wallet", wallet).
			Msg("Pool lookup failed")

		return unavailable(endpoint, wallet, err)
	}

	metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
	return nil
}

func (c *Client) fetch(ctx context.Context, wallet, endpoint string, out any) error {
	u := c.base + "/miner/" + url.PathEscape(wallet) + "/" + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Error != nil {
		return fmt.Errorf("pool error: %s", *env.Error)
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return fmt.Errorf("empty result")
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	return nil
}

func unavailable(endpoint, wallet string, err error) error {
	return errors.New().Wrap(ErrUpstreamUnavailable, err).
		WithMessage(fmt.Sprintf("pool %s lookup for %s", endpoint, wallet))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
