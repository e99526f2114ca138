package collector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/metrics"
	"codeberg.org/mutker/hashtop/internal/model"
	"codeberg.org/mutker/hashtop/internal/pool"
	"codeberg.org/mutker/hashtop/internal/store"
	"golang.org/x/sync/errgroup"
)

// Collector snapshots every user's pool standing on a fixed schedule.
type Collector struct {
	store   store.Store
	fetcher pool.Fetcher
	cfg     Config
	log     logger.Logger

	state   atomic.Int32
	running atomic.Bool
	ticks   <-chan time.Time
}

type outcome struct {
	wallet string
	stat   model.UserStat
	err    error
	// roundErr is the failure of the optional round share lookup.
	roundErr error
}

func New(s store.Store, f pool.Fetcher, cfg Config, log logger.Logger) (*Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Collector{
		store:   s,
		fetcher: f,
		cfg:     cfg,
		log:     log,
	}, nil
}

// State reports the phase of the cycle in progress, or StateIdle.
func (c *Collector) State() State {
	return State(c.state.Load())
}

func (c *Collector) String() string {
	return "collector"
}

// Serve runs the collector under a supervisor.
func (c *Collector) Serve(ctx context.Context) error {
	c.Run(ctx)
	return ctx.Err()
}

// Run starts a cycle on every tick until ctx is cancelled. A tick that
// arrives while a cycle is still running is skipped. Run waits for the
// cycle in flight before returning.
func (c *Collector) Run(ctx context.Context) {
	ticks := c.ticks
	if ticks == nil {
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	c.log.Info().
		Dur("interval", c.cfg.Interval).
		Dur("timeout", c.cfg.Timeout).
		Int("concurrency", c.cfg.Concurrency).
		Msg("Collector started")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Collector stopped")
			return
		case <-ticks:
			if !c.running.CompareAndSwap(false, true) {
				metrics.CollectorSkippedTicks.Inc()
				c.log.Warn().
					Str("state", c.State().String()).
					Msg("Previous cycle still running, skipping tick")
				continue
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer c.running.Store(false)

				// Failures are logged and counted inside the cycle.
				_, _ = c.cycle(ctx)
			}()
		}
	}
}

// RunOnce runs a single cycle immediately.
func (c *Collector) RunOnce(ctx context.Context) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Report{}, errors.New().New(ErrAlreadyRunning)
	}
	defer c.running.Store(false)

	return c.cycle(ctx)
}

func (c *Collector) cycle(ctx context.Context) (Report, error) {
	errFactory := errors.New()

	started := c.cfg.Clock().UTC()
	report := Report{Started: started}
	defer func() {
		report.Duration = time.Since(started)
		metrics.CollectorCycleDuration.Observe(report.Duration.Seconds())
		c.setState(StateIdle)
	}()

	c.setState(StateFetching)

	var users []model.User
	if err := c.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		users, err = tx.ListUsers(ctx)
		return err
	}); err != nil {
		metrics.CollectorCycles.WithLabelValues("list_failed").Inc()
		c.log.Error().Err(err).Msg("Failed to list users")
		return report, errFactory.Wrap(ErrListUsers, err)
	}
	report.Users = len(users)

	snapshots, omitted := c.fetchAll(ctx, users, started)
	report.Omitted = omitted
	metrics.CollectorOmittedUsers.Add(float64(len(omitted)))

	if len(snapshots) == 0 {
		metrics.CollectorCycles.WithLabelValues("empty").Inc()
		c.log.Warn().
			Int("users", len(users)).
			Int("omitted", len(omitted)).
			Msg("Cycle produced no snapshots")
		return report, nil
	}

	c.setState(StatePersisting)

	if err := c.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.AppendUserStats(ctx, snapshots)
	}); err != nil {
		metrics.CollectorCycles.WithLabelValues("persist_failed").Inc()
		c.log.Error().
			Err(err).
			Int("snapshots", len(snapshots)).
			Msg("Failed to persist snapshots, cycle dropped")
		return report, errFactory.Wrap(ErrPersist, err)
	}

	report.Persisted = len(snapshots)
	metrics.CollectorCycles.WithLabelValues("persisted").Inc()
	metrics.CollectorSnapshots.Add(float64(len(snapshots)))

	c.log.Info().
		Int("users", report.Users).
		Int("persisted", report.Persisted).
		Int("omitted", len(omitted)).
		Msg("Collector cycle complete")

	return report, nil
}

// fetchAll looks up every user with bounded concurrency under the cycle
// timeout. Each task reports its own outcome; users still pending when the
// timeout expires are omitted, and fetchAll returns only once their
// lookups have observed the cancellation and returned.
func (c *Collector) fetchAll(ctx context.Context, users []model.User, now time.Time) ([]model.UserStat, []string) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	outcomes := make(chan outcome, len(users))
	workers := make(chan struct{})
	go func() {
		defer close(workers)
		var g errgroup.Group
		g.SetLimit(c.cfg.Concurrency)
		for _, u := range users {
			g.Go(func() error {
				outcomes <- c.fetchUser(fetchCtx, u.WalletAddr, now)
				return nil
			})
		}
		_ = g.Wait()
	}()

	pending := make(map[string]struct{}, len(users))
	for _, u := range users {
		pending[u.WalletAddr] = struct{}{}
	}

	var (
		snapshots []model.UserStat
		omitted   []string
	)

collect:
	for len(pending) > 0 {
		select {
		case o := <-outcomes:
			delete(pending, o.wallet)
			if o.err != nil {
				omitted = append(omitted, o.wallet)
				c.log.Warn().
					Err(o.err).
					Str("wallet", o.wallet).
					Msg("Pool lookup failed, omitting user from cycle")
				continue
			}
			if o.roundErr != nil {
				c.log.Debug().
					Err(o.roundErr).
					Str("wallet", o.wallet).
					Msg("Round share lookup failed, storing without it")
			}
			snapshots = append(snapshots, o.stat)
		case <-fetchCtx.Done():
			break collect
		}
	}

	// Lookups still running see the cancellation; none may outlive the cycle.
	cancel()
	<-workers

	c.setState(StateAssembling)

	for wallet := range pending {
		omitted = append(omitted, wallet)
		c.log.Warn().
			Str("wallet", wallet).
			Dur("timeout", c.cfg.Timeout).
			Msg("Pool lookup still pending at cycle timeout, omitting user")
	}

	return snapshots, omitted
}

// fetchUser runs the four required lookups concurrently; any failure
// fails the user. The round share lookup is optional and stored as NULL
// when it fails.
func (c *Collector) fetchUser(ctx context.Context, wallet string, now time.Time) outcome {
	o := outcome{wallet: wallet, stat: model.UserStat{WalletAddr: wallet, Time: now}}
	if o.err = ctx.Err(); o.err != nil {
		return o
	}

	var (
		shares     pool.Shares
		roundShare float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		o.stat.Balance, err = c.fetcher.Balance(gctx, wallet)
		return err
	})
	g.Go(func() (err error) {
		o.stat.EstRevenue, err = c.fetcher.EstimatedDailyRevenue(gctx, wallet)
		return err
	})
	g.Go(func() (err error) {
		shares, err = c.fetcher.Shares(gctx, wallet)
		return err
	})
	g.Go(func() (err error) {
		o.stat.EffectiveHashrate, err = c.fetcher.EffectiveHashrate(gctx, wallet)
		return err
	})

	var optional sync.WaitGroup
	optional.Add(1)
	go func() {
		defer optional.Done()
		roundShare, o.roundErr = c.fetcher.RoundSharePercent(ctx, wallet)
	}()

	o.err = g.Wait()
	optional.Wait()
	if o.err != nil {
		return o
	}

	o.stat.ValidShares = shares.Valid
	o.stat.StaleShares = shares.Stale
	o.stat.InvalidShares = shares.Invalid
	if o.roundErr == nil {
		o.stat.RoundSharePercent = &roundShare
	}

	return o
}

func (c *Collector) setState(s State) {
	c.state.Store(int32(s))
}
