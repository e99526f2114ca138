package collector_test

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/hashtop/internal/collector"
	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/metrics"
	"codeberg.org/mutker/hashtop/internal/model"
	"codeberg.org/mutker/hashtop/internal/pool"
	"codeberg.org/mutker/hashtop/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	walletC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakePool struct {
	failBalance map[string]bool
	failRound   map[string]bool
	// hang makes Balance for these wallets block until release is closed
	// or the lookup is cancelled.
	hang     map[string]bool
	release  chan struct{}
	started  chan string
	inFlight atomic.Int32
}

func newFakePool() *fakePool {
	return &fakePool{
		failBalance: map[string]bool{},
		failRound:   map[string]bool{},
		hang:        map[string]bool{},
		release:     make(chan struct{}),
		started:     make(chan string, 16),
	}
}

var errLookup = errors.New().New(errors.ErrUpstreamUnavailable)

func (p *fakePool) Balance(ctx context.Context, wallet string) (float64, error) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	if p.hang[wallet] {
		p.started <- wallet
		select {
		case <-p.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if p.failBalance[wallet] {
		return 0, errLookup
	}
	return 1.5e18, nil
}

func (p *fakePool) EstimatedDailyRevenue(context.Context, string) (float64, error) {
	return 2e16, nil
}

func (p *fakePool) Shares(context.Context, string) (pool.Shares, error) {
	return pool.Shares{Valid: 900, Stale: 10, Invalid: 2}, nil
}

func (p *fakePool) EffectiveHashrate(context.Context, string) (float64, error) {
	return 95e6, nil
}

func (p *fakePool) RoundSharePercent(_ context.Context, wallet string) (float64, error) {
	if p.failRound[wallet] {
		return 0, errLookup
	}
	return 0.01, nil
}

type switchableStore struct {
	store.Store
	failAppend atomic.Bool
}

func (s *switchableStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&switchableTx{Tx: tx, fail: s.failAppend.Load()})
	})
}

type switchableTx struct {
	store.Tx
	fail bool
}

func (tx *switchableTx) AppendUserStats(ctx context.Context, stats []model.UserStat) error {
	if err := tx.Tx.AppendUserStats(ctx, stats); err != nil {
		return err
	}
	if tx.fail {
		return errors.New().WithMessage(errors.ErrStorage, "constraint failed")
	}
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func openStore(t *testing.T, wallets ...string) store.Store {
	t.Helper()

	s, err := store.Open(store.Config{DBPath: filepath.Join(t.TempDir(), "hashtop.db")}, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		for _, w := range wallets {
			if err := tx.CreateUser(ctx, model.User{WalletAddr: w}); err != nil {
				return err
			}
		}
		return nil
	}))
	return s
}

func captureLogs(t *testing.T) *lockedBuffer {
	t.Helper()

	buf := &lockedBuffer{}
	logger.SetOutput(buf)
	t.Cleanup(func() { logger.SetOutput(&bytes.Buffer{}) })
	return buf
}

func testConfig() collector.Config {
	cfg := collector.DefaultConfig()
	cfg.Interval = time.Hour
	cfg.Timeout = 5 * time.Second
	cfg.Concurrency = 2
	return cfg
}

func statsFor(t *testing.T, s store.Store, wallet string) []model.UserStat {
	t.Helper()

	var stats []model.UserStat
	ctx := context.Background()
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		var err error
		stats, err = tx.ListUserStats(ctx, wallet, model.Window{})
		return err
	}))
	return stats
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCycleIsolatesFailingUser(t *testing.T) {
	logs := captureLogs(t)
	s := openStore(t, walletA, walletB, walletC)

	fp := newFakePool()
	fp.failBalance[walletB] = true

	c, err := collector.New(s, fp, testConfig(), logger.Default())
	require.NoError(t, err)

	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Users)
	assert.Equal(t, 2, report.Persisted)
	assert.Equal(t, []string{walletB}, report.Omitted)

	require.Len(t, statsFor(t, s, walletA), 1)
	require.Len(t, statsFor(t, s, walletC), 1)
	assert.Empty(t, statsFor(t, s, walletB))

	stat := statsFor(t, s, walletA)[0]
	assert.InDelta(t, 1.5e18, stat.Balance, 1)
	assert.Equal(t, int64(10), stat.StaleShares)
	require.NotNil(t, stat.RoundSharePercent)

	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), walletB)
	assert.Equal(t, collector.StateIdle, c.State())
}

func TestRoundShareIsOptional(t *testing.T) {
	s := openStore(t, walletA)

	fp := newFakePool()
	fp.failRound[walletA] = true

	c, err := collector.New(s, fp, testConfig(), logger.Default())
	require.NoError(t, err)

	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Persisted)

	stats := statsFor(t, s, walletA)
	require.Len(t, stats, 1)
	assert.Nil(t, stats[0].RoundSharePercent)
}

func TestPersistFailureDropsCycle(t *testing.T) {
	s := &switchableStore{Store: openStore(t, walletA, walletB, walletC)}
	s.failAppend.Store(true)

	c, err := collector.New(s, newFakePool(), testConfig(), logger.Default())
	require.NoError(t, err)

	_, err = c.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, collector.ErrPersist))

	for _, w := range []string{walletA, walletB, walletC} {
		assert.Empty(t, statsFor(t, s, w))
	}

	// The next cycle is independent of the failed one.
	s.failAppend.Store(false)
	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Persisted)
}

func TestTimeoutOmitsPendingUsers(t *testing.T) {
	s := openStore(t, walletA, walletB, walletC)

	fp := newFakePool()
	fp.hang[walletB] = true
	t.Cleanup(func() { close(fp.release) })

	cfg := testConfig()
	cfg.Timeout = 100 * time.Millisecond
	cfg.Concurrency = 3

	c, err := collector.New(s, fp, cfg, logger.Default())
	require.NoError(t, err)

	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Persisted)
	assert.Equal(t, []string{walletB}, report.Omitted)
	assert.Empty(t, statsFor(t, s, walletB))
	assert.Zero(t, fp.inFlight.Load(), "lookups outlived the cycle")
}

func TestCancelledRunLeavesNoLookupsBehind(t *testing.T) {
	s := openStore(t, walletA, walletB)

	fp := newFakePool()
	fp.hang[walletA] = true
	fp.hang[walletB] = true
	t.Cleanup(func() { close(fp.release) })

	c, err := collector.New(s, fp, testConfig(), logger.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.RunOnce(ctx)
	}()

	for range 2 {
		select {
		case <-fp.started:
		case <-time.After(5 * time.Second):
			t.Fatal("lookups did not start")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not return after cancellation")
	}
	assert.Zero(t, fp.inFlight.Load(), "lookups outlived the cycle")
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	captureLogs(t)
	s := openStore(t, walletA)

	fp := newFakePool()
	fp.hang[walletA] = true

	c, err := collector.New(s, fp, testConfig(), logger.Default())
	require.NoError(t, err)

	ticks := make(chan time.Time)
	c.SetTicks(ticks)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	skipped := testutil.ToFloat64(metrics.CollectorSkippedTicks)

	ticks <- time.Now()
	select {
	case <-fp.started:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not start")
	}
	assert.Equal(t, collector.StateFetching, c.State())

	ticks <- time.Now()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.CollectorSkippedTicks) == skipped+1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = c.RunOnce(context.Background())
	assert.True(t, errors.HasCode(err, collector.ErrAlreadyRunning))

	close(fp.release)
	require.Eventually(t, func() bool {
		return c.State() == collector.StateIdle
	}, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, statsFor(t, s, walletA), 1)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestEmptyUserListIsNotAnError(t *testing.T) {
	s := openStore(t)

	c, err := collector.New(s, newFakePool(), testConfig(), logger.Default())
	require.NoError(t, err)

	report, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Users)
	assert.Zero(t, report.Persisted)
}

func TestConfigValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 2 * cfg.Interval

	_, err := collector.New(nil, nil, cfg, logger.Default())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, collector.ErrInvalidInterval))

	cfg = testConfig()
	cfg.Concurrency = 0
	_, err = collector.New(nil, nil, cfg, logger.Default())
	assert.True(t, errors.HasCode(err, collector.ErrInvalidConfig))
}
