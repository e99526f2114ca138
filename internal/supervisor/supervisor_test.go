package supervisor_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

type flaky struct {
	starts atomic.Int32
}

func (f *flaky) String() string { return "flaky" }

func (f *flaky) Serve(ctx context.Context) error {
	if f.starts.Add(1) == 1 {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRestartsFailedService(t *testing.T) {
	var buf lockedBuffer
	logger.SetOutput(&buf)
	logger.SetLogLevel(logger.DebugLevel)

	cfg := supervisor.DefaultConfig()
	cfg.FailureBackoff = 10 * time.Millisecond
	cfg.ShutdownTimeout = time.Second

	sup := supervisor.New("test", cfg, logger.Default())
	svc := &flaky{}
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := sup.ServeBackground(ctx)

	require.Eventually(t, func() bool { return svc.starts.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, buf.String(), "flaky")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
