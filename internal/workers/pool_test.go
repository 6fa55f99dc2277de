package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestPool_ExecutesSubmittedWork(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	pool := NewPool(2, 8, func(_ context.Context, exec domain.FutureExecution) {
		mu.Lock()
		seen[exec.ID] = true
		mu.Unlock()
	}, newTestLogger(t))
	pool.Start()

	require.True(t, pool.Submit(domain.FutureExecution{ID: "exec-1"}))
	require.True(t, pool.Submit(domain.FutureExecution{ID: "exec-2"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 10*time.Millisecond)

	pool.Stop()

	metrics := pool.Metrics()
	assert.Equal(t, uint64(2), metrics.Submitted)
	assert.Equal(t, uint64(2), metrics.Completed)
}

func TestPool_SubmitFullQueue(t *testing.T) {
	block := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ domain.FutureExecution) {
		<-block
	}, newTestLogger(t))
	pool.Start()
	defer func() {
		close(block)
		pool.Stop()
	}()

	// First submit is consumed by the worker, second fills the queue.
	require.True(t, pool.Submit(domain.FutureExecution{ID: "running"}))
	require.Eventually(t, func() bool { return pool.QueueSize() == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, pool.Submit(domain.FutureExecution{ID: "queued"}))

	assert.False(t, pool.Submit(domain.FutureExecution{ID: "overflow"}))
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(1, 4, func(_ context.Context, _ domain.FutureExecution) {}, newTestLogger(t))
	pool.Start()
	pool.Stop()

	assert.False(t, pool.Submit(domain.FutureExecution{ID: "late"}))
}

func TestPool_StopWaitsForInflight(t *testing.T) {
	var finished atomic.Bool

	started := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ domain.FutureExecution) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}, newTestLogger(t))
	pool.Start()

	require.True(t, pool.Submit(domain.FutureExecution{ID: "exec-1"}))
	<-started
	pool.Stop()

	assert.True(t, finished.Load())
}

func TestPool_HandlerSeesCancellationOnStop(t *testing.T) {
	cancelled := make(chan struct{})
	started := make(chan struct{})

	pool := NewPool(1, 1, func(ctx context.Context, _ domain.FutureExecution) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}, newTestLogger(t))
	pool.Start()

	require.True(t, pool.Submit(domain.FutureExecution{ID: "exec-1"}))
	<-started
	pool.Stop()

	select {
	case <-cancelled:
	default:
		t.Fatal("handler context was not cancelled on stop")
	}
}

func TestPool_DefaultsApplied(t *testing.T) {
	pool := NewPool(0, 0, func(_ context.Context, _ domain.FutureExecution) {}, newTestLogger(t))
	assert.Equal(t, DefaultPoolSize, pool.workers)
	assert.Equal(t, DefaultQueueSize, cap(pool.queue))
}
