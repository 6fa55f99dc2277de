// Package workers provides the worker pool that executes claimed
// executions concurrently. The pool owns nothing about claiming or
// finalizing; it only bounds concurrency and tracks counters.
package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/logger"
)

// Default pool configuration.
const (
	DefaultPoolSize  = 4
	DefaultQueueSize = 64
)

// Handler executes one due execution. It is responsible for claiming the
// record and must treat a lost claim as a silent skip.
type Handler func(ctx context.Context, exec domain.FutureExecution)

// PoolMetrics tracks execution counters for the worker pool.
type PoolMetrics struct {
	Submitted uint64
	Completed uint64
}

// Pool manages a fixed set of goroutine workers consuming due executions.
type Pool struct {
	queue   chan domain.FutureExecution
	workers int
	handler Handler
	logger  *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
}

// NewPool creates a worker pool with the given concurrency and queue size.
func NewPool(workers, queueSize int, handler Handler, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultPoolSize
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:   make(chan domain.FutureExecution, queueSize),
		workers: workers,
		handler: handler,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool",
		logger.Field{Key: "workers", Value: p.workers},
		logger.Field{Key: "queue_size", Value: cap(p.queue)})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit hands a due execution to the pool without blocking. Returns false
// when the queue is full or the pool is stopping; the execution stays
// PENDING and a later tick picks it up again.
func (p *Pool) Submit(exec domain.FutureExecution) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.queue <- exec:
		p.submitted.Add(1)
		return true
	default:
		p.logger.Warn("worker queue full, deferring execution",
			logger.Field{Key: "execution_id", Value: exec.ID})
		return false
	}
}

// Stop shuts the pool down and waits for in-flight handlers to return.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()

	p.logger.Info("worker pool stopped",
		logger.Field{Key: "submitted", Value: p.submitted.Load()},
		logger.Field{Key: "completed", Value: p.completed.Load()})
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
	}
}

// QueueSize returns the number of executions waiting in the queue.
func (p *Pool) QueueSize() int {
	return len(p.queue)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case exec := <-p.queue:
			start := time.Now()
			p.logger.Debug("worker picked up execution",
				logger.Field{Key: "worker", Value: id},
				logger.Field{Key: "execution_id", Value: exec.ID})

			p.handler(p.ctx, exec)
			p.completed.Add(1)

			p.logger.Debug("worker finished execution",
				logger.Field{Key: "worker", Value: id},
				logger.Field{Key: "execution_id", Value: exec.ID},
				logger.Field{Key: "duration", Value: time.Since(start).String()})
		}
	}
}
