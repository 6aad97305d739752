// Package worker runs queued correlation jobs on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/strata/internal/adapters/mq/queue"
	"github.com/okian/strata/pkg/logger"
	"github.com/okian/strata/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan *queue.Job
}

// worker drains jobs until the channel closes or the pool stops.
type worker struct {
	name       string
	jobs       <-chan *queue.Job
	jobTimeout time.Duration
	logger     logger.Logger
}

func (w *worker) run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case j, ok := <-w.jobs:
			if !ok {
				// Channel closed, worker should stop
				return
			}
			// Process the job
			w.process(ctx, j)
		}
	}
}

func (w *worker) process(ctx context.Context, j *queue.Job) {
	// Skip jobs cancelled while queued
	if !j.Start() {
		metrics.RecordJob(string(j.Kind), string(queue.StatusCancelled))
		return
	}
	// Track active workers and processing latency
	metrics.AddWorkerActive(1)
	start := time.Now()
	defer func() {
		metrics.AddWorkerActive(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	// Bound the run by the job timeout
	runCtx := j.Context()
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, w.jobTimeout)
		defer cancel()
	}

	st := j.Run(runCtx)

	// Record the outcome
	metrics.RecordJob(string(j.Kind), string(st))
	fields := []logger.Field{
		logger.String("job", j.ID),
		logger.String("kind", string(j.Kind)),
		logger.String("status", string(st)),
		logger.Duration("took", time.Since(start)),
	}
	if st == queue.StatusFailed {
		metrics.RecordErrorByComponent("worker", string(j.Kind))
		w.logger.Error(ctx, "job failed", append(fields, logger.Error(j.Snapshot().Err))...)
		return
	}
	w.logger.Debug(ctx, "job finished", fields...)
}

// Pool manages multiple workers reading from one queue.
type Pool struct {
	queue      Queue
	size       int
	jobTimeout time.Duration
	logger     logger.Logger

	// Shutdown control
	jobs     <-chan *queue.Job
	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewPool creates a worker pool. It does not start any goroutine.
func NewPool(q Queue, opts ...Option) *Pool {
	p := &Pool{
		queue:    q,
		size:     runtime.NumCPU(),
		shutdown: make(chan struct{}),
	}
	// Apply all options
	for _, opt := range opts {
		opt(p)
	}

	// Set up logger if not already set
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}
	// Initialize worker metrics
	metrics.UpdateWorkerCount(p.size)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	// All workers share one dequeue channel
	p.jobs = p.queue.Dequeue(ctx)
	for i := 0; i < p.size; i++ {
		w := &worker{
			name:       "worker-" + strconv.Itoa(i),
			jobs:       p.jobs,
			jobTimeout: p.jobTimeout,
			logger:     p.logger.Named("worker-" + strconv.Itoa(i)),
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(ctx, p.shutdown)
		}()
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", p.size))
}

// Shutdown closes the queue, lets workers finish what they hold, cancels
// jobs still queued, and waits for all of it or for ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new jobs
	closer, closable := p.queue.(interface{ Close() error })
	if closable {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	// Signal shutdown to all workers
	p.once.Do(func() { close(p.shutdown) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		// Cancel what the workers left behind. The dequeue channel only
		// ends once a closed queue is empty.
		if closable && p.jobs != nil {
			for j := range p.jobs {
				if j.Cancel() {
					metrics.RecordJob(string(j.Kind), string(queue.StatusCancelled))
				}
			}
		}
		close(done)
	}()

	// Wait for all workers to finish or context to timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-shutdownCtx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
}
