// Package worker runs build and archive flows as queued background jobs.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueFull is returned when the job queue cannot take another job.
var ErrQueueFull = errors.New("job queue is full")

// ErrStopped is returned when enqueueing after shutdown began.
var ErrStopped = errors.New("worker pool is stopped")

// Job is one queued unit of work.
type Job struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// Pool is a bounded in-process job queue with a fixed worker count.
type Pool struct {
	queue   chan Job
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates a pool. Start must be called before jobs execute.
func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:   make(chan Job, queueSize),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled and
// the queue is drained, or immediately on cancellation mid-wait.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

func (p *Pool) run(ctx context.Context, worker int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			start := time.Now()
			p.logger.Info("job started", "job_id", job.ID, "job", job.Name, "worker", worker)
			if err := job.Run(ctx); err != nil {
				p.logger.Error("job failed", "job_id", job.ID, "job", job.Name, "duration", time.Since(start), "error", err)
				continue
			}
			p.logger.Info("job finished", "job_id", job.ID, "job", job.Name, "duration", time.Since(start))
		}
	}
}

// Enqueue schedules a job and returns its generated identifier.
func (p *Pool) Enqueue(name string, run func(ctx context.Context) error) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return "", ErrStopped
	}
	job := Job{ID: uuid.NewString(), Name: name, Run: run}
	select {
	case p.queue <- job:
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
