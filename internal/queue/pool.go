package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Handler processes one document job. The daemon wires this to the pipeline
// processor's entry point.
type Handler func(ctx context.Context, documentID uuid.UUID) error

// Enqueuer is the job-queue seam the document service depends on. The
// in-process Pool implements it; a broker-backed queue can replace it
// without touching the core.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueID string, documentID uuid.UUID) error
}

// Job carries a document through a queue lane.
type Job struct {
	DocumentID uuid.UUID
	EnqueuedAt time.Time
}

type lane struct {
	ch      chan Job
	workers int
}

// Pool is an in-process job queue with one lane per tier queue, each drained
// by its own worker pool. Lane worker counts are independent so the
// GPU-bound precision lane can be kept narrow.
type Pool struct {
	handler Handler
	logger  *slog.Logger
	timeout time.Duration
	lanes   map[string]*lane

	g    *errgroup.Group
	once sync.Once

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup // enqueues past the closed check
}

type Option func(*Pool)

// WithWorkers sets the worker count for a lane. Unknown queue IDs are
// ignored.
func WithWorkers(queueID string, n int) Option {
	return func(p *Pool) {
		if l, ok := p.lanes[queueID]; ok && n > 0 {
			l.workers = n
		}
	}
}

// WithDepth sets the buffered depth of every lane.
func WithDepth(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			for _, l := range p.lanes {
				l.ch = make(chan Job, n)
			}
		}
	}
}

// WithJobTimeout bounds the wall-clock time of a single job.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPool builds a pool with the three tier lanes. Defaults: fast 4 workers,
// accurate 2, precision 1, depth 256, job timeout 30m.
func NewPool(handler Handler, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		handler: handler,
		logger:  logger,
		timeout: 30 * time.Minute,
		lanes: map[string]*lane{
			QueueFast:      {ch: make(chan Job, 256), workers: 4},
			QueueAccurate:  {ch: make(chan Job, 256), workers: 2},
			QueuePrecision: {ch: make(chan Job, 256), workers: 1},
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the lane workers. It returns immediately; workers run until
// Shutdown closes the lanes.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		p.g = &errgroup.Group{}
		for queueID, l := range p.lanes {
			for i := 0; i < l.workers; i++ {
				queueID, ch, workerID := queueID, l.ch, i+1
				p.g.Go(func() error {
					p.logger.Info("queue.worker.started", "queue", queueID, "worker_id", workerID)
					for job := range ch {
						p.runJob(ctx, queueID, workerID, job)
					}
					p.logger.Info("queue.worker.stopped", "queue", queueID, "worker_id", workerID)
					return nil
				})
			}
		}
	})
}

func (p *Pool) runJob(ctx context.Context, queueID string, workerID int, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.handler(jobCtx, job.DocumentID)
	if err != nil {
		// Failure reporting is the queue's operational surface: the
		// document row already carries the error message by the time the
		// handler returns.
		p.logger.Error("queue.job.failed",
			"queue", queueID,
			"worker_id", workerID,
			"document_id", job.DocumentID,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return
	}
	p.logger.Info("queue.job.ok",
		"queue", queueID,
		"worker_id", workerID,
		"document_id", job.DocumentID,
		"wait_ms", start.Sub(job.EnqueuedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Enqueue places a document on the named lane. Unknown queue IDs fall back
// to the fast lane, mirroring RouteQueue. A full lane blocks the caller but
// not other lanes: the send happens outside the pool mutex.
func (p *Pool) Enqueue(_ context.Context, queueID string, documentID uuid.UUID) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("enqueue %s: queue is shutting down", documentID)
	}
	laneID := queueID
	l, ok := p.lanes[queueID]
	if !ok {
		laneID = QueueFast
		l = p.lanes[QueueFast]
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	job := Job{DocumentID: documentID, EnqueuedAt: time.Now()}
	select {
	case l.ch <- job:
	default:
		p.logger.Warn("queue.lane.full", "queue", laneID, "document_id", documentID)
		l.ch <- job
	}
	p.logger.Info("queue.job.enqueued", "queue", laneID, "document_id", documentID)
	return nil
}

// Shutdown closes the lanes and waits for in-flight jobs to drain, or for
// ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	// Enqueues that passed the closed check may still be sending; closing a
	// lane under them would panic.
	p.inflight.Wait()
	for _, l := range p.lanes {
		close(l.ch)
	}

	if p.g == nil {
		return
	}
	done := make(chan struct{})
	go func() { defer close(done); _ = p.g.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		p.logger.Info("queue.shutdown.drained")
	}
}
