package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is the smallest useful unit: one case to push through the pipeline.
type Job struct {
	CaseID      uuid.UUID
	SubmittedAt time.Time
}

// CaseProcessor is what the workers run; implemented by pipeline.Processor.
type CaseProcessor interface {
	ProcessCase(ctx context.Context, caseID uuid.UUID) error
}

// Queue decouples case processing from the request that triggered it. The
// caller gets an immediate acknowledgment and polls case state later.
type Queue struct {
	proc    CaseProcessor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc CaseProcessor, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 64),
		quit:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for {
					select {
					case job := <-q.ch:
						q.run(workerID, job)
					case <-q.quit:
						// drain whatever was accepted before shutdown
						for {
							select {
							case job := <-q.ch:
								q.run(workerID, job)
							default:
								q.logger.Info("worker stopped", "worker_id", workerID)
								return
							}
						}
					}
				}
			}(i + 1)
		}
	})
}

func (q *Queue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	err := q.proc.ProcessCase(ctx, job.CaseID)
	cancel()

	if err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "case_id", job.CaseID, "error", err)
	} else {
		q.logger.Info("processed case successfully", "worker_id", workerID, "case_id", job.CaseID)
	}
}

func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.quit:
		q.logger.Warn("cannot enqueue: queue is shutting down", "case_id", job.CaseID)
		return nil
	default:
	}

	select {
	case q.ch <- job:
		q.logger.Info("queued case for processing", "case_id", job.CaseID)
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "case_id", job.CaseID)
	select {
	case q.ch <- job:
		q.logger.Info("queued case for processing", "case_id", job.CaseID)
		return nil
	case <-q.quit:
		q.logger.Warn("cannot enqueue: queue is shutting down", "case_id", job.CaseID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue case %s: %w", job.CaseID, ctx.Err())
	}
}

func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
