package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/parsemed/internal/common"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("queue is shutting down")

const (
	defaultWorkers    = 4
	defaultQueueSize  = 128
	defaultJobTimeout = 3 * time.Minute
)

// ProcessorQueue feeds jobs from a buffered channel to a fixed set of
// workers. Enqueue never blocks: a full buffer is reported to the caller.
type ProcessorQueue struct {
	proc    JobProcessor
	logger  *slog.Logger
	workers int
	size    int
	timeout time.Duration

	jobs chan Job
	wg   sync.WaitGroup

	// base parents every job context; Shutdown cancels it when its own
	// deadline passes so in-flight jobs stop too.
	base   context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	inFlight  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.size = n
		}
	}
}

// WithProcessTimeout bounds a single ProcessJob call.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewProcessorQueue starts the workers immediately.
func NewProcessorQueue(proc JobProcessor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: defaultWorkers,
		size:    defaultQueueSize,
		timeout: defaultJobTimeout,
	}
	for _, o := range opts {
		o(q)
	}
	q.jobs = make(chan Job, q.size)
	q.base, q.cancel = context.WithCancel(context.Background())

	q.wg.Add(q.workers)
	for id := 1; id <= q.workers; id++ {
		go q.worker(id)
	}
	q.logger.Info("queue.start", "workers", q.workers, "capacity", q.size, "job_timeout", q.timeout.String())
	return q
}

func (q *ProcessorQueue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(id, job)
	}
	q.logger.Debug("queue.worker.stop", "worker_id", id)
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	ctx := q.base
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	log := q.logger.With("worker_id", workerID, "job_id", job.JobID)
	q.inFlight.Add(1)
	defer q.inFlight.Add(-1)

	start := time.Now()
	if err := q.proc.ProcessJob(ctx, job.JobID); err != nil {
		q.failed.Add(1)
		log.Error("queue.job.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	q.processed.Add(1)
	log.Info("queue.job.done",
		"waited_ms", start.Sub(job.SubmittedAt).Milliseconds(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Enqueue returns an AppError wrapping common.ErrQueueFull when the buffer
// is full and ErrClosed after Shutdown.
func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "job_id", job.JobID)
		return ErrClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.jobs <- job:
		q.logger.Debug("queue.enqueue", "job_id", job.JobID, "depth", len(q.jobs))
		return nil
	default:
		q.logger.Warn("queue.enqueue.full", "job_id", job.JobID, "capacity", q.size)
		return common.NewAppError("QUEUE_FULL", "try again later", common.ErrQueueFull)
	}
}

// Stats reports the buffer depth and job counters.
func (q *ProcessorQueue) Stats() Stats {
	return Stats{
		Workers:   q.workers,
		Capacity:  q.size,
		Depth:     len(q.jobs),
		InFlight:  q.inFlight.Load(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
	}
}

// Shutdown stops intake and waits for buffered jobs to finish. If ctx ends
// first, running jobs see their context cancelled and Shutdown returns
// without waiting for them.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("queue.shutdown", "processed", q.processed.Load(), "failed", q.failed.Load())
	case <-ctx.Done():
		q.cancel()
		q.logger.Warn("queue.shutdown.timeout", "in_flight", q.inFlight.Load(), "depth", len(q.jobs))
	}
}
