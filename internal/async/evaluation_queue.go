package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// EvaluationQueue is a bounded worker pool over an Evaluator.
type EvaluationQueue struct {
	eval    Evaluator
	results *Results
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// quit wakes callers blocked on a full queue once Shutdown starts
	quit     chan struct{}
	quitOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*EvaluationQueue)

func WithWorkers(n int) Option {
	return func(q *EvaluationQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *EvaluationQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithEvaluationTimeout(d time.Duration) Option {
	return func(q *EvaluationQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}
func WithResults(r *Results) Option {
	return func(q *EvaluationQueue) {
		if r != nil {
			q.results = r
		}
	}
}

func NewEvaluationQueue(eval Evaluator, logger *slog.Logger, opts ...Option) *EvaluationQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &EvaluationQueue{
		eval:    eval,
		logger:  logger,
		workers: 2,
		timeout: 15 * time.Minute,
		ch:      make(chan Job, 64),
		quit:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	if q.results == nil {
		q.results = NewResults(0)
	}
	q.start()
	return q
}

func (q *EvaluationQueue) Results() *Results { return q.results }

func (q *EvaluationQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("async.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Info("async.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *EvaluationQueue) run(workerID int, job Job) {
	start := time.Now()
	q.results.running(job.ID)

	ctx := common.WithRequestID(context.Background(), job.TraceID)
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	report, err := q.eval.Evaluate(ctx, job.CaseID)
	cancel()

	if err != nil {
		q.logger.Error("async.evaluation.failed", "worker_id", workerID, "job_id", job.ID, "case_id", job.CaseID, "error", err)
		q.results.finish(job.ID, nil, err)
		return
	}
	q.results.finish(job.ID, &report, nil)
	q.logger.Info("async.evaluation.ok",
		"worker_id", workerID,
		"job_id", job.ID,
		"case_id", job.CaseID,
		"status", report.Status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// Submit creates a job for a case and enqueues it.
func (q *EvaluationQueue) Submit(ctx context.Context, caseID string) (Job, error) {
	job := Job{
		ID:          uuid.New().String(),
		CaseID:      caseID,
		SubmittedAt: time.Now().UTC(),
		TraceID:     common.RequestIDFromContext(ctx),
	}
	if job.TraceID == "" {
		job.TraceID = job.ID
	}
	return job, q.Enqueue(ctx, job)
}

// Enqueue blocks while the queue is full until ctx is done or Shutdown starts.
func (q *EvaluationQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("async.enqueue.closed", "job_id", job.ID, "case_id", job.CaseID)
		return ErrQueueClosed
	}
	q.results.queued(job)
	select {
	case q.ch <- job:
		q.logger.Info("async.enqueue.ok", "job_id", job.ID, "case_id", job.CaseID)
		return nil
	default:
	}
	q.logger.Warn("async.enqueue.backpressure", "job_id", job.ID, "case_id", job.CaseID)
	select {
	case q.ch <- job:
		return nil
	case <-q.quit:
		q.results.forget(job.ID)
		return ErrQueueClosed
	case <-ctx.Done():
		q.results.forget(job.ID)
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *EvaluationQueue) Shutdown(ctx context.Context) {
	q.quitOnce.Do(func() { close(q.quit) })
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("async.shutdown.interrupted")
	case <-done:
		q.logger.Info("async.shutdown.drained")
	}
}
