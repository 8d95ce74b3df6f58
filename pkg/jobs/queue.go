package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotRunning is returned when enqueueing on a queue that is not started or already stopped.
	ErrNotRunning = errors.New("queue is not running")
	// ErrQueueFull is returned when the buffer has no room for another job.
	ErrQueueFull = errors.New("queue is full")
	// ErrDuplicate is returned when a job with the same ID is already queued or running.
	ErrDuplicate = errors.New("job already queued")
)

// Job represents a queued background task. ID doubles as the dedupe key.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job. Handlers own their failure bookkeeping; the queue
// only logs returned errors and never re-runs a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	// JobTimeout bounds a single handler run. Zero means no limit.
	JobTimeout time.Duration
	Logger     *zap.Logger
}

// Queue is an in-memory worker pool. Jobs run detached from the request that
// enqueued them and are cancelled only by Stop or JobTimeout.
type Queue struct {
	name    string
	handler Handler
	workers int
	timeout time.Duration
	logger  *zap.Logger

	jobs chan Job

	mu       sync.Mutex
	inflight map[string]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	wg       sync.WaitGroup
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue{
		name:     name,
		handler:  handler,
		workers:  cfg.Workers,
		timeout:  cfg.JobTimeout,
		logger:   cfg.Logger.With(zap.String("queue", name)),
		jobs:     make(chan Job, cfg.BufferSize),
		inflight: make(map[string]struct{}),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.running = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// Stop cancels running jobs and waits for the workers to exit. Jobs still in
// the buffer are dropped; their owners detect them as stuck.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.Int("dropped", len(q.jobs)))
}

// Enqueue admits a job without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	}
	if job.ID != "" {
		if _, ok := q.inflight[job.ID]; ok {
			return fmt.Errorf("%s %s: %w", q.name, job.ID, ErrDuplicate)
		}
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.jobs <- job:
		if job.ID != "" {
			q.inflight[job.ID] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

// Pending reports how many jobs are queued or running.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) run(job Job) {
	defer q.release(job.ID)

	ctx := q.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	log := q.logger.With(zap.String("job_id", job.ID), zap.String("type", job.Type))
	waited := time.Since(job.Enqueued)
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	started := time.Now()
	if err := q.handler(ctx, job); err != nil {
		log.Warn("job failed", zap.Duration("waited", waited), zap.Duration("took", time.Since(started)), zap.Error(err))
		return
	}
	log.Debug("job completed", zap.Duration("waited", waited), zap.Duration("took", time.Since(started)))
}

func (q *Queue) release(id string) {
	if id == "" {
		return
	}
	q.mu.Lock()
	delete(q.inflight, id)
	q.mu.Unlock()
}
