package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// Pool is an in-process bounded queue drained by a fixed number of workers.
type Pool struct {
	handler Handler
	hook    FailureHook
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan models.Job
	eg   errgroup.Group
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan models.Job, n)
		}
	}
}

// WithJobTimeout bounds every job. Zero leaves jobs unbounded.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithFailureHook(hook FailureHook) Option {
	return func(p *Pool) {
		p.hook = hook
	}
}

// NewPool creates and starts a pool.
func NewPool(handler Handler, logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		handler: handler,
		logger:  logger,
		workers: 4,
		ch:      make(chan models.Job, 256),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			workerID := i + 1
			p.eg.Go(func() error {
				p.logger.Info("worker started", "worker_id", workerID)
				for job := range p.ch {
					p.process(workerID, job)
				}
				p.logger.Info("worker stopped", "worker_id", workerID)
				return nil
			})
		}
	})
}

func (p *Pool) process(workerID int, job models.Job) {
	logCtx := p.logger.With("worker_id", workerID, "documentId", job.DocumentID, "taskId", job.TaskID)
	result, err := runJob(context.Background(), p.handler, p.hook, p.timeout, job)
	switch {
	case err != nil:
		logCtx.Error("job crashed", "error", err)
	case result.Status == models.StatusFailed:
		logCtx.Warn("job failed", "message", result.Message)
	default:
		logCtx.Info("job finished", "status", result.Status, "wait", time.Since(job.SubmittedAt).String())
	}
}

// Submit enqueues a job without blocking.
func (p *Pool) Submit(_ context.Context, documentID string) (models.Job, error) {
	job, err := newJob(documentID)
	if err != nil {
		return models.Job{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return models.Job{}, ErrQueueClosed
	}
	select {
	case p.ch <- job:
		p.logger.Info("queued document for processing", "documentId", documentID, "taskId", job.TaskID)
		return job, nil
	default:
		p.logger.Warn("queue full, rejecting job", "documentId", documentID)
		return models.Job{}, ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.eg.Wait()
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
		return ctx.Err()
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
		return nil
	}
}
