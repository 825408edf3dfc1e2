package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// RedisConfig configures a RedisQueue.
type RedisConfig struct {
	Key        string // pending list, default pageflow:jobs
	ConsumerID string // names this consumer's processing list
	Workers    int
	MaxPending int64 // 0 means unbounded
	JobTimeout time.Duration
	// BlockTimeout is how long one BLMOVE waits before re-checking ctx.
	BlockTimeout time.Duration
}

// RedisQueue is a durable list-based queue. Workers move jobs atomically from the
// pending list into a per-consumer processing list and remove them when done, so a
// crashed consumer leaves its in-flight jobs behind for recovery on the next start.
type RedisQueue struct {
	client  *redis.Client
	cfg     RedisConfig
	handler Handler
	hook    FailureHook
	logger  *slog.Logger
}

func NewRedisQueue(client *redis.Client, cfg RedisConfig, handler Handler, hook FailureHook, logger *slog.Logger) *RedisQueue {
	if cfg.Key == "" {
		cfg.Key = "pageflow:jobs"
	}
	if cfg.ConsumerID == "" {
		cfg.ConsumerID = "worker"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	return &RedisQueue{client: client, cfg: cfg, handler: handler, hook: hook, logger: logger}
}

// ProcessingKey is the list holding this consumer's in-flight jobs.
func (q *RedisQueue) ProcessingKey() string {
	return fmt.Sprintf("%s:processing:%s", q.cfg.Key, q.cfg.ConsumerID)
}

func (q *RedisQueue) Submit(ctx context.Context, documentID string) (models.Job, error) {
	job, err := newJob(documentID)
	if err != nil {
		return models.Job{}, err
	}
	if q.cfg.MaxPending > 0 {
		n, err := q.client.LLen(ctx, q.cfg.Key).Result()
		if err != nil {
			return models.Job{}, fmt.Errorf("redis llen: %w", err)
		}
		if n >= q.cfg.MaxPending {
			return models.Job{}, ErrQueueFull
		}
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.cfg.Key, payload).Err(); err != nil {
		return models.Job{}, fmt.Errorf("redis lpush: %w", err)
	}
	q.logger.Info("queued document for processing", "documentId", documentID, "taskId", job.TaskID)
	return job, nil
}

// Run recovers orphaned jobs and then consumes until ctx is cancelled.
func (q *RedisQueue) Run(ctx context.Context) error {
	if err := q.RecoverOrphans(ctx); err != nil {
		return err
	}

	eg, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		workerID := i + 1
		eg.Go(func() error { return q.consume(gctx, workerID) })
	}
	return eg.Wait()
}

// RecoverOrphans fails every job left in this consumer's processing list by a previous
// run. Must be called before any worker of this consumer starts.
func (q *RedisQueue) RecoverOrphans(ctx context.Context) error {
	orphans, err := q.client.LRange(ctx, q.ProcessingKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis lrange: %w", err)
	}
	for _, raw := range orphans {
		var job models.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Error("dropping undecodable orphaned job", "error", err)
		} else {
			q.logger.Warn("recovering orphaned job", "documentId", job.DocumentID, "taskId", job.TaskID)
			if q.hook != nil {
				q.hook(ctx, job.DocumentID, fmt.Errorf("job %s was interrupted before completion", job.TaskID))
			}
		}
		if err := q.client.LRem(ctx, q.ProcessingKey(), 1, raw).Err(); err != nil {
			return fmt.Errorf("redis lrem: %w", err)
		}
	}
	if len(orphans) > 0 {
		q.logger.Info("orphan recovery complete", "recovered", len(orphans))
	}
	return nil
}

func (q *RedisQueue) consume(ctx context.Context, workerID int) error {
	logCtx := q.logger.With("worker_id", workerID, "consumer", q.cfg.ConsumerID)
	logCtx.Info("worker started")
	defer logCtx.Info("worker stopped")

	for {
		raw, err := q.client.BLMove(ctx, q.cfg.Key, q.ProcessingKey(), "RIGHT", "LEFT", q.cfg.BlockTimeout).Result()
		if !q.afterMove(ctx, logCtx, raw, err) {
			return nil
		}
	}
}

// afterMove acts on one BLMove result and reports whether the worker should keep going.
// A job that was moved is always run, even when ctx ended during the move; otherwise it
// would sit in the processing list and be failed as an orphan on the next start.
func (q *RedisQueue) afterMove(ctx context.Context, logCtx *slog.Logger, raw string, err error) bool {
	switch {
	case err == nil:
		q.handle(ctx, logCtx, raw)
	case ctx.Err() != nil:
		return false
	case errors.Is(err, redis.Nil):
	default:
		logCtx.Error("redis blmove failed", "error", err)
		if err := sleepCtx(ctx, time.Second); err != nil {
			return false
		}
	}
	return ctx.Err() == nil
}

func (q *RedisQueue) handle(ctx context.Context, logCtx *slog.Logger, raw string) {
	// Acknowledge on a context that survives shutdown so a finished job is not recovered twice.
	defer func() {
		if err := q.client.LRem(context.WithoutCancel(ctx), q.ProcessingKey(), 1, raw).Err(); err != nil {
			logCtx.Error("failed to acknowledge job", "error", err)
		}
	}()

	var job models.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		logCtx.Error("dropping undecodable job", "error", err)
		return
	}

	result, err := runJob(context.WithoutCancel(ctx), q.handler, q.hook, q.cfg.JobTimeout, job)
	if err != nil {
		logCtx.Error("job crashed", "documentId", job.DocumentID, "error", err)
		return
	}
	logCtx.Info("job finished", "documentId", job.DocumentID, "taskId", job.TaskID, "status", result.Status)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
