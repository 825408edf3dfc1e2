package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lllllllleong/pageflow/internal/config"
	"github.com/Lllllllleong/pageflow/internal/gcp"
)

// Backend is a Dispatcher together with its consuming side.
type Backend interface {
	Dispatcher
	// Run consumes jobs until ctx is cancelled. Backends whose workers live elsewhere
	// just wait for ctx.
	Run(ctx context.Context) error
	// Shutdown stops accepting jobs and releases resources.
	Shutdown(ctx context.Context) error
}

// New builds the backend selected by cfg.QueueBackend. handler and hook may be nil
// for processes that only submit.
func New(ctx context.Context, cfg *config.Config, handler Handler, hook FailureHook, logger *slog.Logger) (Backend, error) {
	switch cfg.QueueBackend {
	case config.QueuePool:
		if handler == nil {
			return nil, fmt.Errorf("the pool queue needs a handler in this process")
		}
		return NewPool(handler, logger,
			WithWorkers(cfg.Workers),
			WithQueueSize(cfg.QueueSize),
			WithJobTimeout(cfg.JobTimeout),
			WithFailureHook(hook),
		), nil

	case config.QueueRedis:
		client, err := NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return NewRedisQueue(client, RedisConfig{
			Key:        cfg.RedisQueueKey,
			ConsumerID: cfg.RedisConsumerID,
			Workers:    cfg.Workers,
			MaxPending: int64(cfg.QueueSize),
			JobTimeout: cfg.JobTimeout,
		}, handler, hook, logger), nil

	case config.QueueWorkflow:
		client, err := gcp.NewExecutionsClient(ctx)
		if err != nil {
			return nil, err
		}
		parent := gcp.WorkflowParent(cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
		return NewWorkflowDispatcher(client, parent, logger), nil

	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Run returns when ctx is done; the pool's workers were started by NewPool.
func (p *Pool) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Shutdown closes the Redis client. Workers stop when the ctx given to Run is cancelled.
func (q *RedisQueue) Shutdown(context.Context) error {
	return q.client.Close()
}

// Run returns when ctx is done; executions are consumed by Cloud Workflows.
func (d *WorkflowDispatcher) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (d *WorkflowDispatcher) Shutdown(context.Context) error {
	if c, ok := d.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
