// Package queue hands document jobs to background workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pageflow/internal/models"
)

var (
	// ErrQueueFull is returned by Submit when the backend cannot take more work right now.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned by Submit after shutdown has started.
	ErrQueueClosed = errors.New("queue is shutting down")
)

// Handler runs one job. It must not return until the job has reached a terminal state.
type Handler func(ctx context.Context, job models.Job) models.JobResult

// FailureHook marks a document failed when a job ends outside the handler's own
// failure branch (a worker panic or a job orphaned by a stopped consumer).
type FailureHook func(ctx context.Context, documentID string, cause error)

// Dispatcher accepts jobs without waiting for them to run.
type Dispatcher interface {
	Submit(ctx context.Context, documentID string) (models.Job, error)
}

func newJob(documentID string) (models.Job, error) {
	if documentID == "" {
		return models.Job{}, fmt.Errorf("document id must not be empty")
	}
	return models.Job{
		TaskID:      uuid.NewString(),
		DocumentID:  documentID,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// runJob calls handler with an optional timeout. A panic is turned into a call to hook.
func runJob(ctx context.Context, handler Handler, hook FailureHook, timeout time.Duration, job models.Job) (result models.JobResult, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
			if hook != nil {
				// The job context may be the reason for the panic; use a fresh one.
				hook(context.WithoutCancel(ctx), job.DocumentID, err)
			}
		}
	}()
	return handler(ctx, job), nil
}
