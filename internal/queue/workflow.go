package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// executionCreator is satisfied by *executions.Client.
type executionCreator interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowDispatcher starts one Cloud Workflows execution per job. The workflow calls
// the document-processor function with the job as its body.
type WorkflowDispatcher struct {
	client executionCreator
	parent string
	logger *slog.Logger
}

// NewWorkflowDispatcher takes the fully-qualified workflow name, see gcp.WorkflowParent.
func NewWorkflowDispatcher(client executionCreator, parent string, logger *slog.Logger) *WorkflowDispatcher {
	return &WorkflowDispatcher{client: client, parent: parent, logger: logger}
}

func (d *WorkflowDispatcher) Submit(ctx context.Context, documentID string) (models.Job, error) {
	job, err := newJob(documentID)
	if err != nil {
		return models.Job{}, err
	}

	payloadBytes, err := json.Marshal(models.ProcessRequest{DocumentID: job.DocumentID, TaskID: job.TaskID})
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: d.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := d.client.CreateExecution(ctx, req)
	if err != nil {
		return models.Job{}, fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	d.logger.Info("Workflow execution started.", "documentId", documentID, "taskId", job.TaskID, "execution", exec.GetName())
	return job, nil
}
