package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/pageflow/internal/config"
	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/queue"
)

var (
	dispatcher queue.Backend
	once       sync.Once
	initErr    error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("SubmitDocument", submitDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// pubSubMessage is the envelope of a Pub/Sub CloudEvent; Data carries the SubmitEvent JSON.
type pubSubMessage struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
}

// submitDocument turns a Pub/Sub submission into a queued job.
func submitDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		// This function only submits; workers run in docflowd or behind the workflow.
		dispatcher, initErr = queue.New(context.Background(), cfg, nil, nil, slog.Default())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	event, messageID, err := parseSubmission(e.Data())
	if err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return err
	}
	if event.DocumentID == "" {
		// Retrying cannot fix a message without a document id.
		slog.Warn("Ignoring submission without documentId", "messageId", messageID)
		return nil
	}

	job, err := dispatcher.Submit(ctx, event.DocumentID)
	if err != nil {
		slog.Error("Failed to submit document", "documentId", event.DocumentID, "error", err)
		return err
	}
	slog.Info("Document submitted.", "documentId", job.DocumentID, "taskId", job.TaskID, "messageId", messageID)
	return nil
}

func parseSubmission(data []byte) (models.SubmitEvent, string, error) {
	var msg pubSubMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.SubmitEvent{}, "", fmt.Errorf("json.Unmarshal: %w", err)
	}
	var event models.SubmitEvent
	if err := json.Unmarshal(msg.Message.Data, &event); err != nil {
		return models.SubmitEvent{}, msg.Message.ID, fmt.Errorf("json.Unmarshal submission: %w", err)
	}
	return event, msg.Message.ID, nil
}
