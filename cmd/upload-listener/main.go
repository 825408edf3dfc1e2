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
	"github.com/Lllllllleong/pageflow/internal/gcp"
	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/queue"
	"github.com/Lllllllleong/pageflow/internal/services"
)

var (
	intake  *services.Intake
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by google.cloud.storage.object.v1.finalized on the upload bucket.
	functions.CloudEvent("RegisterUpload", registerUpload)
}

// main is required by the Go Functions Framework.
func main() {}

func registerUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		intake, initErr = newIntake(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var upload models.UploadEvent
	if err := json.Unmarshal(e.Data(), &upload); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Register; returning one lets the event retry.
	_, err := intake.Register(ctx, upload)
	return err
}

func newIntake(ctx context.Context) (*services.Intake, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	st, err := services.NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	// Jobs are consumed by docflowd or the workflow, never in this function.
	dispatcher, err := queue.New(ctx, cfg, nil, nil, slog.Default())
	if err != nil {
		return nil, err
	}
	slog.Info("Upload intake initialized.", "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
	return services.NewIntake(st, services.NewGCSObjects(storageClient), dispatcher), nil
}
