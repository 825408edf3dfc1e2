package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/pageflow/internal/config"
	"github.com/Lllllllleong/pageflow/internal/gcp"
	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/services"
)

var (
	aggregator *services.Aggregator
	once       sync.Once
	initErr    error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Rebuilds master.md on demand, e.g. after pages were edited in the store.
	functions.HTTP("HandleAggregateMarkdown", handleAggregateMarkdown)
}

// main is required by the Go Functions Framework.
func main() {}

func handleAggregateMarkdown(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		aggregator, initErr = newAggregator(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Aggregator initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.AggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		http.Error(w, "Bad Request: documentId is required", http.StatusBadRequest)
		return
	}

	uri, err := aggregator.Publish(r.Context(), req.DocumentID)
	if err != nil {
		slog.Error("Aggregation failed", "documentId", req.DocumentID, "error", err)
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	res := models.AggregateResponse{Status: "success", MasterGCSUri: uri}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "documentId", req.DocumentID)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}

func newAggregator(ctx context.Context) (*services.Aggregator, error) {
	cfg := config.FromEnv()
	if cfg.ArchiveBucket == "" {
		return nil, fmt.Errorf("ARCHIVE_BUCKET environment variable must be set")
	}
	st, err := services.NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewAggregator(st, storageClient, cfg.ArchiveBucket), nil
}
