package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/pageflow/internal/config"
	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/services"
)

var (
	pipelineInstance *services.Pipeline
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Called by the orchestration workflow once per submitted document.
	functions.HTTP("HandleProcessDocument", handleProcessDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		pipelineInstance, initErr = services.NewPipeline(context.Background(), cfg)
	})
	if initErr != nil {
		slog.Error("CRITICAL: Document processor initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.DocumentID == "" {
		http.Error(w, "Bad Request: documentId is required", http.StatusBadRequest)
		return
	}

	job := models.Job{TaskID: req.TaskID, DocumentID: req.DocumentID, SubmittedAt: time.Now().UTC()}
	res := pipelineInstance.Processor.Process(r.Context(), job)

	// A failed document is still a handled request; the workflow reads the status field.
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
