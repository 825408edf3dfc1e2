package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/pageflow/internal/extract"
	"github.com/Lllllllleong/pageflow/internal/fetcher"
	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/render"
	"github.com/Lllllllleong/pageflow/internal/store"
)

// FailurePolicy decides what happens to a page whose extraction failed after retries.
type FailurePolicy string

const (
	// PolicyStore writes the "Error extracting text: ..." placeholder as the page content.
	PolicyStore FailurePolicy = "store"
	// PolicySkip leaves the page out.
	PolicySkip FailurePolicy = "skip"
	// PolicyAbort fails the whole run with ExtractionFailed.
	PolicyAbort FailurePolicy = "abort"
)

// ParseFailurePolicy reads EXTRACTION_FAILURE_POLICY; an empty value means PolicyStore.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyStore, nil
	case PolicyStore, PolicySkip, PolicyAbort:
		return p, nil
	default:
		return "", fmt.Errorf("unknown extraction failure policy %q", s)
	}
}

// Renderer is satisfied by *render.Renderer.
type Renderer interface {
	Render(ctx context.Context, data []byte) ([]render.PageImage, error)
}

// PageExtractor is satisfied by *extract.SoftExtractor.
type PageExtractor interface {
	Extract(ctx context.Context, png []byte) extract.Outcome
}

// PageArchiver keeps a copy of each processed page outside the store.
type PageArchiver interface {
	Archive(ctx context.Context, documentID string, index int, png []byte, markdown string) error
}

// DocumentPublisher is satisfied by *Aggregator.
type DocumentPublisher interface {
	Publish(ctx context.Context, documentID string) (string, error)
}

// ProcessorConfig holds the tunables of a DocumentProcessor. Zero timeouts disable the bound.
type ProcessorConfig struct {
	FetchTimeout   time.Duration
	RenderTimeout  time.Duration
	ExtractTimeout time.Duration
	Policy         FailurePolicy
}

// ProcessorDeps are the collaborators of a DocumentProcessor. Archive and Publisher are optional.
type ProcessorDeps struct {
	Store     store.Store
	Fetcher   fetcher.Fetcher
	Locator   fetcher.Locator
	Renderer  Renderer
	Extractor PageExtractor
	Archive   PageArchiver
	Publisher DocumentPublisher
}

// DocumentProcessor runs one document through fetch, render, extract and persist.
type DocumentProcessor struct {
	deps ProcessorDeps
	cfg  ProcessorConfig
}

// NewDocumentProcessor wires a processor. A zero Policy defaults to PolicyStore.
func NewDocumentProcessor(deps ProcessorDeps, cfg ProcessorConfig) *DocumentProcessor {
	if cfg.Policy == "" {
		cfg.Policy = PolicyStore
	}
	return &DocumentProcessor{deps: deps, cfg: cfg}
}

// Process never returns an error and never panics; every failure is persisted on the
// document and reported through the result.
func (p *DocumentProcessor) Process(ctx context.Context, job models.Job) (result models.JobResult) {
	logCtx := slog.With("documentId", job.DocumentID, "taskId", job.TaskID)
	logCtx.Info("Processing document.")

	defer func() {
		if r := recover(); r != nil {
			result = p.handleError(ctx, logCtx, job, fmt.Errorf("panic during processing: %v", r))
		}
	}()

	pageCount, err := p.run(ctx, logCtx, job.DocumentID)
	if err != nil {
		return p.handleError(ctx, logCtx, job, err)
	}

	logCtx.Info("Document processed successfully.", "pageCount", pageCount)
	return models.JobResult{
		DocumentID: job.DocumentID,
		TaskID:     job.TaskID,
		Status:     models.StatusCompleted,
		Message:    "Document processing completed successfully",
		PageCount:  &pageCount,
	}
}

func (p *DocumentProcessor) run(ctx context.Context, logCtx *slog.Logger, documentID string) (int, error) {
	doc, err := p.deps.Store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if err := p.deps.Store.UpdateDocument(ctx, documentID, models.StartRunUpdate()); err != nil {
		return 0, models.PersistenceFailed("failed to update status to processing", err)
	}

	locator, err := p.deps.Locator.Resolve(doc.StoragePath)
	if err != nil {
		return 0, models.FetchFailed(err)
	}
	logCtx = logCtx.With("locator", locator)

	pdf, err := withTimeout(ctx, p.cfg.FetchTimeout, func(ctx context.Context) ([]byte, error) {
		return p.deps.Fetcher.Fetch(ctx, locator)
	})
	if err != nil {
		return 0, err
	}
	logCtx.Info("Document downloaded.", "bytes", len(pdf))

	images, err := withTimeout(ctx, p.cfg.RenderTimeout, func(ctx context.Context) ([]render.PageImage, error) {
		return p.deps.Renderer.Render(ctx, pdf)
	})
	if err != nil {
		return 0, err
	}

	pageCount := len(images)
	if err := p.deps.Store.UpdateDocument(ctx, documentID, models.PageCountUpdate(pageCount)); err != nil {
		return 0, models.PersistenceFailed("failed to record page count", err)
	}
	logCtx.Info("Pages rendered.", "pageCount", pageCount)

	for i, img := range images {
		if err := p.processPage(ctx, logCtx, documentID, i, img); err != nil {
			return 0, err
		}
	}

	if err := p.deps.Store.UpdateDocument(ctx, documentID, models.StatusUpdate(models.StatusCompleted)); err != nil {
		return 0, models.PersistenceFailed("failed to update status to completed", err)
	}

	if p.deps.Publisher != nil {
		if _, err := p.deps.Publisher.Publish(ctx, documentID); err != nil {
			logCtx.Warn("Failed to publish master document.", "error", err)
		}
	}
	return pageCount, nil
}

func (p *DocumentProcessor) processPage(ctx context.Context, logCtx *slog.Logger, documentID string, index int, img render.PageImage) error {
	pageLog := logCtx.With("page", index+1, "sourcePage", img.SourcePage+1)

	outcome, _ := withTimeout(ctx, p.cfg.ExtractTimeout, func(ctx context.Context) (extract.Outcome, error) {
		return p.deps.Extractor.Extract(ctx, img.PNG), nil
	})

	if outcome.Failed {
		switch p.cfg.Policy {
		case PolicySkip:
			pageLog.Warn("Extraction failed, skipping page.", "error", outcome.Cause)
			return nil
		case PolicyAbort:
			return models.ExtractionFailed(fmt.Sprintf("extraction failed for page %d", index+1), outcome.Cause)
		default:
			pageLog.Warn("Extraction failed, storing placeholder text.", "error", outcome.Cause)
		}
	}

	page := &models.PageContent{
		DocumentID:   documentID,
		ContentType:  models.ContentMarkdown,
		Content:      outcome.Text,
		ChapterIndex: index,
		ChapterTitle: fmt.Sprintf("Page %d", index+1),
	}
	if err := p.deps.Store.InsertPageContent(ctx, page); err != nil {
		return models.PersistenceFailed(fmt.Sprintf("failed to save page %d", index+1), err)
	}
	pageLog.Info("Page saved.", "chars", len(outcome.Text))

	if p.deps.Archive != nil {
		if err := p.deps.Archive.Archive(ctx, documentID, index, img.PNG, outcome.Text); err != nil {
			pageLog.Warn("Failed to archive page.", "error", err)
		}
	}
	return nil
}

// handleError is the single failure branch: it records the failure on the document
// and builds the failed result.
func (p *DocumentProcessor) handleError(ctx context.Context, logCtx *slog.Logger, job models.Job, cause error) models.JobResult {
	message := cause.Error()
	logCtx.Error("Document processing failed.", "error", cause, "kind", string(models.KindOf(cause)))

	// The run may have failed because ctx expired; the failed write must still go out.
	if err := p.deps.Store.UpdateDocument(context.WithoutCancel(ctx), job.DocumentID, models.FailedUpdate(message)); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to failed after a processing error.", "updateError", err)
	}
	return models.JobResult{
		DocumentID: job.DocumentID,
		TaskID:     job.TaskID,
		Status:     models.StatusFailed,
		Message:    "Failed to process document: " + message,
	}
}

// MarkFailed records cause on the document. It is used as the queue failure hook for
// jobs that never reached Process's own failure branch.
func (p *DocumentProcessor) MarkFailed(ctx context.Context, documentID string, cause error) {
	msg := "processing interrupted"
	if cause != nil {
		msg = cause.Error()
	}
	if err := p.deps.Store.UpdateDocument(ctx, documentID, models.FailedUpdate(msg)); err != nil {
		slog.Error("Failed to mark document as failed.", "documentId", documentID, "error", err)
	}
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
