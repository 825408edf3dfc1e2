package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// pageSeparator goes between pages in the assembled document.
const pageSeparator = "\n\n---\n\n"

// PageSource is satisfied by every store.Store.
type PageSource interface {
	ListPageContents(ctx context.Context, documentID string) ([]*models.PageContent, error)
}

// MasterObjectName is where the assembled markdown of a document is written.
func MasterObjectName(documentID string) string {
	return documentID + "/master.md"
}

// JoinPages concatenates page contents in the order given, separated by a horizontal rule.
func JoinPages(pages []*models.PageContent) string {
	var b strings.Builder
	_ = writePages(&b, pages)
	return b.String()
}

func writePages(w io.Writer, pages []*models.PageContent) error {
	for i, p := range pages {
		if i > 0 {
			if _, err := io.WriteString(w, pageSeparator); err != nil {
				return fmt.Errorf("failed to write separator: %w", err)
			}
		}
		if _, err := io.WriteString(w, p.Content); err != nil {
			return fmt.Errorf("failed to write page %d: %w", p.ChapterIndex+1, err)
		}
	}
	return nil
}

// Aggregator assembles the stored pages of a document into one markdown file.
type Aggregator struct {
	pages      PageSource
	bucket     *storage.BucketHandle
	bucketName string
}

func NewAggregator(pages PageSource, client *storage.Client, bucketName string) *Aggregator {
	return &Aggregator{pages: pages, bucket: client.Bucket(bucketName), bucketName: bucketName}
}

// Publish streams the document's pages into master.md and returns its gs:// URI.
// An existing master.md is replaced so it always reflects the latest run.
func (a *Aggregator) Publish(ctx context.Context, documentID string) (string, error) {
	logCtx := slog.With("documentId", documentID)

	pages, err := a.pages.ListPageContents(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) == 0 {
		logCtx.Warn("No pages found to aggregate, writing an empty master file.")
	}

	objectName := MasterObjectName(documentID)
	w := a.bucket.Object(objectName).NewWriter(ctx)
	w.ContentType = "text/markdown; charset=utf-8"

	writeErr := writePages(w, pages)
	if err := w.Close(); err != nil {
		logCtx.Error("Critical: Failed to finalize master.md write", "error", err, "object", objectName)
		return "", fmt.Errorf("failed to finalize master.md: %w", err)
	}
	if writeErr != nil {
		return "", writeErr
	}

	uri := fmt.Sprintf("gs://%s/%s", a.bucketName, objectName)
	logCtx.Info("Aggregation complete.", "pageCount", len(pages), "uri", uri)
	return uri, nil
}
