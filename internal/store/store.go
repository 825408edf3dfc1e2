// Package store persists documents and their extracted pages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// Store is the persistence boundary of the pipeline. Every call is an independent
// remote operation; there are no transactions across calls.
type Store interface {
	// CreateDocument registers a pending document; ErrDocumentExists if id is taken.
	CreateDocument(ctx context.Context, id, storagePath string) error
	// GetDocument returns models.ErrDocumentNotFound (via errors.Is) when id is unknown.
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, id string, update models.DocumentUpdate) error
	InsertPageContent(ctx context.Context, page *models.PageContent) error
	// ListPageContents returns the pages of a document ordered by chapter index.
	ListPageContents(ctx context.Context, documentID string) ([]*models.PageContent, error)
	Close() error
}

var ErrDocumentExists = errors.New("document already exists")

// PageID is the deterministic page record id used by backends that replace on re-run.
func PageID(documentID string, index int) string {
	return fmt.Sprintf("%s_%05d", documentID, index)
}
