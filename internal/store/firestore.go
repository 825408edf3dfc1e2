package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// FirestoreStore keeps documents and page contents in two top-level collections.
// Page records use PageID, so re-processing a document overwrites its pages.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) CreateDocument(ctx context.Context, id, storagePath string) error {
	doc := models.Document{StoragePath: storagePath, ProcessingStatus: models.StatusPending}
	_, err := s.client.Collection(models.DocumentsTable).Doc(id).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %s", ErrDocumentExists, id)
	}
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.client.Collection(models.DocumentsTable).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, models.DocumentNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}

	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}

func (s *FirestoreStore) UpdateDocument(ctx context.Context, id string, update models.DocumentUpdate) error {
	updates := firestoreUpdates(update)
	if len(updates) == 0 {
		return nil
	}
	_, err := s.client.Collection(models.DocumentsTable).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return models.DocumentNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return nil
}

func firestoreUpdates(u models.DocumentUpdate) []firestore.Update {
	var updates []firestore.Update
	if u.ProcessingStatus != nil {
		updates = append(updates, firestore.Update{Path: "processing_status", Value: string(*u.ProcessingStatus)})
	}
	switch {
	case u.PageCount != nil:
		updates = append(updates, firestore.Update{Path: "page_count", Value: *u.PageCount})
	case u.ClearResults:
		updates = append(updates, firestore.Update{Path: "page_count", Value: nil})
	}
	switch {
	case u.ErrorMessage != nil:
		updates = append(updates, firestore.Update{Path: "error_message", Value: *u.ErrorMessage})
	case u.ClearResults:
		updates = append(updates, firestore.Update{Path: "error_message", Value: nil})
	}
	if len(updates) > 0 {
		updates = append(updates, firestore.Update{Path: "updated_at", Value: firestore.ServerTimestamp})
	}
	return updates
}

func (s *FirestoreStore) InsertPageContent(ctx context.Context, page *models.PageContent) error {
	now := time.Now().UTC()
	if page.ID == "" {
		page.ID = PageID(page.DocumentID, page.ChapterIndex)
	}
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	page.UpdatedAt = now

	if _, err := s.client.Collection(models.PageContentsTable).Doc(page.ID).Set(ctx, page); err != nil {
		return fmt.Errorf("failed to write page %d of document %s: %w", page.ChapterIndex, page.DocumentID, err)
	}
	return nil
}

func (s *FirestoreStore) ListPageContents(ctx context.Context, documentID string) ([]*models.PageContent, error) {
	iter := s.client.Collection(models.PageContentsTable).Where("document_id", "==", documentID).Documents(ctx)
	defer iter.Stop()

	var pages []*models.PageContent
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list pages of document %s: %w", documentID, err)
		}
		var page models.PageContent
		if err := snap.DataTo(&page); err != nil {
			return nil, fmt.Errorf("failed to decode page %s: %w", snap.Ref.ID, err)
		}
		page.ID = snap.Ref.ID
		pages = append(pages, &page)
	}
	// Sorted here to avoid a composite index on (document_id, chapter_index).
	sort.Slice(pages, func(i, j int) bool { return pages[i].ChapterIndex < pages[j].ChapterIndex })
	return pages, nil
}

// Close is a no-op; the Firestore client is owned by the caller.
func (s *FirestoreStore) Close() error { return nil }
