package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// MemoryStore is an in-process Store for local runs and tests. Pages are keyed by
// (document, chapter index), so a re-run replaces earlier pages.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]models.Document
	pages map[string]map[int]models.PageContent
	ops   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]models.Document),
		pages: make(map[string]map[int]models.PageContent),
	}
}

// PutDocument creates or replaces a document record.
func (s *MemoryStore) PutDocument(doc models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

func (s *MemoryStore) CreateDocument(_ context.Context, id, storagePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; ok {
		return fmt.Errorf("%w: %s", ErrDocumentExists, id)
	}
	s.docs[id] = models.Document{ID: id, StoragePath: storagePath, ProcessingStatus: models.StatusPending}
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, models.DocumentNotFound(id)
	}
	return &doc, nil
}

func (s *MemoryStore) UpdateDocument(_ context.Context, id string, update models.DocumentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return models.DocumentNotFound(id)
	}
	if update.ProcessingStatus != nil {
		doc.ProcessingStatus = *update.ProcessingStatus
		s.ops = append(s.ops, "status:"+string(*update.ProcessingStatus))
	}
	if update.ClearResults {
		doc.PageCount = nil
		doc.ErrorMessage = nil
	}
	if update.PageCount != nil {
		n := *update.PageCount
		doc.PageCount = &n
		s.ops = append(s.ops, fmt.Sprintf("page_count:%d", n))
	}
	if update.ErrorMessage != nil {
		msg := *update.ErrorMessage
		doc.ErrorMessage = &msg
	}
	s.docs[id] = doc
	return nil
}

func (s *MemoryStore) InsertPageContent(_ context.Context, page *models.PageContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if page.ID == "" {
		page.ID = PageID(page.DocumentID, page.ChapterIndex)
	}
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	page.UpdatedAt = now

	byIndex, ok := s.pages[page.DocumentID]
	if !ok {
		byIndex = make(map[int]models.PageContent)
		s.pages[page.DocumentID] = byIndex
	}
	byIndex[page.ChapterIndex] = *page
	s.ops = append(s.ops, fmt.Sprintf("page:%d", page.ChapterIndex))
	return nil
}

func (s *MemoryStore) ListPageContents(_ context.Context, documentID string) ([]*models.PageContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byIndex := s.pages[documentID]
	pages := make([]*models.PageContent, 0, len(byIndex))
	for _, p := range byIndex {
		p := p
		pages = append(pages, &p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].ChapterIndex < pages[j].ChapterIndex })
	return pages, nil
}

// Ops returns the write log, e.g. "status:processing", "page_count:3", "page:0".
func (s *MemoryStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *MemoryStore) Close() error { return nil }
