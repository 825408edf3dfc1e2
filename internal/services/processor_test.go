package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pageflow/internal/extract"
	"github.com/Lllllllleong/pageflow/internal/fetcher"
	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/render"
	"github.com/Lllllllleong/pageflow/internal/store"
)

var samplePDF = []byte("%PDF-1.4\n% test document\n")

type stubFetcher struct {
	data    []byte
	err     error
	located string
}

func (f *stubFetcher) Fetch(_ context.Context, locator string) ([]byte, error) {
	f.located = locator
	return f.data, f.err
}

type stubRenderer struct {
	pages int
	err   error
	panic bool
}

func (r *stubRenderer) Render(_ context.Context, _ []byte) ([]render.PageImage, error) {
	if r.panic {
		panic("renderer exploded")
	}
	if r.err != nil {
		return nil, r.err
	}
	images := make([]render.PageImage, r.pages)
	for i := range images {
		images[i] = render.PageImage{SourcePage: i, PNG: []byte(fmt.Sprintf("png-%d", i))}
	}
	return images, nil
}

// stubExtractor fails for the page images listed in failOn.
type stubExtractor struct {
	failOn map[string]bool
}

func (e *stubExtractor) Extract(_ context.Context, png []byte) extract.Outcome {
	if e.failOn[string(png)] {
		cause := errors.New("model unavailable")
		return extract.Outcome{Text: extract.ErrorTextPrefix + cause.Error(), Failed: true, Cause: cause}
	}
	return extract.Outcome{Text: "# text of " + string(png)}
}

// failingStore fails InsertPageContent for the given chapter index.
type failingStore struct {
	*store.MemoryStore
	failIndex int
}

func (s *failingStore) InsertPageContent(ctx context.Context, page *models.PageContent) error {
	if page.ChapterIndex == s.failIndex {
		return errors.New("write quota exceeded")
	}
	return s.MemoryStore.InsertPageContent(ctx, page)
}

type recordingArchiver struct {
	mu    sync.Mutex
	pages []int
	err   error
}

func (a *recordingArchiver) Archive(_ context.Context, _ string, index int, _ []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pages = append(a.pages, index)
	return a.err
}

type recordingPublisher struct {
	store     *store.MemoryStore
	published []string
	statusAt  models.ProcessingStatus
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, documentID string) (string, error) {
	p.published = append(p.published, documentID)
	if doc, err := p.store.GetDocument(ctx, documentID); err == nil {
		p.statusAt = doc.ProcessingStatus
	}
	return "gs://archive/" + MasterObjectName(documentID), p.err
}

type fixture struct {
	store     *store.MemoryStore
	fetcher   *stubFetcher
	renderer  *stubRenderer
	extractor *stubExtractor
}

func newFixture(pages int) *fixture {
	s := store.NewMemoryStore()
	s.PutDocument(models.Document{ID: "doc-1", StoragePath: "books/doc-1.pdf", ProcessingStatus: models.StatusPending})
	return &fixture{
		store:     s,
		fetcher:   &stubFetcher{data: samplePDF},
		renderer:  &stubRenderer{pages: pages},
		extractor: &stubExtractor{},
	}
}

func (f *fixture) processor(cfg ProcessorConfig) *DocumentProcessor {
	return NewDocumentProcessor(ProcessorDeps{
		Store:     f.store,
		Fetcher:   f.fetcher,
		Locator:   fetcher.Locator{BaseURL: "https://files.example.com/storage/v1/object/public/book_files"},
		Renderer:  f.renderer,
		Extractor: f.extractor,
	}, cfg)
}

func job(id string) models.Job {
	return models.Job{TaskID: "task-1", DocumentID: id, SubmittedAt: time.Now()}
}

func TestProcess_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(3)

	result := f.processor(ProcessorConfig{}).Process(ctx, job("doc-1"))

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, "task-1", result.TaskID)
	require.NotNil(t, result.PageCount)
	assert.Equal(t, 3, *result.PageCount)
	assert.Equal(t, "https://files.example.com/storage/v1/object/public/book_files/books/doc-1.pdf", f.fetcher.located)

	doc, err := f.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.ProcessingStatus)
	require.NotNil(t, doc.PageCount)
	assert.Equal(t, 3, *doc.PageCount)
	assert.Nil(t, doc.ErrorMessage)

	pages, err := f.store.ListPageContents(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i, p.ChapterIndex)
		assert.Equal(t, fmt.Sprintf("Page %d", i+1), p.ChapterTitle)
		assert.Equal(t, models.ContentMarkdown, p.ContentType)
		assert.Equal(t, fmt.Sprintf("# text of png-%d", i), p.Content)
	}

	assert.Equal(t, []string{
		"status:processing",
		"page_count:3",
		"page:0",
		"page:1",
		"page:2",
		"status:completed",
	}, f.store.Ops())
}

func TestProcess_DocumentNotFound(t *testing.T) {
	f := newFixture(1)

	result := f.processor(ProcessorConfig{}).Process(context.Background(), job("missing"))

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "missing")
	assert.True(t, strings.HasPrefix(result.Message, "Failed to process document: "))
	assert.Empty(t, f.fetcher.located)
	assert.Empty(t, f.store.Ops())
}

func TestProcess_DownloadFailure(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := newFixture(1)
	p := NewDocumentProcessor(ProcessorDeps{
		Store:     f.store,
		Fetcher:   fetcher.NewHTTPFetcher(5 * time.Second),
		Locator:   fetcher.Locator{BaseURL: srv.URL},
		Renderer:  f.renderer,
		Extractor: f.extractor,
	}, ProcessorConfig{})

	result := p.Process(ctx, job("doc-1"))

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "Failed to download")

	doc, err := f.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.ProcessingStatus)
	require.NotNil(t, doc.ErrorMessage)
	assert.Contains(t, *doc.ErrorMessage, "Failed to download")
	assert.Nil(t, doc.PageCount)
}

func TestProcess_EmptyDocumentNeverCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(0)
	f.renderer.err = models.EmptyDocument("PDF has no pages")

	result := f.processor(ProcessorConfig{}).Process(ctx, job("doc-1"))

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "no pages")
	assert.Equal(t, []string{"status:processing", "status:failed"}, f.store.Ops())
}

func TestProcess_PersistenceFailureAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(3)
	fs := &failingStore{MemoryStore: f.store, failIndex: 1}
	p := NewDocumentProcessor(ProcessorDeps{
		Store:     fs,
		Fetcher:   f.fetcher,
		Locator:   fetcher.Locator{BaseURL: "https://files.example.com"},
		Renderer:  f.renderer,
		Extractor: f.extractor,
	}, ProcessorConfig{})

	result := p.Process(ctx, job("doc-1"))

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "write quota exceeded")
	assert.Equal(t, []string{"status:processing", "page_count:3", "page:0", "status:failed"}, f.store.Ops())

	doc, err := f.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.ProcessingStatus)
	require.NotNil(t, doc.PageCount)
	assert.Equal(t, 3, *doc.PageCount)
}

func TestProcess_ExtractionFailurePolicies(t *testing.T) {
	tests := []struct {
		policy     FailurePolicy
		wantStatus models.ProcessingStatus
		wantPages  int
	}{
		{PolicyStore, models.StatusCompleted, 3},
		{PolicySkip, models.StatusCompleted, 2},
		{PolicyAbort, models.StatusFailed, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(3)
			f.extractor.failOn = map[string]bool{"png-1": true}

			result := f.processor(ProcessorConfig{Policy: tt.policy}).Process(ctx, job("doc-1"))
			assert.Equal(t, tt.wantStatus, result.Status)

			pages, err := f.store.ListPageContents(ctx, "doc-1")
			require.NoError(t, err)
			assert.Len(t, pages, tt.wantPages)

			doc, err := f.store.GetDocument(ctx, "doc-1")
			require.NoError(t, err)
			require.NotNil(t, doc.PageCount)
			assert.Equal(t, 3, *doc.PageCount)

			switch tt.policy {
			case PolicyStore:
				assert.Equal(t, "Error extracting text: model unavailable", pages[1].Content)
				assert.Equal(t, "Page 2", pages[1].ChapterTitle)
			case PolicySkip:
				assert.Equal(t, 0, pages[0].ChapterIndex)
				assert.Equal(t, 2, pages[1].ChapterIndex)
			case PolicyAbort:
				assert.Contains(t, result.Message, "extraction failed for page 2")
			}
		})
	}
}

func TestProcess_PanicIsContained(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1)
	f.renderer.panic = true

	var result models.JobResult
	require.NotPanics(t, func() {
		result = f.processor(ProcessorConfig{}).Process(ctx, job("doc-1"))
	})
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Contains(t, result.Message, "renderer exploded")

	doc, err := f.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.ProcessingStatus)
}

func TestProcess_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(2)
	archive := &recordingArchiver{err: errors.New("bucket missing")}
	p := NewDocumentProcessor(ProcessorDeps{
		Store:     f.store,
		Fetcher:   f.fetcher,
		Locator:   fetcher.Locator{BaseURL: "https://files.example.com"},
		Renderer:  f.renderer,
		Extractor: f.extractor,
		Archive:   archive,
	}, ProcessorConfig{})

	result := p.Process(context.Background(), job("doc-1"))

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, []int{0, 1}, archive.pages)
}

func TestProcess_PublishesAfterCompletion(t *testing.T) {
	f := newFixture(2)
	publisher := &recordingPublisher{store: f.store, err: errors.New("bucket missing")}
	p := NewDocumentProcessor(ProcessorDeps{
		Store:     f.store,
		Fetcher:   f.fetcher,
		Locator:   fetcher.Locator{BaseURL: "https://files.example.com"},
		Renderer:  f.renderer,
		Extractor: f.extractor,
		Publisher: publisher,
	}, ProcessorConfig{})

	result := p.Process(context.Background(), job("doc-1"))

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.Equal(t, []string{"doc-1"}, publisher.published)
	assert.Equal(t, models.StatusCompleted, publisher.statusAt)
}

func TestProcess_NoPublishOnFailure(t *testing.T) {
	f := newFixture(2)
	f.renderer.err = errors.New("corrupt")
	publisher := &recordingPublisher{store: f.store}
	p := NewDocumentProcessor(ProcessorDeps{
		Store:     f.store,
		Fetcher:   f.fetcher,
		Locator:   fetcher.Locator{BaseURL: "https://files.example.com"},
		Renderer:  f.renderer,
		Extractor: f.extractor,
		Publisher: publisher,
	}, ProcessorConfig{})

	result := p.Process(context.Background(), job("doc-1"))

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Empty(t, publisher.published)
}

func TestProcess_RerunReplacesPreviousOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture(2)
	p := f.processor(ProcessorConfig{})
	status := NewStatusService(f.store)

	f.fetcher.err = models.FetchFailed(errors.New("boom 404"))
	require.Equal(t, models.StatusFailed, p.Process(ctx, job("doc-1")).Status)

	f.fetcher.err = nil
	require.Equal(t, models.StatusCompleted, p.Process(ctx, job("doc-1")).Status)

	resp := status.Query(ctx, "doc-1")
	assert.Equal(t, models.StatusCompleted, resp.Status)
	assert.Equal(t, "Document processing status: completed", resp.Message)
	require.NotNil(t, resp.PageCount)
	assert.Equal(t, 2, *resp.PageCount)

	doc, err := f.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, doc.ErrorMessage)

	// A later run that fails before rendering must not report the old page count.
	f.fetcher.err = models.FetchFailed(errors.New("gone"))
	require.Equal(t, models.StatusFailed, p.Process(ctx, job("doc-1")).Status)

	resp = status.Query(ctx, "doc-1")
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Contains(t, resp.Message, "gone")
	assert.Nil(t, resp.PageCount)
}

func TestMarkFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(1)
	p := f.processor(ProcessorConfig{})

	p.MarkFailed(ctx, "doc-1", errors.New("worker crashed"))
	p.MarkFailed(ctx, "doc-1", nil)
	p.MarkFailed(ctx, "missing", errors.New("ignored"))

	doc, err := f.store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.ProcessingStatus)
	require.NotNil(t, doc.ErrorMessage)
	assert.Equal(t, "processing interrupted", *doc.ErrorMessage)
}

func TestParseFailurePolicy(t *testing.T) {
	for in, want := range map[string]FailurePolicy{"": PolicyStore, "store": PolicyStore, " SKIP ": PolicySkip, "abort": PolicyAbort} {
		got, err := ParseFailurePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFailurePolicy("retry")
	assert.Error(t, err)
}

func TestArchiveObjectNames(t *testing.T) {
	image, markdown := ArchiveObjectNames("doc-1", 0)
	assert.Equal(t, "doc-1/pages/00001.png", image)
	assert.Equal(t, "doc-1/pages/00001.md", markdown)
}
