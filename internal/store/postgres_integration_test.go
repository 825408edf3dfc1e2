//go:build integration

package store

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Lllllllleong/pageflow/internal/models"
)

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pageflow_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresStore(ctx, PostgresConfig{DSN: dsn, DialTimeout: 30 * time.Second}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	_, err := s.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
	assert.ErrorIs(t, s.UpdateDocument(ctx, "missing", models.StatusUpdate(models.StatusFailed)), models.ErrDocumentNotFound)

	require.NoError(t, s.CreateDocument(ctx, "doc-1", "uploads/doc-1.pdf"))
	assert.ErrorIs(t, s.CreateDocument(ctx, "doc-1", "uploads/other.pdf"), ErrDocumentExists)
	doc, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, doc.ProcessingStatus)
	assert.Nil(t, doc.PageCount)
	assert.Nil(t, doc.ErrorMessage)

	require.NoError(t, s.UpdateDocument(ctx, "doc-1", models.StatusUpdate(models.StatusProcessing)))
	require.NoError(t, s.UpdateDocument(ctx, "doc-1", models.PageCountUpdate(2)))
	require.NoError(t, s.UpdateDocument(ctx, "doc-1", models.DocumentUpdate{}))

	doc, err = s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, doc.ProcessingStatus)
	require.NotNil(t, doc.PageCount)
	assert.Equal(t, 2, *doc.PageCount)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.InsertPageContent(ctx, &models.PageContent{
			DocumentID:   "doc-1",
			ContentType:  models.ContentMarkdown,
			Content:      "# text",
			ChapterIndex: i,
			ChapterTitle: "Page",
		}))
	}
	// Postgres appends: a second run adds rows, and listing returns the newest per page.
	require.NoError(t, s.InsertPageContent(ctx, &models.PageContent{
		DocumentID: "doc-1", ContentType: models.ContentMarkdown, Content: "again", ChapterIndex: 0, ChapterTitle: "Page",
	}))

	var rowCount int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM page_contents WHERE document_id = $1`, "doc-1").Scan(&rowCount))
	assert.Equal(t, 3, rowCount)

	pages, err := s.ListPageContents(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 0, pages[0].ChapterIndex)
	assert.Equal(t, "again", pages[0].Content)
	assert.Equal(t, 1, pages[1].ChapterIndex)
	assert.Equal(t, "# text", pages[1].Content)
	assert.False(t, pages[0].CreatedAt.IsZero())

	require.NoError(t, s.UpdateDocument(ctx, "doc-1", models.FailedUpdate("Failed to process document: boom")))
	doc, err = s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.ProcessingStatus)
	require.NotNil(t, doc.ErrorMessage)
	assert.Contains(t, *doc.ErrorMessage, "boom")

	require.NoError(t, s.UpdateDocument(ctx, "doc-1", models.StartRunUpdate()))
	doc, err = s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, doc.ProcessingStatus)
	assert.Nil(t, doc.PageCount)
	assert.Nil(t, doc.ErrorMessage)
}
