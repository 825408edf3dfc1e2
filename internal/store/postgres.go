package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Lllllllleong/pageflow/internal/models"
)

const uniqueViolation = "23505"

// Schema creates the tables used by PostgresStore when they do not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id                TEXT PRIMARY KEY,
	storage_path      TEXT NOT NULL,
	processing_status TEXT NOT NULL DEFAULT 'pending',
	page_count        INTEGER,
	error_message     TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS page_contents (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	content       TEXT NOT NULL,
	chapter_index INTEGER NOT NULL,
	chapter_title TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS page_contents_document_idx ON page_contents (document_id, chapter_index);
`

// PostgresConfig controls the pgx pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// PostgresStore appends a new page row per insert, so re-runs leave earlier rows in place.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "pageflow"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Connected to database.")
	return &PostgresStore{pool: pool, log: logger}, nil
}

// EnsureSchema applies Schema. It is safe to call on every start.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var (
		doc    models.Document
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, storage_path, processing_status, page_count, error_message FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.StoragePath, &status, &doc.PageCount, &doc.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.DocumentNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	doc.ProcessingStatus = models.ProcessingStatus(status)
	return &doc, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, id string, update models.DocumentUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.ProcessingStatus != nil {
		add("processing_status", string(*update.ProcessingStatus))
	}
	switch {
	case update.PageCount != nil:
		add("page_count", *update.PageCount)
	case update.ClearResults:
		sets = append(sets, "page_count = NULL")
	}
	switch {
	case update.ErrorMessage != nil:
		add("error_message", *update.ErrorMessage)
	case update.ClearResults:
		sets = append(sets, "error_message = NULL")
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE documents SET %s, updated_at = now() WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.DocumentNotFound(id)
	}
	return nil
}

func (s *PostgresStore) InsertPageContent(ctx context.Context, page *models.PageContent) error {
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO page_contents (id, document_id, content_type, content, chapter_index, chapter_title)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		page.ID, page.DocumentID, string(page.ContentType), page.Content, page.ChapterIndex, page.ChapterTitle,
	).Scan(&page.CreatedAt, &page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert page %d of document %s: %w", page.ChapterIndex, page.DocumentID, err)
	}
	return nil
}

func (s *PostgresStore) ListPageContents(ctx context.Context, documentID string) ([]*models.PageContent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (chapter_index)
		        id, document_id, content_type, content, chapter_index, chapter_title, created_at, updated_at
		 FROM page_contents WHERE document_id = $1
		 ORDER BY chapter_index, created_at DESC`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages of document %s: %w", documentID, err)
	}
	defer rows.Close()

	var pages []*models.PageContent
	for rows.Next() {
		var (
			p           models.PageContent
			contentType string
		)
		if err := rows.Scan(&p.ID, &p.DocumentID, &contentType, &p.Content, &p.ChapterIndex, &p.ChapterTitle, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page row: %w", err)
		}
		p.ContentType = models.ContentType(contentType)
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// CreateDocument inserts a pending document.
func (s *PostgresStore) CreateDocument(ctx context.Context, id, storagePath string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, storage_path, processing_status) VALUES ($1, $2, $3)`,
		id, storagePath, string(models.StatusPending),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDocumentExists, id)
	}
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.log.Info("Closing database connections.")
	s.pool.Close()
	return nil
}
