package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/pageflow/internal/config"
	"github.com/Lllllllleong/pageflow/internal/extract"
	"github.com/Lllllllleong/pageflow/internal/fetcher"
	"github.com/Lllllllleong/pageflow/internal/gcp"
	"github.com/Lllllllleong/pageflow/internal/render"
	"github.com/Lllllllleong/pageflow/internal/store"
)

// Pipeline bundles the processor and the status service with the clients they share.
type Pipeline struct {
	Config    *config.Config
	Store     store.Store
	Processor *DocumentProcessor
	Status    *StatusService

	closers []func() error
}

// NewPipeline creates every client the configured backends need.
func NewPipeline(ctx context.Context, cfg *config.Config) (_ *Pipeline, err error) {
	p := &Pipeline{Config: cfg}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	st, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.Store = st
	p.closers = append(p.closers, st.Close)

	policy, err := ParseFailurePolicy(cfg.ExtractionFailurePolicy)
	if err != nil {
		return nil, err
	}

	// Uploads registered by the intake carry absolute gs:// paths, so GCS is tried even
	// when nothing requires it; without credentials only HTTP documents are fetchable.
	storageRequired := cfg.ArchiveBucket != "" || strings.HasPrefix(cfg.DocumentBaseURL, "gs://")
	storageClient, err := gcp.NewStorageClient(ctx)
	switch {
	case err == nil:
		p.closers = append(p.closers, storageClient.Close)
	case storageRequired:
		return nil, err
	default:
		slog.Warn("Cloud Storage unavailable, gs:// documents cannot be fetched.", "error", err)
		storageClient = nil
	}

	router := &fetcher.Router{HTTP: fetcher.NewHTTPFetcher(cfg.FetchTimeout)}
	if storageClient != nil {
		router.GCS = fetcher.NewGCSFetcher(storageClient)
	}

	client, closeClient, err := NewExtractorClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, closeClient)

	deps := ProcessorDeps{
		Store:     st,
		Fetcher:   router,
		Locator:   fetcher.Locator{BaseURL: cfg.DocumentBaseURL},
		Renderer:  render.NewRenderer(),
		Extractor: extract.NewSoftExtractor(client, extract.WithRetries(cfg.ExtractRetries)),
	}
	if cfg.ArchiveBucket != "" {
		deps.Archive = NewGCSArchiver(storageClient, cfg.ArchiveBucket)
		deps.Publisher = NewAggregator(st, storageClient, cfg.ArchiveBucket)
	}

	p.Processor = NewDocumentProcessor(deps, ProcessorConfig{
		FetchTimeout:   cfg.FetchTimeout,
		RenderTimeout:  cfg.RenderTimeout,
		ExtractTimeout: cfg.ExtractTimeout,
		Policy:         policy,
	})
	p.Status = NewStatusService(st)

	slog.Info("Pipeline initialized.",
		"store", cfg.StoreBackend,
		"extractor", cfg.ExtractorBackend,
		"policy", string(policy),
		"archive", cfg.ArchiveBucket != "",
	)
	return p, nil
}

// NewStore opens the backend selected by cfg.StoreBackend.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreFirestore:
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		return &ownedFirestore{FirestoreStore: store.NewFirestoreStore(client), close: client.Close}, nil
	case config.StorePostgres:
		pg, err := store.NewPostgresStore(ctx, store.PostgresConfig{DSN: cfg.DatabaseURL}, slog.Default())
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	case config.StoreMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// ownedFirestore closes the client it was built with.
type ownedFirestore struct {
	*store.FirestoreStore
	close func() error
}

func (s *ownedFirestore) Close() error { return s.close() }

// NewExtractorClient builds the raw vision-model client and a func releasing it.
func NewExtractorClient(ctx context.Context, cfg *config.Config) (extract.Client, func() error, error) {
	switch cfg.ExtractorBackend {
	case config.ExtractorVertex:
		vc, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.VertexModel, cfg.MaxOutputTokens)
		if err != nil {
			return nil, nil, err
		}
		return extract.NewVertexExtractor(vc), vc.Close, nil
	case config.ExtractorOpenAI:
		return extract.NewOpenAIExtractor(extract.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIModel,
			MaxTokens: cfg.MaxOutputTokens,
		}), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown extractor backend %q", cfg.ExtractorBackend)
	}
}

// Close releases clients in reverse creation order.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
