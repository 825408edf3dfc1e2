package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// HTTPFetcher downloads documents from public object-storage URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A zero timeout leaves the request bounded only by ctx.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	logCtx := slog.With("url", url)
	logCtx.Info("Downloading document.")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, models.FetchFailed(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, models.FetchFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.FetchFailed(fmt.Errorf("unexpected status code %d for url %s", resp.StatusCode, url))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.FetchFailed(fmt.Errorf("failed to read response body: %w", err))
	}

	pdf, err := NormalizePDF(payload)
	if err != nil {
		logCtx.Warn("Downloaded content is not a PDF.", "bytes", len(payload), "error", err)
		return nil, err
	}
	logCtx.Info("Downloaded document.", "bytes", len(pdf), "base64Wrapped", len(pdf) != len(payload))
	return pdf, nil
}
