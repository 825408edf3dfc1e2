package fetcher

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/pageflow/internal/gcp"
	"github.com/Lllllllleong/pageflow/internal/models"
)

// GCSFetcher reads documents stored as gs://bucket/object.
type GCSFetcher struct {
	client *storage.Client
}

func NewGCSFetcher(client *storage.Client) *GCSFetcher {
	return &GCSFetcher{client: client}
}

func (f *GCSFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := gcp.ParseGCSURI(uri)
	if err != nil {
		return nil, models.FetchFailed(err)
	}
	payload, err := gcp.ReadGCSObject(ctx, f.client, bucket, object)
	if err != nil {
		return nil, models.FetchFailed(err)
	}
	return NormalizePDF(payload)
}
