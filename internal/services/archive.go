package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/pageflow/internal/gcp"
)

// GCSArchiver writes each page image and its markdown under <documentId>/pages/ in a bucket.
// Existing objects are left untouched, so re-runs do not overwrite earlier copies.
type GCSArchiver struct {
	bucket *storage.BucketHandle
}

func NewGCSArchiver(client *storage.Client, bucketName string) *GCSArchiver {
	return &GCSArchiver{bucket: client.Bucket(bucketName)}
}

// ArchiveObjectNames returns the image and markdown object names for a page.
func ArchiveObjectNames(documentID string, index int) (image, markdown string) {
	base := fmt.Sprintf("%s/pages/%05d", documentID, index+1)
	return base + ".png", base + ".md"
}

func (a *GCSArchiver) Archive(ctx context.Context, documentID string, index int, png []byte, markdown string) error {
	imageName, markdownName := ArchiveObjectNames(documentID, index)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return gcp.SaveToGCSAtomically(gctx, a.bucket, imageName, "image/png", png)
	})
	eg.Go(func() error {
		return gcp.SaveToGCSAtomically(gctx, a.bucket, markdownName, "text/markdown; charset=utf-8", []byte(markdown))
	})
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to archive page %d: %w", index+1, err)
	}
	return nil
}
