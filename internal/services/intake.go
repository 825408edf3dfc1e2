package services

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/pageflow/internal/fetcher"
	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/store"
)

// ObjectOpener opens an uploaded object for reading.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, name string) (io.ReadCloser, error)
}

// Submitter is satisfied by every queue.Dispatcher.
type Submitter interface {
	Submit(ctx context.Context, documentID string) (models.Job, error)
}

// GCSObjects opens objects through a Cloud Storage client.
type GCSObjects struct {
	client *storage.Client
}

func NewGCSObjects(client *storage.Client) *GCSObjects {
	return &GCSObjects{client: client}
}

func (o *GCSObjects) Open(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
	r, err := o.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, name, err)
	}
	return r, nil
}

// Intake registers uploaded PDFs as pending documents and queues them.
// Document ids are derived from the file hash, so uploading the same bytes twice
// yields the same document.
type Intake struct {
	store     store.Store
	objects   ObjectOpener
	submitter Submitter
}

func NewIntake(st store.Store, objects ObjectOpener, submitter Submitter) *Intake {
	return &Intake{store: st, objects: objects, submitter: submitter}
}

// DocumentIDForHash turns a hex sha256 digest into a document id.
func DocumentIDForHash(fileHash string) string {
	return "pdf-" + fileHash[:24]
}

// Register handles one upload and returns the document id it maps to. Objects that
// are not PDFs are ignored and yield an empty id.
func (in *Intake) Register(ctx context.Context, e models.UploadEvent) (string, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("Ignoring non-PDF object.")
		return "", nil
	}

	fileHash, err := in.hashObject(ctx, e)
	if errors.Is(err, models.ErrInvalidDocumentFormat) {
		logCtx.Warn("Ignoring object without a PDF signature.")
		return "", nil
	}
	if err != nil {
		logCtx.Error("Failed to read uploaded object", "error", err)
		return "", err
	}

	documentID := DocumentIDForHash(fileHash)
	logCtx = logCtx.With("documentId", documentID, "fileHash", fileHash)

	storagePath := fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name)
	err = in.store.CreateDocument(ctx, documentID, storagePath)
	switch {
	case errors.Is(err, store.ErrDocumentExists):
		doc, getErr := in.store.GetDocument(ctx, documentID)
		if getErr != nil {
			return "", getErr
		}
		// A pending duplicate means an earlier submit never went through.
		if doc.ProcessingStatus != models.StatusPending {
			logCtx.Info("Duplicate file detected. Skipping.", "status", string(doc.ProcessingStatus))
			return documentID, nil
		}
		logCtx.Info("Duplicate file still pending, resubmitting.")
	case err != nil:
		logCtx.Error("Failed to create document record", "error", err)
		return "", err
	default:
		logCtx.Info("Created document record.")
	}

	job, err := in.submitter.Submit(ctx, documentID)
	if err != nil {
		logCtx.Error("Failed to submit document", "error", err)
		return "", err
	}
	logCtx.Info("Hand-off to queue complete.", "taskId", job.TaskID)
	return documentID, nil
}

func (in *Intake) hashObject(ctx context.Context, e models.UploadEvent) (string, error) {
	rc, err := in.objects.Open(ctx, e.Bucket, e.Name)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	head, _ := br.Peek(4)
	if !fetcher.IsPDF(head) {
		return "", models.ErrInvalidDocumentFormat
	}

	h := sha256.New()
	if _, err := io.Copy(h, br); err != nil {
		return "", fmt.Errorf("failed to hash object: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
