package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/store"
)

// StatusService reports the persisted processing state of documents.
type StatusService struct {
	store store.Store
	newID func() string
}

func NewStatusService(s store.Store) *StatusService {
	return &StatusService{store: s, newID: uuid.NewString}
}

// Query re-reads the document with a single store call. It never returns an error:
// unknown documents report not_found and store failures report error.
func (s *StatusService) Query(ctx context.Context, documentID string) models.StatusResponse {
	resp := models.StatusResponse{
		TaskID:     s.newID(),
		DocumentID: documentID,
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	switch {
	case errors.Is(err, models.ErrDocumentNotFound):
		resp.Status = models.StatusNotFound
		resp.Message = fmt.Sprintf("Document %s not found", documentID)
		return resp
	case err != nil:
		slog.Error("Failed to get document status.", "documentId", documentID, "error", err)
		resp.Status = models.StatusError
		resp.Message = fmt.Sprintf("Failed to get document status: %v", err)
		return resp
	}

	resp.Status = doc.ProcessingStatus
	resp.PageCount = doc.PageCount
	if doc.ProcessingStatus == models.StatusFailed && doc.ErrorMessage != nil && *doc.ErrorMessage != "" {
		resp.Message = *doc.ErrorMessage
	} else {
		resp.Message = fmt.Sprintf("Document processing status: %s", doc.ProcessingStatus)
	}
	return resp
}
