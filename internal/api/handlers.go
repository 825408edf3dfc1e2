package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/pageflow/internal/models"
	"github.com/Lllllllleong/pageflow/internal/queue"
	"github.com/Lllllllleong/pageflow/internal/services"
)

var documentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// StatusQuerier is satisfied by *services.StatusService.
type StatusQuerier interface {
	Query(ctx context.Context, documentID string) models.StatusResponse
}

// PageLister is satisfied by every store.Store.
type PageLister interface {
	ListPageContents(ctx context.Context, documentID string) ([]*models.PageContent, error)
}

// Handler serves the document endpoints.
type Handler struct {
	dispatcher queue.Dispatcher
	status     StatusQuerier
	pages      PageLister
}

func NewHandler(dispatcher queue.Dispatcher, status StatusQuerier, pages PageLister) *Handler {
	return &Handler{dispatcher: dispatcher, status: status, pages: pages}
}

// Submit enqueues a processing job and answers 202 right away.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.dispatcher.Submit(r.Context(), documentID)
	switch {
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, "queue_unavailable", err.Error())
		return
	case err != nil:
		slog.Error("Failed to submit document.", "documentId", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "submit_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, models.SubmitResponse{
		TaskID:     job.TaskID,
		DocumentID: documentID,
		Status:     models.StatusProcessing,
		Message:    "Document processing started",
	})
}

// Status reports the persisted state; unknown documents still answer 200 with not_found.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.status.Query(r.Context(), documentID))
}

// Pages returns the stored page contents of a document, or the joined markdown
// when called with ?format=markdown.
func (h *Handler) Pages(w http.ResponseWriter, r *http.Request) {
	documentID, ok := documentIDParam(w, r)
	if !ok {
		return
	}
	pages, err := h.pages.ListPageContents(r.Context(), documentID)
	if err != nil {
		slog.Error("Failed to list pages.", "documentId", documentID, "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, services.JoinPages(pages))
		return
	}
	if pages == nil {
		pages = []*models.PageContent{}
	}
	writeJSON(w, http.StatusOK, pages)
}

func documentIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "documentID")
	if !documentIDPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "invalid_document_id", "document id must be 1-128 characters of letters, digits, '.', '_', ':' or '-'")
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: code, Message: message})
}
