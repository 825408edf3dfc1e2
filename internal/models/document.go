package models

import "time"

// ProcessingStatus is the coarse lifecycle marker stored on a Document.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"

	// Only ever reported by status queries, never persisted.
	StatusNotFound ProcessingStatus = "not_found"
	StatusError    ProcessingStatus = "error"
)

// ContentType is the format of a PageContent body.
type ContentType string

const (
	ContentMarkdown ContentType = "markdown"
	ContentHTML     ContentType = "html"
)

// Collection / table names shared by all store backends.
const (
	DocumentsTable    = "documents"
	PageContentsTable = "page_contents"
)

// Document is the record tracking one uploaded PDF and its processing state.
// It is created elsewhere in the pending state and only mutated by the processor.
type Document struct {
	ID               string           `firestore:"-" json:"id"`
	StoragePath      string           `firestore:"storage_path" json:"storage_path"`
	ProcessingStatus ProcessingStatus `firestore:"processing_status" json:"processing_status"`
	PageCount        *int             `firestore:"page_count" json:"page_count,omitempty"`
	ErrorMessage     *string          `firestore:"error_message" json:"error_message,omitempty"`
}

// PageContent is the extracted text of a single rendered page.
type PageContent struct {
	ID           string      `firestore:"id" json:"id"`
	DocumentID   string      `firestore:"document_id" json:"document_id"`
	ContentType  ContentType `firestore:"content_type" json:"content_type"`
	Content      string      `firestore:"content" json:"content"`
	ChapterIndex int         `firestore:"chapter_index" json:"chapter_index"`
	ChapterTitle string      `firestore:"chapter_title" json:"chapter_title"`
	CreatedAt    time.Time   `firestore:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `firestore:"updated_at" json:"updated_at"`
}

// DocumentUpdate is a partial update; nil fields are left untouched.
// ClearResults nulls page_count and error_message left over from an earlier run;
// PageCount and ErrorMessage, when also set, win over it.
type DocumentUpdate struct {
	ProcessingStatus *ProcessingStatus
	PageCount        *int
	ErrorMessage     *string
	ClearResults     bool
}

// IsEmpty reports whether the update would not change anything.
func (u DocumentUpdate) IsEmpty() bool {
	return u.ProcessingStatus == nil && u.PageCount == nil && u.ErrorMessage == nil && !u.ClearResults
}

// StartRunUpdate moves a document to processing and drops the previous run's results.
func StartRunUpdate() DocumentUpdate {
	status := StatusProcessing
	return DocumentUpdate{ProcessingStatus: &status, ClearResults: true}
}

// StatusUpdate builds an update that only moves the processing status.
func StatusUpdate(status ProcessingStatus) DocumentUpdate {
	return DocumentUpdate{ProcessingStatus: &status}
}

// FailedUpdate marks a document failed with a human-readable reason.
func FailedUpdate(message string) DocumentUpdate {
	status := StatusFailed
	return DocumentUpdate{ProcessingStatus: &status, ErrorMessage: &message}
}

// PageCountUpdate records how many pages were rendered.
func PageCountUpdate(n int) DocumentUpdate {
	return DocumentUpdate{PageCount: &n}
}
