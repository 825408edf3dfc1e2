package models

import "time"

// These structs define the JSON payloads exchanged with clients, the workflow
// and the worker functions.

// ProcessRequest is the input for the document-processor function.
type ProcessRequest struct {
	DocumentID string `json:"documentId"`
	TaskID     string `json:"taskId"`
}

// SubmitEvent is the Pub/Sub message body consumed by the submit-listener function.
type SubmitEvent struct {
	DocumentID string `json:"documentId"`
}

// JobResult is what one processor run returns. It is always populated, even on failure.
type JobResult struct {
	DocumentID string           `json:"document_id"`
	TaskID     string           `json:"task_id,omitempty"`
	Status     ProcessingStatus `json:"status"`
	Message    string           `json:"message"`
	PageCount  *int             `json:"page_count,omitempty"`
}

// SubmitResponse is returned when a document has been accepted for processing.
type SubmitResponse struct {
	TaskID     string           `json:"task_id"`
	DocumentID string           `json:"document_id"`
	Status     ProcessingStatus `json:"status"`
	Message    string           `json:"message"`
}

// StatusResponse reports the persisted state of a document.
type StatusResponse struct {
	TaskID     string           `json:"task_id"`
	DocumentID string           `json:"document_id"`
	Status     ProcessingStatus `json:"status"`
	Message    string           `json:"message"`
	PageCount  *int             `json:"page_count,omitempty"`
}

// ErrorResponse is the payload written for failed API calls.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Job is one queued request to process a document.
type Job struct {
	TaskID      string    `json:"task_id"`
	DocumentID  string    `json:"document_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// UploadEvent is the data of a Cloud Storage object-finalized CloudEvent.
type UploadEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// AggregateRequest asks the markdown-aggregator function to rebuild master.md.
type AggregateRequest struct {
	DocumentID string `json:"documentId"`
}

// AggregateResponse carries the location of the assembled markdown.
type AggregateResponse struct {
	Status       string `json:"status"`
	MasterGCSUri string `json:"masterGcsUri"`
}
