package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindDocumentNotFound      ErrorKind = "DocumentNotFound"
	KindInvalidDocumentFormat ErrorKind = "InvalidDocumentFormat"
	KindFetchFailed           ErrorKind = "FetchFailed"
	KindUnreadableDocument    ErrorKind = "UnreadableDocument"
	KindEmptyDocument         ErrorKind = "EmptyDocument"
	KindPersistenceFailed     ErrorKind = "PersistenceFailed"
	KindExtractionFailed      ErrorKind = "ExtractionFailed"
)

// PipelineError is a classified failure with a human-readable message and an optional cause.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches any PipelineError of the same kind, so the sentinels below work with errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrDocumentNotFound      = &PipelineError{Kind: KindDocumentNotFound, Message: "document not found"}
	ErrInvalidDocumentFormat = &PipelineError{Kind: KindInvalidDocumentFormat, Message: "invalid document format"}
	ErrFetchFailed           = &PipelineError{Kind: KindFetchFailed, Message: "fetch failed"}
	ErrUnreadableDocument    = &PipelineError{Kind: KindUnreadableDocument, Message: "unreadable document"}
	ErrEmptyDocument         = &PipelineError{Kind: KindEmptyDocument, Message: "empty document"}
	ErrPersistenceFailed     = &PipelineError{Kind: KindPersistenceFailed, Message: "persistence failed"}
	ErrExtractionFailed      = &PipelineError{Kind: KindExtractionFailed, Message: "extraction failed"}
)

func DocumentNotFound(id string) error {
	return &PipelineError{Kind: KindDocumentNotFound, Message: fmt.Sprintf("Document %s not found", id)}
}

func InvalidDocumentFormat(message string, err error) error {
	return &PipelineError{Kind: KindInvalidDocumentFormat, Message: message, Err: err}
}

func FetchFailed(err error) error {
	return &PipelineError{Kind: KindFetchFailed, Message: "Failed to download file", Err: err}
}

func UnreadableDocument(err error) error {
	return &PipelineError{Kind: KindUnreadableDocument, Message: "Failed to open PDF", Err: err}
}

func EmptyDocument(message string) error {
	return &PipelineError{Kind: KindEmptyDocument, Message: message}
}

func PersistenceFailed(message string, err error) error {
	return &PipelineError{Kind: KindPersistenceFailed, Message: message, Err: err}
}

func ExtractionFailed(message string, err error) error {
	return &PipelineError{Kind: KindExtractionFailed, Message: message, Err: err}
}

// KindOf returns the kind of the first PipelineError in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
