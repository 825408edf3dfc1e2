// Package fetcher resolves stored document references to raw PDF bytes.
package fetcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/Lllllllleong/pageflow/internal/models"
)

// pdfMagic is the signature every PDF file starts with.
var pdfMagic = []byte("%PDF")

// Fetcher retrieves the bytes behind a resolved document locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Locator derives download locators from stored relative paths.
type Locator struct {
	BaseURL string
}

// Resolve joins the base URL and the storage path. Absolute http(s):// and gs://
// paths are returned unchanged.
func (l Locator) Resolve(storagePath string) (string, error) {
	if storagePath == "" {
		return "", fmt.Errorf("document has an empty storage path")
	}
	if isAbsolute(storagePath) {
		return storagePath, nil
	}
	if l.BaseURL == "" {
		return "", fmt.Errorf("no base URL configured to resolve %q", storagePath)
	}
	return strings.TrimRight(l.BaseURL, "/") + "/" + strings.TrimLeft(storagePath, "/"), nil
}

func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "gs://")
}

// IsPDF reports whether b starts with the PDF signature.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(b, pdfMagic)
}

// NormalizePDF returns payload unchanged if it already is a PDF, otherwise it tries a
// base64 decode and re-checks the signature.
func NormalizePDF(payload []byte) ([]byte, error) {
	if bytes.HasPrefix(payload, pdfMagic) {
		return payload, nil
	}

	compact := bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if len(compact) == 0 {
		return nil, models.InvalidDocumentFormat("Downloaded content is empty", nil)
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(compact)))
	n, err := base64.StdEncoding.Decode(decoded, compact)
	if err != nil {
		return nil, models.InvalidDocumentFormat("Content is not a PDF and not valid Base64", err)
	}
	decoded = decoded[:n]

	if !bytes.HasPrefix(decoded, pdfMagic) {
		return nil, models.InvalidDocumentFormat("Decoded content is not a PDF", nil)
	}
	return decoded, nil
}

// Router dispatches gs:// locators to the GCS fetcher and everything else to HTTP.
type Router struct {
	HTTP Fetcher
	GCS  Fetcher
}

func (r *Router) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if strings.HasPrefix(locator, "gs://") {
		if r.GCS == nil {
			return nil, models.FetchFailed(fmt.Errorf("no GCS fetcher configured for %s", locator))
		}
		return r.GCS.Fetch(ctx, locator)
	}
	if r.HTTP == nil {
		return nil, models.FetchFailed(fmt.Errorf("no HTTP fetcher configured for %s", locator))
	}
	return r.HTTP.Fetch(ctx, locator)
}
