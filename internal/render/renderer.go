// Package render rasterizes PDF pages into PNG images.
package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/pageflow/internal/models"
)

const (
	// PDF user space is 72 DPI; pages are rendered at 2x for OCR legibility.
	baseDPI     = 72.0
	ScaleFactor = 2.0
)

// PageImage is one rasterized page. SourcePage is the zero-based index in the PDF,
// which differs from the position in the output when earlier pages were skipped.
type PageImage struct {
	SourcePage int
	PNG        []byte
}

// pdfDocument is the subset of *fitz.Document the renderer needs.
type pdfDocument interface {
	NumPage() int
	ImagePNG(pageNumber int, dpi float64) ([]byte, error)
	Close() error
}

type openFunc func(data []byte) (pdfDocument, error)

func openFitz(data []byte) (pdfDocument, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Renderer converts PDF bytes into an ordered sequence of page images.
type Renderer struct {
	open  openFunc
	dpi   float64
	count func(data []byte) (int, error)
}

func NewRenderer() *Renderer {
	return &Renderer{
		open:  openFitz,
		dpi:   baseDPI * ScaleFactor,
		count: declaredPageCount,
	}
}

// Render rasterizes every page. Pages that fail are logged and skipped, so the result
// may be shorter than the document. The document handle is closed on every path.
func (r *Renderer) Render(ctx context.Context, data []byte) ([]PageImage, error) {
	doc, err := r.open(data)
	if err != nil {
		return nil, models.UnreadableDocument(err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			slog.Warn("Failed to close PDF document.", "error", cerr)
		}
	}()

	pageCount := doc.NumPage()
	if pageCount <= 0 {
		return nil, models.EmptyDocument("PDF has no pages")
	}
	logCtx := slog.With("pageCount", pageCount)
	if r.count != nil {
		if declared, cerr := r.count(data); cerr != nil {
			logCtx.Warn("pdfcpu could not inspect the document.", "error", cerr)
		} else if declared != pageCount {
			logCtx.Warn("Page count mismatch between renderers.", "declaredPageCount", declared)
		}
	}
	logCtx.Info("Rendering PDF pages.", "dpi", r.dpi)

	images := make([]PageImage, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rendering cancelled at page %d: %w", i+1, err)
		}

		png, err := r.renderPage(doc, i)
		if err != nil {
			logCtx.Error("Failed to render page, skipping.", "page", i+1, "error", err)
			continue
		}
		images = append(images, PageImage{SourcePage: i, PNG: png})
		logCtx.Debug("Rendered page.", "page", i+1, "bytes", len(png))
	}

	if len(images) == 0 {
		return nil, models.EmptyDocument(fmt.Sprintf("none of the %d PDF pages could be rendered", pageCount))
	}
	if skipped := pageCount - len(images); skipped > 0 {
		logCtx.Warn("Some pages were skipped.", "skipped", skipped)
	}
	return images, nil
}

func (r *Renderer) renderPage(doc pdfDocument, page int) (png []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while rendering page %d: %v", page+1, p)
		}
	}()
	return doc.ImagePNG(page, r.dpi)
}

// declaredPageCount asks pdfcpu for the page count recorded in the page tree.
func declaredPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}
