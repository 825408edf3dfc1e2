package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPageWidth  = 200
	testPageHeight = 100
)

// buildPDF writes a minimal PDF with the given number of blank pages and a valid xref table.
func buildPDF(t *testing.T, pages int) []byte {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	var kids bytes.Buffer
	for i := 0; i < pages; i++ {
		fmt.Fprintf(&kids, "%d 0 R ", i+3)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), pages))
	for i := 0; i < pages; i++ {
		objects = append(objects, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> >>",
			testPageWidth, testPageHeight))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestRender_RealPDF(t *testing.T) {
	data := buildPDF(t, 3)

	declared, err := declaredPageCount(data)
	require.NoError(t, err)
	assert.Equal(t, 3, declared)

	images, err := NewRenderer().Render(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, images, 3)

	for i, img := range images {
		assert.Equal(t, i, img.SourcePage)
		decoded, err := png.Decode(bytes.NewReader(img.PNG))
		require.NoError(t, err, "page %d", i+1)
		bounds := decoded.Bounds()
		assert.Equal(t, testPageWidth*ScaleFactor, float64(bounds.Dx()), "page %d width", i+1)
		assert.Equal(t, testPageHeight*ScaleFactor, float64(bounds.Dy()), "page %d height", i+1)
	}
}

func TestRender_RealPDFGarbage(t *testing.T) {
	_, err := NewRenderer().Render(context.Background(), []byte("%PDF-1.4\nnot really a pdf"))
	assert.Error(t, err)
}
