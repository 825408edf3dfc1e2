package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/pageflow/internal/gcp"
)

// generator is satisfied by *genai.GenerativeModel.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexExtractor sends page images inline to a Gemini model on Vertex AI.
type VertexExtractor struct {
	model generator
}

// NewVertexExtractor uses the OCR model configured on client.
func NewVertexExtractor(client *gcp.VertexClient) *VertexExtractor {
	return &VertexExtractor{model: client.OCRModel}
}

func (e *VertexExtractor) Extract(ctx context.Context, png []byte) (string, error) {
	resp, err := e.model.GenerateContent(ctx, genai.ImageData("png", png), genai.Text(gcp.OCRUserPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := responseText(resp)
	if err := checkRefusal(text); err != nil {
		return "", err
	}
	if text == "" {
		slog.Warn("No text extracted from gemini response. Treating as empty page.")
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var b strings.Builder
	var textParts int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			textParts++
		}
	}
	if textParts > 1 {
		slog.Warn("Gemini response contained several text parts; they have been concatenated.", "parts", textParts)
	}
	return CleanMarkdown(b.String())
}
