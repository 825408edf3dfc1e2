package gcp

import (
	"context"
	"fmt"
	"math"

	"cloud.google.com/go/vertexai/genai"
)

// --- Page OCR Model Prompts ---
const OCRSystemPrompt = `You are a helpful assistant that can extract text from images.
Make good formatting with shared image.
Markdown-format with additional formatting rules.
Send only the text in markdown format without '` + "```" + `' or '` + "```markdown" + `'.`

const OCRUserPrompt = "Please extract and format all the text from this image:"

// VertexClient holds the pre-configured generative model used for page extraction.
type VertexClient struct {
	OCRModel   *genai.GenerativeModel
	baseClient *genai.Client
}

// NewVertexClient creates a new client holding the OCR model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string, maxOutputTokens int) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(OCRSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	if maxOutputTokens > 0 {
		ocrModel.GenerationConfig.MaxOutputTokens = genai.Ptr(outputTokenLimit(maxOutputTokens))
	}

	return &VertexClient{
		OCRModel:   ocrModel,
		baseClient: baseClient,
	}, nil
}

// outputTokenLimit clamps n into the int32 range the API accepts.
func outputTokenLimit(n int) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
