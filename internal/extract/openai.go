package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/pageflow/internal/gcp"
)

// OpenAIConfig configures the chat/completions vision client.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // default https://api.openai.com/v1
	Model     string // default gpt-4o-mini
	MaxTokens int
	Timeout   time.Duration
}

// OpenAIExtractor calls an OpenAI-compatible chat/completions endpoint with an inline image.
type OpenAIExtractor struct {
	cfg  OpenAIConfig
	http *http.Client
}

func NewOpenAIExtractor(cfg OpenAIConfig) *OpenAIExtractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	return &OpenAIExtractor{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *OpenAIExtractor) buildRequest(png []byte) chatRequest {
	imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return chatRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: gcp.OCRSystemPrompt},
			{Role: "user", Content: []chatContentPart{
				{Type: "text", Text: gcp.OCRUserPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: imageURL}},
			}},
		},
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, png []byte) (string, error) {
	body, err := json.Marshal(e.buildRequest(png))
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if cc.Error != nil {
		return "", fmt.Errorf("openai error: %s", cc.Error.Message)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}

	text := CleanMarkdown(cc.Choices[0].Message.Content)
	if err := checkRefusal(text); err != nil {
		return "", err
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
