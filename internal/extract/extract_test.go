package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	mu      sync.Mutex
	results []error
	text    string
	calls   int
}

func (c *scriptedClient) Extract(ctx context.Context, _ []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.results) && c.results[i] != nil {
		return "", c.results[i]
	}
	return c.text, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestCleanMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"# Title", "# Title"},
		{"  # Title\n", "# Title"},
		{"```markdown\n# Title\n```", "# Title"},
		{"```\nplain\n```", "plain"},
		{"```md\n- a\n- b\n```\n", "- a\n- b"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanMarkdown(tt.in), "input %q", tt.in)
	}
}

func TestCheckRefusal(t *testing.T) {
	assert.NoError(t, checkRefusal("# Chapter 1\nIt was a dark night."))
	assert.Error(t, checkRefusal("I am unable to read this image."))
	assert.Error(t, checkRefusal("As a large language model, I cannot help."))
	assert.Error(t, checkRefusal("  i cannot provide a transcription of this image."))

	// Transcribed pages that quote a phrase are content, not refusals.
	assert.NoError(t, checkRefusal(`Mr. Smith wrote: "I am unable to attend the meeting on Friday."`))
	long := "I am unable to attend. " + strings.Repeat("The minutes continue here. ", 20)
	assert.NoError(t, checkRefusal(long))
}

func TestVertexExtractor_QuotedRefusalIsContent(t *testing.T) {
	page := `Mr. Smith wrote: "I am unable to attend the meeting on Friday."`
	s := NewSoftExtractor(&VertexExtractor{model: &fakeGenerator{resp: textResponse(page)}})
	s.sleep = noSleep

	out := s.Extract(context.Background(), []byte("img"))
	assert.False(t, out.Failed)
	assert.Equal(t, page, out.Text)
}

func TestSoftExtractor_Success(t *testing.T) {
	client := &scriptedClient{text: "# Page"}
	s := NewSoftExtractor(client)
	s.sleep = noSleep

	out := s.Extract(context.Background(), []byte("png"))
	assert.False(t, out.Failed)
	assert.Equal(t, "# Page", out.Text)
	assert.NoError(t, out.Cause)
	assert.Equal(t, 1, client.calls)
}

func TestSoftExtractor_RetriesThenSucceeds(t *testing.T) {
	client := &scriptedClient{
		results: []error{errors.New("rate limited"), errors.New("rate limited")},
		text:    "recovered",
	}
	s := NewSoftExtractor(client, WithRetries(3), WithBackoff(time.Millisecond))
	s.sleep = noSleep

	out := s.Extract(context.Background(), nil)
	assert.False(t, out.Failed)
	assert.Equal(t, "recovered", out.Text)
	assert.Equal(t, 3, client.calls)
}

func TestSoftExtractor_ExhaustedReturnsPlaceholder(t *testing.T) {
	boom := errors.New("quota exceeded")
	client := &scriptedClient{results: []error{boom, boom, boom}}
	s := NewSoftExtractor(client, WithRetries(2))
	s.sleep = noSleep

	out := s.Extract(context.Background(), nil)
	require.True(t, out.Failed)
	assert.Equal(t, "Error extracting text: quota exceeded", out.Text)
	assert.ErrorIs(t, out.Cause, boom)
	assert.Equal(t, 3, client.calls)
}

func TestSoftExtractor_NoRetries(t *testing.T) {
	client := &scriptedClient{results: []error{errors.New("bad image")}}
	s := NewSoftExtractor(client, WithRetries(0))
	s.sleep = noSleep

	out := s.Extract(context.Background(), nil)
	assert.True(t, out.Failed)
	assert.True(t, strings.HasPrefix(out.Text, ErrorTextPrefix))
	assert.Equal(t, 1, client.calls)
}

func TestSoftExtractor_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{results: []error{context.Canceled, context.Canceled}}
	s := NewSoftExtractor(client, WithRetries(5))

	out := s.Extract(ctx, nil)
	assert.True(t, out.Failed)
	assert.Equal(t, 1, client.calls)
}

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (g *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	g.parts = parts
	return g.resp, g.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestVertexExtractor(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("```markdown\n# Heading\n", "Body text\n```")}
	e := &VertexExtractor{model: gen}

	text, err := e.Extract(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "# Heading\nBody text", text)

	require.Len(t, gen.parts, 2)
	blob, ok := gen.parts[0].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
	assert.Equal(t, []byte("img"), blob.Data)
}

func TestVertexExtractor_Errors(t *testing.T) {
	e := &VertexExtractor{model: &fakeGenerator{err: errors.New("unavailable")}}
	_, err := e.Extract(context.Background(), nil)
	assert.ErrorContains(t, err, "unavailable")

	e = &VertexExtractor{model: &fakeGenerator{resp: textResponse("I cannot provide a transcription.")}}
	_, err = e.Extract(context.Background(), nil)
	assert.ErrorContains(t, err, "refusal")

	e = &VertexExtractor{model: &fakeGenerator{resp: &genai.GenerateContentResponse{}}}
	text, err := e.Extract(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, text)
}

func TestOpenAIExtractor(t *testing.T) {
	var got chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```markdown\\n# Page One\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIExtractor(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	text, err := e.Extract(context.Background(), []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "# Page One", text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 1500, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)

	parts, ok := got.Messages[1].Content.([]any)
	require.True(t, ok)
	require.Len(t, parts, 2)
	image := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(image["url"].(string), "data:image/png;base64,"))
}

func TestOpenAIExtractor_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"http error", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, "status 429"},
		{"api error", http.StatusOK, `{"error":{"message":"invalid image"}}`, "invalid image"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"bad json", http.StatusOK, `not json`, "decode"},
		{"refusal", http.StatusOK, `{"choices":[{"message":{"content":"I am unable to help with that."}}]}`, "refusal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := NewOpenAIExtractor(OpenAIConfig{BaseURL: srv.URL})
			_, err := e.Extract(context.Background(), []byte("png"))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
