// Package extract turns page images into markdown text using an external vision model.
package extract

import (
	"context"
	"fmt"
	"strings"
)

// Client is a raw vision-model call for one PNG page image.
type Client interface {
	Extract(ctx context.Context, png []byte) (string, error)
}

// ErrorTextPrefix starts the placeholder content stored for pages whose extraction failed.
const ErrorTextPrefix = "Error extracting text: "

// refusalPhrases mark answers where the model declined instead of transcribing.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// CleanMarkdown trims whitespace and stray code fences around model output.
func CleanMarkdown(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```markdown")
	text = strings.TrimPrefix(text, "```md")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// maxRefusalLen bounds how long a refusal answer can be; longer output is a transcription.
const maxRefusalLen = 200

// checkRefusal returns an error when the whole model output is a short refusal. Pages
// that merely quote a refusal phrase are transcriptions and pass.
func checkRefusal(text string) error {
	lower := strings.ToLower(strings.TrimSpace(text))
	if len(lower) > maxRefusalLen {
		return nil
	}
	for _, phrase := range refusalPhrases {
		if strings.HasPrefix(lower, phrase) {
			return fmt.Errorf("model response indicates refusal: %q", phrase)
		}
	}
	return nil
}
