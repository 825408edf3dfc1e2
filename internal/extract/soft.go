package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Outcome is the result of a soft extraction. Text is always safe to store: on
// failure it holds the ErrorTextPrefix placeholder and Cause explains why.
type Outcome struct {
	Text   string
	Failed bool
	Cause  error
}

// SoftExtractor retries a Client and turns the final failure into placeholder text,
// so one bad page never raises past this point.
type SoftExtractor struct {
	client     Client
	maxRetries int
	backoff    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

type SoftOption func(*SoftExtractor)

func WithRetries(n int) SoftOption {
	return func(s *SoftExtractor) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func WithBackoff(d time.Duration) SoftOption {
	return func(s *SoftExtractor) {
		if d > 0 {
			s.backoff = d
		}
	}
}

func NewSoftExtractor(client Client, opts ...SoftOption) *SoftExtractor {
	s := &SoftExtractor{
		client:     client,
		maxRetries: 3,
		backoff:    time.Second,
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Extract never returns an error; check Outcome.Failed instead.
func (s *SoftExtractor) Extract(ctx context.Context, png []byte) Outcome {
	backoff := s.backoff
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		text, err := s.client.Extract(ctx, png)
		if err == nil {
			return Outcome{Text: text}
		}
		lastErr = err

		if attempt == s.maxRetries || ctx.Err() != nil {
			break
		}
		slog.Warn(
			"Extraction failed, will retry.",
			"attempt", attempt+1,
			"maxRetries", s.maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		if err := s.sleep(ctx, backoff); err != nil {
			lastErr = fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
			break
		}
		backoff *= 2
	}

	slog.Error("Extraction failed after all retries.", "error", lastErr)
	return Outcome{
		Text:   ErrorTextPrefix + lastErr.Error(),
		Failed: true,
		Cause:  lastErr,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
