// Package synthesis provides clients for the external summarization model.
// Everything here is best-effort: callers degrade to raw records when a
// summarizer fails or times out.
package synthesis

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/engramdb/engram/pkg/errors"
)

// OllamaSummarizer condenses memory batches through a local Ollama model.
type OllamaSummarizer struct {
	client *api.Client
	model  string
}

type OllamaSummarizerOption func(*OllamaSummarizer)

func NewOllamaSummarizer(options ...OllamaSummarizerOption) *OllamaSummarizer {
	summarizer := &OllamaSummarizer{
		model: "qwen3:4b",
	}

	for _, option := range options {
		option(summarizer)
	}

	if summarizer.client == nil {
		client, err := api.ClientFromEnvironment()
		if err == nil {
			summarizer.client = client
		}
	}

	return summarizer
}

func WithOllamaHost(host string) OllamaSummarizerOption {
	return func(s *OllamaSummarizer) {
		base, err := url.Parse(host)
		if err != nil {
			return
		}
		s.client = api.NewClient(base, &http.Client{Timeout: 5 * time.Minute})
	}
}

func WithOllamaModel(model string) OllamaSummarizerOption {
	return func(s *OllamaSummarizer) {
		s.model = model
	}
}

func (s *OllamaSummarizer) Summarize(ctx context.Context, system, prompt string) (string, error) {
	if s.client == nil {
		return "", errors.SynthesisService(nil, "ollama client not configured")
	}

	stream := false
	var out strings.Builder

	err := s.client.Generate(ctx, &api.GenerateRequest{
		Model:  s.model,
		Prompt: prompt,
		System: system,
		Stream: &stream,
	}, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", errors.SynthesisService(err, "generate with %s", s.model)
	}

	return strings.TrimSpace(out.String()), nil
}
