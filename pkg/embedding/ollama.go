package embedding

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/engramdb/engram/pkg/errors"
)

/*
OllamaEmbedder generates embeddings through a local Ollama server. Cold
model loads make the first call slow and occasionally flaky, so every
request retries with backoff before the failure is surfaced.
*/
type OllamaEmbedder struct {
	client *api.Client
	model  string
	retry  *errors.RetryConfig
}

type OllamaEmbedderOption func(*OllamaEmbedder)

func NewOllamaEmbedder(options ...OllamaEmbedderOption) *OllamaEmbedder {
	embedder := &OllamaEmbedder{
		model: "nomic-embed-text",
		retry: &errors.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  2 * time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
		},
	}

	for _, option := range options {
		option(embedder)
	}

	if embedder.client == nil {
		client, err := api.ClientFromEnvironment()
		if err == nil {
			embedder.client = client
		}
	}

	return embedder
}

func WithOllamaHost(host string) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		base, err := url.Parse(host)
		if err != nil {
			return
		}
		e.client = api.NewClient(base, &http.Client{Timeout: 120 * time.Second})
	}
}

func WithOllamaModel(model string) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.model = model
	}
}

func WithOllamaRetry(retry *errors.RetryConfig) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.retry = retry
	}
}

func (e *OllamaEmbedder) Model() string {
	return e.model
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.client == nil {
		return nil, errors.EmbeddingService(nil, "ollama client not configured")
	}

	var vec []float32
	err := errors.RetryWithBackoff(ctx, e.retry, func() error {
		resp, err := e.client.Embed(ctx, &api.EmbedRequest{
			Model: e.model,
			Input: text,
		})
		if err != nil {
			return err
		}
		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
			return errors.EmbeddingService(nil, "ollama returned no embedding")
		}
		vec = resp.Embeddings[0]
		return nil
	})
	if err != nil {
		return nil, errors.EmbeddingService(err, "embed with %s", e.model)
	}

	return vec, nil
}
