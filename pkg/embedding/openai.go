package embedding

import (
	"context"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/engramdb/engram/pkg/errors"
)

// OpenAIEmbedder generates embeddings through the OpenAI API, for
// deployments without a local model server.
type OpenAIEmbedder struct {
	api   openai.Client
	model string
}

type OpenAIEmbedderOption func(*OpenAIEmbedder)

func NewOpenAIEmbedder(options ...OpenAIEmbedderOption) *OpenAIEmbedder {
	embedder := &OpenAIEmbedder{
		api:   openai.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY"))),
		model: "text-embedding-3-small",
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func WithOpenAIModel(model string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.model = model
	}
}

func WithOpenAIClient(client *openai.Client) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.api = *client
	}
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, errors.EmbeddingService(err, "embed with %s", e.model)
	}
	if len(resp.Data) == 0 {
		return nil, errors.EmbeddingService(nil, "openai returned no embedding")
	}

	return convertToFloat32(resp.Data[0].Embedding), nil
}

func convertToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
