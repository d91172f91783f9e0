package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/engramdb/engram/pkg/errors"
)

// MockEmbedder generates deterministic embeddings for tests. Identical
// texts map to identical unit vectors; different texts almost always
// diverge, so similarity ordering is stable without a model server.
type MockEmbedder struct {
	// Fail forces every call to return an EmbeddingServiceError.
	Fail bool

	// Dimension of the generated vectors. Defaults to 8.
	Dimension int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dimension: 8}
}

func (m *MockEmbedder) Model() string {
	return "mock-embedder"
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Fail {
		return nil, errors.EmbeddingService(nil, "mock embedder configured to fail")
	}

	dim := m.Dimension
	if dim <= 0 {
		dim = 8
	}

	vec := make([]float32, dim)
	var norm float64
	for i := 0; i < dim; i++ {
		h := fnv.New32a()
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		v := float64(h.Sum32()%1000)/500.0 - 1.0
		vec[i] = float32(v)
		norm += v * v
	}

	// Normalize so cosine similarity behaves like the real thing.
	if norm > 0 {
		scale := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
