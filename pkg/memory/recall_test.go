package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/engramdb/engram/pkg/errors"
	. "github.com/engramdb/engram/pkg/memory"
	"github.com/engramdb/engram/pkg/stores"
	"github.com/engramdb/engram/pkg/synthesis"
)

// fixedEmbedder returns the same vector for every input, which makes
// similarity ranking a pure function of the stored vectors.
type fixedEmbedder struct {
	vec  []float32
	fail bool
}

func (f *fixedEmbedder) Model() string { return "fixed" }

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.EmbeddingService(nil, "embedder down")
	}
	return f.vec, nil
}

func seedMemory(t *testing.T, backend *stores.InMemoryBackend, id, instance, mtype string, createdAt time.Time, vec []float32) {
	t.Helper()
	err := backend.PutMemory(context.Background(), &Memory{
		ID:         id,
		Content:    "content " + id,
		Type:       mtype,
		InstanceID: instance,
		CreatedAt:  createdAt,
	})
	assert.NoError(t, err)
	if vec != nil {
		assert.NoError(t, backend.SetEmbedding(context.Background(), id, vec, "fixed"))
	}
}

func TestRecallRanksBySimilarity(t *testing.T) {
	backend := stores.NewInMemoryBackend()
	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}})
	base := time.Now().UTC().Add(-time.Hour)

	seedMemory(t, backend, "exact", "agent-1", "fact", base, []float32{1, 0})
	seedMemory(t, backend, "close", "agent-1", "fact", base, []float32{0.7, 0.7})
	seedMemory(t, backend, "orthogonal", "agent-1", "fact", base, []float32{0, 1})

	res, err := idx.Recall(context.Background(), RecallRequest{Query: "anything"})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 2)
	assert.Equal(t, "exact", res.Hits[0].Memory.ID)
	assert.Equal(t, "close", res.Hits[1].Memory.ID)
	assert.InDelta(t, 1.0, res.Hits[0].Score, 1e-9)
	assert.Greater(t, res.Hits[0].Score, res.Hits[1].Score)
}

func TestRecallMinScoreFloor(t *testing.T) {
	backend := stores.NewInMemoryBackend()
	base := time.Now().UTC()

	seedMemory(t, backend, "weak", "agent-1", "fact", base, []float32{0.2, 0.98})

	// The default floor excludes the weak match.
	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}})
	res, err := idx.Recall(context.Background(), RecallRequest{Query: "q"})
	assert.NoError(t, err)
	assert.Empty(t, res.Hits)

	// Lowering the floor lets it through.
	idx = NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}}, WithMinScore(0.1))
	res, err = idx.Recall(context.Background(), RecallRequest{Query: "q"})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 1)
}

func TestRecallTieBreaksByRecency(t *testing.T) {
	backend := stores.NewInMemoryBackend()
	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}})
	base := time.Now().UTC()

	seedMemory(t, backend, "older", "agent-1", "fact", base.Add(-time.Hour), []float32{1, 0})
	seedMemory(t, backend, "newer", "agent-1", "fact", base, []float32{1, 0})

	res, err := idx.Recall(context.Background(), RecallRequest{Query: "q"})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 2)
	assert.Equal(t, "newer", res.Hits[0].Memory.ID)
	assert.Equal(t, "older", res.Hits[1].Memory.ID)
}

func TestRecallSkipsUnembeddedAndStaleModels(t *testing.T) {
	backend := stores.NewInMemoryBackend()
	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}})
	base := time.Now().UTC()

	seedMemory(t, backend, "current", "agent-1", "fact", base, []float32{1, 0})
	seedMemory(t, backend, "unembedded", "agent-1", "fact", base, nil)

	// A vector from a previous model counts as absent.
	seedMemory(t, backend, "stale", "agent-1", "fact", base, nil)
	assert.NoError(t, backend.SetEmbedding(context.Background(), "stale", []float32{1, 0}, "old-model"))

	res, err := idx.Recall(context.Background(), RecallRequest{Query: "q"})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, "current", res.Hits[0].Memory.ID)
}

func TestRecallExcludesArchived(t *testing.T) {
	backend := stores.NewInMemoryBackend()
	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}})
	base := time.Now().UTC()

	seedMemory(t, backend, "live", "agent-1", "fact", base, []float32{1, 0})
	seedMemory(t, backend, "gone", "agent-1", "fact", base, []float32{1, 0})
	assert.NoError(t, backend.ArchiveMemory(context.Background(), "gone", time.Now().UTC()))

	res, err := idx.Recall(context.Background(), RecallRequest{Query: "q"})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, "live", res.Hits[0].Memory.ID)
}

func TestRecallFilters(t *testing.T) {
	backend := stores.NewInMemoryBackend()
	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}})
	base := time.Now().UTC()

	seedMemory(t, backend, "m1", "agent-1", "fact", base, []float32{1, 0})
	seedMemory(t, backend, "m2", "agent-2", "fact", base, []float32{1, 0})
	seedMemory(t, backend, "m3", "agent-1", "decision", base, []float32{1, 0})

	res, err := idx.Recall(context.Background(), RecallRequest{Query: "q", InstanceID: "agent-1"})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 2)

	res, err = idx.Recall(context.Background(), RecallRequest{Query: "q", InstanceID: "agent-1", Type: "decision"})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, "m3", res.Hits[0].Memory.ID)
}

func TestRecallLimit(t *testing.T) {
	backend := stores.NewInMemoryBackend()
	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}}, WithDefaultLimit(2))
	base := time.Now().UTC()

	for _, id := range []string{"a", "b", "c", "d"} {
		seedMemory(t, backend, id, "agent-1", "fact", base, []float32{1, 0})
		base = base.Add(time.Minute)
	}

	res, err := idx.Recall(context.Background(), RecallRequest{Query: "q"})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 2)

	res, err = idx.Recall(context.Background(), RecallRequest{Query: "q", Limit: 3})
	assert.NoError(t, err)
	assert.Len(t, res.Hits, 3)
}

func TestRecallErrors(t *testing.T) {
	backend := stores.NewInMemoryBackend()

	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}})
	_, err := idx.Recall(context.Background(), RecallRequest{})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	// A query that cannot be embedded fails the whole call.
	idx = NewIndex(backend, &fixedEmbedder{fail: true})
	_, err = idx.Recall(context.Background(), RecallRequest{Query: "q"})
	assert.True(t, errors.IsKind(err, errors.KindEmbeddingService))
}

func TestRecallSynthesis(t *testing.T) {
	backend := stores.NewInMemoryBackend()
	summarizer := &synthesis.MockSummarizer{Digest: "the gist"}
	idx := NewIndex(backend, &fixedEmbedder{vec: []float32{1, 0}},
		WithRecallCoordinator(NewCoordinator(summarizer)))
	base := time.Now().UTC()

	seedMemory(t, backend, "m1", "agent-1", "fact", base, []float32{1, 0})
	seedMemory(t, backend, "m2", "agent-1", "fact", base, []float32{0.9, 0.1})

	res, err := idx.Recall(context.Background(), RecallRequest{Query: "q", Synthesize: true})
	assert.NoError(t, err)
	assert.Equal(t, "the gist", res.Summary)
	assert.Empty(t, res.Warning)
	assert.Len(t, summarizer.Calls, 1)

	// Without the flag the coordinator never runs.
	res, err = idx.Recall(context.Background(), RecallRequest{Query: "q"})
	assert.NoError(t, err)
	assert.Empty(t, res.Summary)
	assert.Len(t, summarizer.Calls, 1)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Degenerate inputs rank last instead of erroring.
	assert.Zero(t, Cosine(nil, []float32{1}))
	assert.Zero(t, Cosine([]float32{1, 0}, []float32{1}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{0, 0}))
}
