package memory

import (
	"context"
	"math"
	"sort"

	"github.com/engramdb/engram/pkg/embedding"
	"github.com/engramdb/engram/pkg/errors"
)

// DefaultRecallLimit caps result sets when the caller does not say.
const DefaultRecallLimit = 20

// DefaultMinScore is the relevance floor below which a candidate is never
// returned. Deployment-tunable; this is only the fallback.
const DefaultMinScore = 0.3

/*
Index ranks active memories against a query vector. It consults the same
Backend as the Store but never writes; recall runs alongside concurrent
mutations on backends that support it.
*/
type Index struct {
	backend       Backend
	embedder      Embedder
	coordinator   *Coordinator
	minScore      float64
	defaultLimit  int
	maxEmbedChars int
}

type IndexOption func(*Index)

func NewIndex(backend Backend, embedder Embedder, options ...IndexOption) *Index {
	idx := &Index{
		backend:       backend,
		embedder:      embedder,
		minScore:      DefaultMinScore,
		defaultLimit:  DefaultRecallLimit,
		maxEmbedChars: embedding.DefaultMaxChars,
	}

	for _, option := range options {
		option(idx)
	}

	return idx
}

// WithMinScore overrides the relevance floor.
func WithMinScore(score float64) IndexOption {
	return func(idx *Index) {
		idx.minScore = score
	}
}

// WithDefaultLimit overrides the fallback result cap.
func WithDefaultLimit(n int) IndexOption {
	return func(idx *Index) {
		idx.defaultLimit = n
	}
}

// WithRecallCoordinator enables optional synthesis over recall results.
func WithRecallCoordinator(c *Coordinator) IndexOption {
	return func(idx *Index) {
		idx.coordinator = c
	}
}

// WithIndexMaxEmbedChars overrides the query truncation budget.
func WithIndexMaxEmbedChars(n int) IndexOption {
	return func(idx *Index) {
		idx.maxEmbedChars = n
	}
}

// RecallRequest describes one similarity search.
type RecallRequest struct {
	Query      string
	Limit      int
	InstanceID string
	Type       string
	Synthesize bool
}

// RecallHit pairs a memory with its similarity score.
type RecallHit struct {
	Memory *Memory
	Score  float64
}

// RecallResult carries the ranked hits and the optional digest.
type RecallResult struct {
	Hits    []RecallHit
	Summary string
	Warning string
}

/*
Recall embeds the query and ranks every active, currently-embedded memory
by cosine similarity. There is no best-effort mode: without a query vector
there is no search, so an embedding service failure fails the whole call.
Candidates whose stored vector came from a different model are skipped, not
errored; they rejoin the corpus after a backfill. Ties break by recency,
newer first.
*/
func (idx *Index) Recall(ctx context.Context, req RecallRequest) (*RecallResult, error) {
	if req.Query == "" {
		return nil, errors.Validation("query must not be empty")
	}
	if idx.embedder == nil {
		return nil, errors.EmbeddingService(nil, "no embedder configured")
	}

	queryVec, err := idx.embedder.Embed(ctx, embedding.Truncate(req.Query, idx.maxEmbedChars))
	if err != nil {
		if errors.KindOf(err) != "" {
			return nil, err
		}
		return nil, errors.EmbeddingService(err, "embed recall query")
	}

	candidates, err := idx.backend.ListMemories(ctx, MemoryFilter{
		InstanceID: req.InstanceID,
		Type:       req.Type,
	})
	if err != nil {
		return nil, err
	}

	model := idx.embedder.Model()
	hits := make([]RecallHit, 0, len(candidates))
	for _, m := range candidates {
		if !m.EmbeddedWith(model) {
			continue
		}
		score := Cosine(queryVec, m.Embedding)
		if score < idx.minScore {
			continue
		}
		hits = append(hits, RecallHit{Memory: m, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Memory.CreatedAt.After(hits[j].Memory.CreatedAt)
	})

	limit := req.Limit
	if limit <= 0 {
		limit = idx.defaultLimit
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	result := &RecallResult{Hits: hits}

	if req.Synthesize && len(hits) > 0 && idx.coordinator != nil {
		records := make([]*Memory, len(hits))
		scores := make(map[string]float64, len(hits))
		for i, h := range hits {
			records[i] = h.Memory
			scores[h.Memory.ID] = h.Score
		}
		result.Summary, result.Warning = idx.coordinator.Synthesize(ctx, req.Query, records, scores)
	}

	return result, nil
}

// Cosine computes cosine similarity between two vectors. Mismatched or
// empty vectors score zero rather than erroring; a bad candidate should
// rank last, not break the search.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
