package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/engramdb/engram/pkg/embedding"
	"github.com/engramdb/engram/pkg/errors"
)

// Auto-link defaults: only high-confidence similarity creates edges, and a
// very connected topic cannot fan out unboundedly from one remember call.
const (
	DefaultAutoLinkThreshold = 0.75
	DefaultAutoLinkMaxLinks  = 5
)

/*
Store owns the memory record lifecycle: creation, soft delete, direct
lookup, and embedding-freshness bookkeeping. Persistence goes through the
Backend contract so the behavior is identical on the embedded and the
concurrent database.
*/
type Store struct {
	backend       Backend
	embedder      Embedder
	coordinator   *Coordinator
	extraTypes    []string
	maxEmbedChars int

	autoLink          bool
	autoLinkThreshold float64
	autoLinkMaxLinks  int
}

type StoreOption func(*Store)

func NewStore(backend Backend, embedder Embedder, options ...StoreOption) *Store {
	s := &Store{
		backend:       backend,
		embedder:      embedder,
		maxEmbedChars: embedding.DefaultMaxChars,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// WithCoordinator enables optional synthesis on multi-record fetches.
func WithCoordinator(c *Coordinator) StoreOption {
	return func(s *Store) {
		s.coordinator = c
	}
}

// WithExtraMemoryTypes extends the built-in type vocabulary.
func WithExtraMemoryTypes(types []string) StoreOption {
	return func(s *Store) {
		s.extraTypes = types
	}
}

// WithMaxEmbedChars overrides the embedding input budget.
func WithMaxEmbedChars(n int) StoreOption {
	return func(s *Store) {
		s.maxEmbedChars = n
	}
}

// WithAutoLink makes Remember create relates_to edges to existing memories
// whose cosine similarity reaches threshold, at most maxLinks per call.
// Non-positive arguments take the defaults.
func WithAutoLink(threshold float64, maxLinks int) StoreOption {
	return func(s *Store) {
		s.autoLink = true
		s.autoLinkThreshold = threshold
		if threshold <= 0 {
			s.autoLinkThreshold = DefaultAutoLinkThreshold
		}
		s.autoLinkMaxLinks = maxLinks
		if maxLinks <= 0 {
			s.autoLinkMaxLinks = DefaultAutoLinkMaxLinks
		}
	}
}

// RememberRequest carries everything needed to store one memory.
type RememberRequest struct {
	Content    string
	Type       string
	InstanceID string
	Subject    string
	Metadata   map[string]string

	// SupersedesID links the new memory to an older one with a supersedes
	// edge and archives the older one.
	SupersedesID string
}

// AutoLinkedEdge reports one edge Remember created by similarity.
type AutoLinkedEdge struct {
	TargetID     string
	Relationship string
	Score        float64
}

// RememberResult reports the stored id and whether the embedding landed.
type RememberResult struct {
	ID         string
	Embedded   bool
	Superseded string
	Links      []AutoLinkedEdge
	Warning    string
}

/*
Remember validates and stores a new memory. Embedding generation is
deferred-on-failure: when the embedding service is down the record still
persists unembedded and is excluded from similarity recall until a backfill
run picks it up. The external embedding call happens after the row is
committed and holds no storage lock.
*/
func (s *Store) Remember(ctx context.Context, req RememberRequest) (*RememberResult, error) {
	if req.Content == "" {
		return nil, errors.Validation("content must not be empty")
	}
	if !ValidMemoryType(req.Type, s.extraTypes) {
		return nil, errors.Validation("unknown memory type %q (known: %v)", req.Type, MemoryTypes())
	}
	if !ValidInstanceID(req.InstanceID) {
		return nil, errors.Validation("malformed instance id %q", req.InstanceID)
	}

	// Validation precedes mutation: resolve the superseded memory before
	// anything is written.
	if req.SupersedesID != "" {
		if _, err := s.backend.GetMemory(ctx, req.SupersedesID); err != nil {
			return nil, err
		}
	}

	m := &Memory{
		ID:         uuid.NewString(),
		Content:    req.Content,
		Type:       req.Type,
		InstanceID: req.InstanceID,
		Subject:    req.Subject,
		Metadata:   req.Metadata,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.backend.PutMemory(ctx, m); err != nil {
		return nil, err
	}

	result := &RememberResult{ID: m.ID}

	vec, err := s.embed(ctx, m)
	if err != nil {
		log.Warn("embedding deferred", "memory", m.ID, "err", err)
		result.Warning = fmt.Sprintf("embedding deferred: %v", err)
	} else if err := s.backend.SetEmbedding(ctx, m.ID, vec, s.embedder.Model()); err != nil {
		result.Warning = fmt.Sprintf("embedding not stored: %v", err)
	} else {
		result.Embedded = true
	}

	if req.SupersedesID != "" {
		if err := s.supersede(ctx, m, req.SupersedesID); err != nil {
			// The new memory is already durable; report the partial outcome
			// instead of failing the whole call.
			result.Warning = fmt.Sprintf("supersede incomplete: %v", err)
		} else {
			result.Superseded = req.SupersedesID
		}
	}

	// Without an embedding there is nothing to score against; the record
	// picks up links on a later remember, not retroactively.
	if s.autoLink && result.Embedded {
		links, err := s.autoLinkSimilar(ctx, m, vec, req.SupersedesID)
		if err != nil {
			result.Warning = fmt.Sprintf("auto-link incomplete: %v", err)
		}
		result.Links = links
	}

	return result, nil
}

/*
autoLinkSimilar connects the new memory to its nearest active neighbors with
relates_to edges weighted by similarity. The superseded memory is skipped,
the supersedes edge already records that relation. Candidates below the
threshold never link; the strongest matches win when more than maxLinks
qualify.
*/
func (s *Store) autoLinkSimilar(ctx context.Context, m *Memory, vec []float32, excludeID string) ([]AutoLinkedEdge, error) {
	candidates, err := s.backend.ListMemories(ctx, MemoryFilter{})
	if err != nil {
		return nil, err
	}

	model := s.embedder.Model()
	var matches []AutoLinkedEdge
	for _, c := range candidates {
		if c.ID == m.ID || c.ID == excludeID {
			continue
		}
		if !c.EmbeddedWith(model) {
			continue
		}
		score := Cosine(vec, c.Embedding)
		if score < s.autoLinkThreshold {
			continue
		}
		matches = append(matches, AutoLinkedEdge{TargetID: c.ID, Relationship: "relates_to", Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > s.autoLinkMaxLinks {
		matches = matches[:s.autoLinkMaxLinks]
	}

	var linked []AutoLinkedEdge
	for _, match := range matches {
		edge := &Edge{
			ID:            uuid.NewString(),
			SourceID:      m.ID,
			TargetID:      match.TargetID,
			Relationship:  match.Relationship,
			Weight:        match.Score,
			Bidirectional: true,
			Reason:        fmt.Sprintf("auto-linked by similarity %.4f", match.Score),
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.backend.PutEdge(ctx, edge); err != nil {
			return linked, err
		}
		linked = append(linked, match)
	}
	return linked, nil
}

func (s *Store) supersede(ctx context.Context, m *Memory, oldID string) error {
	edge := &Edge{
		ID:           uuid.NewString(),
		SourceID:     m.ID,
		TargetID:     oldID,
		Relationship: "supersedes",
		Weight:       1.0,
		Reason:       "superseded by " + m.ID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.backend.PutEdge(ctx, edge); err != nil {
		return err
	}
	return s.backend.ArchiveMemory(ctx, oldID, time.Now().UTC())
}

func (s *Store) embed(ctx context.Context, m *Memory) ([]float32, error) {
	if s.embedder == nil {
		return nil, errors.EmbeddingService(nil, "no embedder configured")
	}
	return s.embedder.Embed(ctx, embedding.Truncate(m.EmbeddingText(), s.maxEmbedChars))
}

/*
Forget archives a memory. Archiving twice is not an error; archived
memories stay resolvable by id and remain valid edge endpoints, they are
only excluded from recall and traversal.
*/
func (s *Store) Forget(ctx context.Context, id string) error {
	return s.backend.ArchiveMemory(ctx, id, time.Now().UTC())
}

// GetResult is the partial-success response for batch lookups.
type GetResult struct {
	Found   []*Memory
	Missing []string
	Summary string
	Warning string
}

/*
Get fetches memories by id. Unknown ids land in Missing rather than failing
the call. Archived records resolve normally here; direct lookup is the
escape hatch soft delete leaves open. Repeated ids count once. Synthesis
runs only when requested and more than one record was found; summarizing a
single memory is a no-op.
*/
func (s *Store) Get(ctx context.Context, ids []string, synthesize bool) (*GetResult, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	found, err := s.backend.GetMemories(ctx, unique)
	if err != nil {
		return nil, err
	}

	have := make(map[string]struct{}, len(found))
	for _, m := range found {
		have[m.ID] = struct{}{}
	}

	result := &GetResult{Found: found}
	for _, id := range unique {
		if _, ok := have[id]; !ok {
			result.Missing = append(result.Missing, id)
		}
	}

	if synthesize && len(found) > 1 && s.coordinator != nil {
		result.Summary, result.Warning = s.coordinator.Synthesize(ctx, "", found, nil)
	}

	return result, nil
}

// BackfillResult reports one backfill run.
type BackfillResult struct {
	Processed int
	Failed    int
	FailedIDs []string
}

/*
BackfillEmbeddings regenerates vectors for every memory whose embedding is
missing or was produced by a different model than the one currently
configured. Each record commits individually, so the scan is safe to kill
and re-run: a second pass only sees what the first one left behind, and a
fully caught-up store processes zero records.
*/
func (s *Store) BackfillEmbeddings(ctx context.Context) (*BackfillResult, error) {
	if s.embedder == nil {
		return nil, errors.EmbeddingService(nil, "no embedder configured")
	}

	all, err := s.backend.ListMemories(ctx, MemoryFilter{IncludeArchived: true})
	if err != nil {
		return nil, err
	}

	model := s.embedder.Model()
	result := &BackfillResult{}

	for _, m := range all {
		if m.EmbeddedWith(model) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		vec, err := s.embed(ctx, m)
		if err != nil {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, m.ID)
			continue
		}
		if err := s.backend.SetEmbedding(ctx, m.ID, vec, model); err != nil {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, m.ID)
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		log.Info("embedding backfill finished", "processed", result.Processed, "failed", result.Failed)
	}
	return result, nil
}

// Stats is an overview of the stored corpus.
type Stats struct {
	Total      int
	Active     int
	Archived   int
	Embedded   int
	ByType     map[string]int
	ByInstance map[string]int
}

// Stats aggregates counts over the whole store, archived records included.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	all, err := s.backend.ListMemories(ctx, MemoryFilter{IncludeArchived: true})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByType:     make(map[string]int),
		ByInstance: make(map[string]int),
	}
	model := ""
	if s.embedder != nil {
		model = s.embedder.Model()
	}

	for _, m := range all {
		stats.Total++
		if m.Archived() {
			stats.Archived++
			continue
		}
		stats.Active++
		stats.ByType[m.Type]++
		stats.ByInstance[m.InstanceID]++
		if m.EmbeddedWith(model) {
			stats.Embedded++
		}
	}
	return stats, nil
}
