package memory

import (
	"context"
	"time"
)

// MemoryFilter narrows ListMemories. Zero value means every active memory.
type MemoryFilter struct {
	InstanceID      string
	Type            string
	IncludeArchived bool
}

/*
Backend is the uniform storage contract over memories, edges, and handoff
messages. Two implementations satisfy it identically: an embedded
single-writer database and a concurrent multi-writer database. Callers get
read-committed, single-row-atomic writes and nothing stronger; operations
that touch several rows are not atomic as a group.
*/
type Backend interface {
	PutMemory(ctx context.Context, m *Memory) error
	GetMemory(ctx context.Context, id string) (*Memory, error)
	// GetMemories returns the records it finds; absent ids are simply not in
	// the result. Callers build their own missing list.
	GetMemories(ctx context.Context, ids []string) ([]*Memory, error)
	ListMemories(ctx context.Context, filter MemoryFilter) ([]*Memory, error)
	// ArchiveMemory sets the soft-delete marker. Archiving an archived
	// memory is a no-op, never an error.
	ArchiveMemory(ctx context.Context, id string, at time.Time) error
	SetEmbedding(ctx context.Context, id string, vec []float32, model string) error

	PutEdge(ctx context.Context, e *Edge) error
	// DeleteEdges removes every edge between source and target, filtered by
	// relationship when it is non-empty. Returns the number removed.
	DeleteEdges(ctx context.Context, source, target, relationship string) (int, error)
	// EdgesFrom returns edges whose source is id.
	EdgesFrom(ctx context.Context, id string) ([]*Edge, error)
	// EdgesTouching returns edges where id is either endpoint.
	EdgesTouching(ctx context.Context, id string) ([]*Edge, error)

	PutMessage(ctx context.Context, msg *HandoffMessage) error
	// ListMessages returns messages addressed to the instance (or broadcast),
	// oldest first.
	ListMessages(ctx context.Context, instance string, includeRead bool) ([]*HandoffMessage, error)
	// MarkMessageRead transitions read_at once; marking again is a no-op.
	MarkMessageRead(ctx context.Context, id, readBy string, at time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// Embedder represents a service capable of generating embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Summarizer condenses a prepared prompt into a natural-language digest.
// Implementations are best-effort; callers degrade on failure.
type Summarizer interface {
	Summarize(ctx context.Context, system, prompt string) (string, error)
}
