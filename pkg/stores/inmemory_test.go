package stores

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/engramdb/engram/pkg/errors"
	"github.com/engramdb/engram/pkg/memory"
)

func putTestMemory(t *testing.T, b *InMemoryBackend, id string, createdAt time.Time) {
	t.Helper()
	err := b.PutMemory(context.Background(), &memory.Memory{
		ID:         id,
		Content:    "content " + id,
		Type:       "fact",
		InstanceID: "agent-1",
		Metadata:   map[string]string{"k": "v"},
		CreatedAt:  createdAt,
	})
	assert.NoError(t, err)
}

func TestInMemoryBackendIsolation(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()
	putTestMemory(t, b, "m1", time.Now().UTC())

	// Mutating a returned record must not leak into the store.
	got, err := b.GetMemory(ctx, "m1")
	assert.NoError(t, err)
	got.Content = "tampered"
	got.Metadata["k"] = "tampered"

	again, err := b.GetMemory(ctx, "m1")
	assert.NoError(t, err)
	assert.Equal(t, "content m1", again.Content)
	assert.Equal(t, "v", again.Metadata["k"])
}

func TestInMemoryBackendNotFound(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()

	_, err := b.GetMemory(ctx, "ghost")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	err = b.ArchiveMemory(ctx, "ghost", time.Now().UTC())
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	err = b.SetEmbedding(ctx, "ghost", []float32{1}, "m")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	err = b.MarkMessageRead(ctx, "ghost", "agent-1", time.Now().UTC())
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestInMemoryBackendListOrderAndFilter(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()
	base := time.Now().UTC()

	putTestMemory(t, b, "newest", base.Add(2*time.Second))
	putTestMemory(t, b, "oldest", base)
	putTestMemory(t, b, "middle", base.Add(time.Second))

	out, err := b.ListMemories(ctx, memory.MemoryFilter{})
	assert.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, "oldest", out[0].ID)
	assert.Equal(t, "newest", out[2].ID)

	// Archived records disappear unless asked for.
	assert.NoError(t, b.ArchiveMemory(ctx, "middle", time.Now().UTC()))

	out, err = b.ListMemories(ctx, memory.MemoryFilter{})
	assert.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = b.ListMemories(ctx, memory.MemoryFilter{IncludeArchived: true})
	assert.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestInMemoryBackendGetMemoriesSkipsUnknown(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()
	putTestMemory(t, b, "m1", time.Now().UTC())

	out, err := b.GetMemories(ctx, []string{"m1", "ghost"})
	assert.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
}

func TestInMemoryBackendEdges(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()
	now := time.Now().UTC()

	edges := []*memory.Edge{
		{ID: "e1", SourceID: "a", TargetID: "b", Relationship: "relates_to", Weight: 0.5, CreatedAt: now},
		{ID: "e2", SourceID: "a", TargetID: "b", Relationship: "depends_on", Weight: 0.7, CreatedAt: now},
		{ID: "e3", SourceID: "b", TargetID: "a", Relationship: "relates_to", Weight: 0.3, CreatedAt: now},
	}
	for _, e := range edges {
		assert.NoError(t, b.PutEdge(ctx, e))
	}

	from, err := b.EdgesFrom(ctx, "a")
	assert.NoError(t, err)
	assert.Len(t, from, 2)

	touching, err := b.EdgesTouching(ctx, "a")
	assert.NoError(t, err)
	assert.Len(t, touching, 3)

	removed, err := b.DeleteEdges(ctx, "a", "b", "relates_to")
	assert.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = b.DeleteEdges(ctx, "a", "b", "")
	assert.NoError(t, err)
	assert.Equal(t, 1, removed)

	touching, err = b.EdgesTouching(ctx, "a")
	assert.NoError(t, err)
	assert.Len(t, touching, 1)
	assert.Equal(t, "e3", touching[0].ID)
}
