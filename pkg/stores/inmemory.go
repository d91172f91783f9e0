// Package stores contains the concrete storage backends behind the
// memory.Backend contract. The in-memory implementation in this file keeps
// the whole dataset in maps guarded by a single RWMutex; it exists so unit
// tests and demos run without a database. Production deployments use the
// sqlite or postgres sub-packages.
package stores

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/engramdb/engram/pkg/errors"
	"github.com/engramdb/engram/pkg/memory"
)

// InMemoryBackend is the default Backend for tests. Safe for concurrent use.
type InMemoryBackend struct {
	mu       sync.RWMutex
	memories map[string]*memory.Memory
	edges    []*memory.Edge
	messages map[string]*memory.HandoffMessage
}

// NewInMemoryBackend returns an empty backend.
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		memories: make(map[string]*memory.Memory),
		messages: make(map[string]*memory.HandoffMessage),
	}
}

func cloneMemory(m *memory.Memory) *memory.Memory {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	if m.Embedding != nil {
		cp.Embedding = append([]float32(nil), m.Embedding...)
	}
	if m.ArchivedAt != nil {
		at := *m.ArchivedAt
		cp.ArchivedAt = &at
	}
	return &cp
}

func cloneMessage(msg *memory.HandoffMessage) *memory.HandoffMessage {
	cp := *msg
	if msg.Metadata != nil {
		cp.Metadata = make(map[string]string, len(msg.Metadata))
		for k, v := range msg.Metadata {
			cp.Metadata[k] = v
		}
	}
	if msg.ReadAt != nil {
		at := *msg.ReadAt
		cp.ReadAt = &at
	}
	return &cp
}

func (b *InMemoryBackend) PutMemory(ctx context.Context, m *memory.Memory) error {
	b.mu.Lock()
	b.memories[m.ID] = cloneMemory(m)
	b.mu.Unlock()
	return nil
}

func (b *InMemoryBackend) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	b.mu.RLock()
	m, ok := b.memories[id]
	b.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("memory %s", id)
	}
	return cloneMemory(m), nil
}

func (b *InMemoryBackend) GetMemories(ctx context.Context, ids []string) ([]*memory.Memory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*memory.Memory
	for _, id := range ids {
		if m, ok := b.memories[id]; ok {
			out = append(out, cloneMemory(m))
		}
	}
	return out, nil
}

func (b *InMemoryBackend) ListMemories(ctx context.Context, filter memory.MemoryFilter) ([]*memory.Memory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*memory.Memory
	for _, m := range b.memories {
		if m.Archived() && !filter.IncludeArchived {
			continue
		}
		if filter.InstanceID != "" && m.InstanceID != filter.InstanceID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		out = append(out, cloneMemory(m))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (b *InMemoryBackend) ArchiveMemory(ctx context.Context, id string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.memories[id]
	if !ok {
		return errors.NotFound("memory %s", id)
	}
	if m.ArchivedAt == nil {
		m.ArchivedAt = &at
	}
	return nil
}

func (b *InMemoryBackend) SetEmbedding(ctx context.Context, id string, vec []float32, model string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.memories[id]
	if !ok {
		return errors.NotFound("memory %s", id)
	}
	m.Embedding = append([]float32(nil), vec...)
	m.EmbeddingModel = model
	return nil
}

func (b *InMemoryBackend) PutEdge(ctx context.Context, e *memory.Edge) error {
	cp := *e
	b.mu.Lock()
	b.edges = append(b.edges, &cp)
	b.mu.Unlock()
	return nil
}

func (b *InMemoryBackend) DeleteEdges(ctx context.Context, source, target, relationship string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.edges[:0]
	removed := 0
	for _, e := range b.edges {
		match := e.SourceID == source && e.TargetID == target &&
			(relationship == "" || e.Relationship == relationship)
		if match {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	b.edges = kept
	return removed, nil
}

func (b *InMemoryBackend) EdgesFrom(ctx context.Context, id string) ([]*memory.Edge, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*memory.Edge
	for _, e := range b.edges {
		if e.SourceID == id {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (b *InMemoryBackend) EdgesTouching(ctx context.Context, id string) ([]*memory.Edge, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*memory.Edge
	for _, e := range b.edges {
		if e.SourceID == id || e.TargetID == id {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (b *InMemoryBackend) PutMessage(ctx context.Context, msg *memory.HandoffMessage) error {
	b.mu.Lock()
	b.messages[msg.ID] = cloneMessage(msg)
	b.mu.Unlock()
	return nil
}

func (b *InMemoryBackend) ListMessages(ctx context.Context, instance string, includeRead bool) ([]*memory.HandoffMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*memory.HandoffMessage
	for _, msg := range b.messages {
		if msg.ToInstance != instance && msg.ToInstance != memory.BroadcastInstance {
			continue
		}
		if msg.Read() && !includeRead {
			continue
		}
		out = append(out, cloneMessage(msg))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (b *InMemoryBackend) MarkMessageRead(ctx context.Context, id, readBy string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg, ok := b.messages[id]
	if !ok {
		return errors.NotFound("handoff message %s", id)
	}
	if msg.ReadAt == nil {
		msg.ReadAt = &at
		msg.ReadBy = readBy
	}
	return nil
}

func (b *InMemoryBackend) Ping(ctx context.Context) error { return nil }

func (b *InMemoryBackend) Close() error { return nil }
