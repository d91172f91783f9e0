package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"github.com/engramdb/engram/pkg/embedding"
	"github.com/engramdb/engram/pkg/memory"
	"github.com/engramdb/engram/pkg/stores"
)

func newTestRegistry() *Registry {
	backend := stores.NewInMemoryBackend()
	embedder := embedding.NewMockEmbedder()
	return &Registry{
		Store: memory.NewStore(backend, embedder),
		Index: memory.NewIndex(backend, embedder, memory.WithMinScore(-1)),
		Graph: memory.NewGraph(backend),
		Bus:   memory.NewBus(backend),
	}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	text, ok := res.Content[0].(mcp.TextContent)
	assert.True(t, ok)

	var out map[string]any
	assert.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestRememberRecallFlow(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	res, err := r.handleRemember(ctx, callRequest("remember", map[string]any{
		"content":     "the build cache lives in /var/cache/builds",
		"memory_type": "fact",
		"instance_id": "agent-1",
		"metadata":    map[string]any{"source": "ops"},
	}))
	assert.NoError(t, err)
	assert.False(t, res.IsError)

	stored := resultJSON(t, res)
	id, _ := stored["ID"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, true, stored["Embedded"])

	res, err = r.handleRecall(ctx, callRequest("recall", map[string]any{
		"query": "where is the build cache?",
		"top_k": float64(5),
	}))
	assert.NoError(t, err)
	assert.False(t, res.IsError)

	recall := resultJSON(t, res)
	hits, _ := recall["Hits"].([]any)
	assert.NotEmpty(t, hits)
}

func TestRememberValidationSurfacesAsToolError(t *testing.T) {
	r := newTestRegistry()

	res, err := r.handleRemember(context.Background(), callRequest("remember", map[string]any{
		"content":     "x",
		"memory_type": "not-a-type",
		"instance_id": "agent-1",
	}))
	assert.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestForgetAndGetFlow(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	res, _ := r.handleRemember(ctx, callRequest("remember", map[string]any{
		"content":     "to be archived",
		"memory_type": "event",
		"instance_id": "agent-1",
	}))
	id, _ := resultJSON(t, res)["ID"].(string)

	res, err := r.handleForget(ctx, callRequest("forget", map[string]any{"memory_id": id}))
	assert.NoError(t, err)
	assert.False(t, res.IsError)

	// Archived records still resolve by id; unknown ids land in Missing.
	res, err = r.handleGet(ctx, callRequest("get_memories", map[string]any{
		"memory_ids": id + ", ghost",
	}))
	assert.NoError(t, err)

	got := resultJSON(t, res)
	found, _ := got["Found"].([]any)
	missing, _ := got["Missing"].([]any)
	assert.Len(t, found, 1)
	assert.Equal(t, []any{"ghost"}, missing)
}

func TestGraphToolFlow(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	var ids []string
	for _, content := range []string{"postgres chosen", "needed transactions"} {
		res, _ := r.handleRemember(ctx, callRequest("remember", map[string]any{
			"content":     content,
			"memory_type": "decision",
			"instance_id": "agent-1",
		}))
		id, _ := resultJSON(t, res)["ID"].(string)
		ids = append(ids, id)
	}

	res, err := r.handleLink(ctx, callRequest("link_memories", map[string]any{
		"source_id":    ids[0],
		"target_id":    ids[1],
		"relationship": "justified_by",
		"weight":       float64(0.9),
	}))
	assert.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = r.handleRelated(ctx, callRequest("related_memories", map[string]any{"memory_id": ids[0]}))
	assert.NoError(t, err)
	neighbors, _ := resultJSON(t, res)["neighbors"].([]any)
	assert.Len(t, neighbors, 1)

	res, err = r.handleTraverse(ctx, callRequest("memory_graph", map[string]any{
		"start_id":  ids[0],
		"max_depth": float64(1),
	}))
	assert.NoError(t, err)
	nodes, _ := resultJSON(t, res)["Nodes"].([]any)
	assert.Len(t, nodes, 2)

	// Out-of-range weight comes back as a tool error, not a crash.
	res, err = r.handleLink(ctx, callRequest("link_memories", map[string]any{
		"source_id":    ids[0],
		"target_id":    ids[1],
		"relationship": "justified_by",
		"weight":       float64(1.5),
	}))
	assert.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = r.handleUnlink(ctx, callRequest("unlink_memories", map[string]any{
		"source_id": ids[0],
		"target_id": ids[1],
	}))
	assert.NoError(t, err)
	assert.Equal(t, float64(1), resultJSON(t, res)["removed"])
}

func TestHandoffToolFlow(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	res, err := r.handleHandoffSend(ctx, callRequest("handoff_send", map[string]any{
		"from_instance": "agent-1",
		"to_instance":   "agent-2",
		"content":       "pick up the migration at step 3",
	}))
	assert.NoError(t, err)
	assert.False(t, res.IsError)
	msgID, _ := resultJSON(t, res)["id"].(string)
	assert.NotEmpty(t, msgID)

	res, err = r.handleHandoffGet(ctx, callRequest("handoff_get", map[string]any{
		"instance_id": "agent-2",
	}))
	assert.NoError(t, err)
	assert.Equal(t, float64(1), resultJSON(t, res)["count"])

	res, err = r.handleHandoffMarkRead(ctx, callRequest("handoff_mark_read", map[string]any{
		"message_id": msgID,
		"read_by":    "agent-2",
	}))
	assert.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = r.handleHandoffGet(ctx, callRequest("handoff_get", map[string]any{
		"instance_id": "agent-2",
	}))
	assert.NoError(t, err)
	assert.Equal(t, float64(0), resultJSON(t, res)["count"])
}
