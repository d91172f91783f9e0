package tools

// This file implements the core memory tools: storing, recalling, archiving,
// fetching, backfilling, and counting memories.

import (
	"context"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/engramdb/engram/pkg/memory"
)

func (r *Registry) registerMemoryTools(srv *server.MCPServer) {
	srv.AddTool(buildRememberTool(), r.handleRemember)
	srv.AddTool(buildRecallTool(), r.handleRecall)
	srv.AddTool(buildForgetTool(), r.handleForget)
	srv.AddTool(buildGetTool(), r.handleGet)
	srv.AddTool(buildBackfillTool(), r.handleBackfill)
	srv.AddTool(buildStatsTool(), r.handleStats)
}

// ---------------------------------------------------------------------------
// Tool builders (schema only – no execution logic)
// ---------------------------------------------------------------------------

func buildRememberTool() mcp.Tool {
	return mcp.NewTool(
		"remember",
		mcp.WithDescription("Stores a memory record and embeds it for semantic recall. Returns the generated memory ID."),
		mcp.WithString("content",
			mcp.Description("Textual content of the memory"),
			mcp.Required(),
		),
		mcp.WithString("memory_type",
			mcp.Description("Category of the memory, e.g. 'fact', 'decision', 'gotcha'"),
			mcp.Required(),
		),
		mcp.WithString("instance_id",
			mcp.Description("Identifier of the agent instance recording the memory"),
			mcp.Required(),
		),
		mcp.WithString("subject",
			mcp.Description("Optional short subject line for the memory"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Arbitrary string key/value metadata to attach"),
		),
		mcp.WithString("supersedes_id",
			mcp.Description("ID of an existing memory this one replaces; the old record is archived and linked"),
		),
	)
}

func buildRecallTool() mcp.Tool {
	return mcp.NewTool(
		"recall",
		mcp.WithDescription("Searches memories by semantic similarity to a natural-language query."),
		mcp.WithString("query",
			mcp.Description("Natural-language search query"),
			mcp.Required(),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of hits to return (default 20)"),
		),
		mcp.WithString("instance_id",
			mcp.Description("Restrict results to memories recorded by this instance"),
		),
		mcp.WithString("memory_type",
			mcp.Description("Restrict results to this memory type"),
		),
		mcp.WithBoolean("synthesize",
			mcp.Description("When true, return an LLM-written digest alongside the raw hits"),
		),
	)
}

func buildForgetTool() mcp.Tool {
	return mcp.NewTool(
		"forget",
		mcp.WithDescription("Archives a memory so it no longer appears in recall or traversal results. The record itself is retained."),
		mcp.WithString("memory_id",
			mcp.Description("ID of the memory to archive"),
			mcp.Required(),
		),
	)
}

func buildGetTool() mcp.Tool {
	return mcp.NewTool(
		"get_memories",
		mcp.WithDescription("Fetches memories by ID, including archived ones. Unknown IDs are reported, not fatal."),
		mcp.WithString("memory_ids",
			mcp.Description("Comma-separated list of memory IDs"),
			mcp.Required(),
		),
		mcp.WithBoolean("synthesize",
			mcp.Description("When true and more than one memory is found, include an LLM-written digest"),
		),
	)
}

func buildBackfillTool() mcp.Tool {
	return mcp.NewTool(
		"backfill_embeddings",
		mcp.WithDescription("Embeds every memory that has no vector under the current embedding model. Safe to run repeatedly."),
	)
}

func buildStatsTool() mcp.Tool {
	return mcp.NewTool(
		"memory_stats",
		mcp.WithDescription("Reports memory counts broken down by state, type, and instance."),
	)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (r *Registry) handleRemember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	reqs := memory.RememberRequest{
		Content:      stringArg(args, "content"),
		Type:         stringArg(args, "memory_type"),
		InstanceID:   stringArg(args, "instance_id"),
		Subject:      stringArg(args, "subject"),
		Metadata:     stringMap(args["metadata"]),
		SupersedesID: stringArg(args, "supersedes_id"),
	}

	res, err := r.Store.Remember(ctx, reqs)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (r *Registry) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	res, err := r.Index.Recall(ctx, memory.RecallRequest{
		Query:      stringArg(args, "query"),
		Limit:      intArg(args, "top_k"),
		InstanceID: stringArg(args, "instance_id"),
		Type:       stringArg(args, "memory_type"),
		Synthesize: boolArg(args, "synthesize"),
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (r *Registry) handleForget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req.GetArguments(), "memory_id")
	if err := r.Store.Forget(ctx, id); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]string{"archived": id})
}

func (r *Registry) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	var ids []string
	for _, id := range strings.Split(stringArg(args, "memory_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	res, err := r.Store.Get(ctx, ids, boolArg(args, "synthesize"))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (r *Registry) handleBackfill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := r.Store.BackfillEmbeddings(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (r *Registry) handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := r.Store.Stats(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

// ---------------------------------------------------------------------------
// Argument plumbing
// ---------------------------------------------------------------------------

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// intArg tolerates both float64 (JSON numbers) and string encodings.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
